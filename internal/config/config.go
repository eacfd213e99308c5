// Package config provides the configuration schema and loader for the
// mcav visualization server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for mcav.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Renderer RendererConfig `yaml:"renderer"`
	Auth     AuthConfig     `yaml:"auth"`
	Viz      VizConfig      `yaml:"viz"`
	Banner   BannerConfig   `yaml:"banner"`
}

// ServerConfig holds the listen addresses and logging settings.
type ServerConfig struct {
	// DJListenAddr is the WebSocket address DJ clients connect to.
	DJListenAddr string `yaml:"dj_listen_addr"`

	// BrowserListenAddr is the WebSocket address admin browsers connect to.
	BrowserListenAddr string `yaml:"browser_listen_addr"`

	// HTTPListenAddr serves health endpoints and the admin UI.
	HTTPListenAddr string `yaml:"http_listen_addr"`

	// MetricsListenAddr serves the Prometheus /metrics endpoint.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RendererConfig describes the downstream Minecraft renderer.
type RendererConfig struct {
	// Host is the renderer's WebSocket host.
	Host string `yaml:"host"`

	// Port is the renderer's WebSocket port.
	Port int `yaml:"port"`

	// Zone is the visualization zone entities are published into.
	Zone string `yaml:"zone"`

	// Disabled skips the renderer connection entirely. Browsers still
	// receive state frames, which is useful for dry runs.
	Disabled bool `yaml:"disabled"`
}

// URL returns the renderer's WebSocket URL.
func (r RendererConfig) URL() string {
	return wsURL(r.Host, r.Port)
}

// AuthConfig controls DJ and operator authentication.
type AuthConfig struct {
	// Path is the JSON credentials file holding hashed DJ and operator
	// secrets.
	Path string `yaml:"path"`

	// Require rejects DJ connections that present no credentials. When
	// false, unknown DJs may still join through connect codes.
	Require bool `yaml:"require"`
}

// VizConfig holds the startup visualization defaults.
type VizConfig struct {
	// EntityCount is the initial entity pool size, clamped to [1, 256].
	EntityCount int `yaml:"entity_count"`

	// Pattern names the pattern active at startup.
	Pattern string `yaml:"pattern"`

	// Preset names the audio-response preset active at startup.
	Preset string `yaml:"preset"`
}

// BannerConfig locates persisted banner profiles.
type BannerConfig struct {
	// Path is the banner profile JSON file. Pixel sidecars live in a
	// banners/ directory next to it.
	Path string `yaml:"path"`
}
