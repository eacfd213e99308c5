package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default settings applied by [ApplyDefaults] for fields left empty.
const (
	DefaultDJListenAddr      = ":9000"
	DefaultBrowserListenAddr = ":8766"
	DefaultHTTPListenAddr    = ":8080"
	DefaultMetricsListenAddr = ":9090"
	DefaultRendererHost      = "127.0.0.1"
	DefaultRendererPort      = 8765
	DefaultZone              = "main"
	DefaultEntityCount       = 16
	DefaultPattern           = "spectrum"
	DefaultPreset            = "auto"
	DefaultAuthPath          = "configs/auth.json"
	DefaultBannerPath        = "configs/dj_banner_profiles.json"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every field at its default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills empty fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.DJListenAddr == "" {
		cfg.Server.DJListenAddr = DefaultDJListenAddr
	}
	if cfg.Server.BrowserListenAddr == "" {
		cfg.Server.BrowserListenAddr = DefaultBrowserListenAddr
	}
	if cfg.Server.HTTPListenAddr == "" {
		cfg.Server.HTTPListenAddr = DefaultHTTPListenAddr
	}
	if cfg.Server.MetricsListenAddr == "" {
		cfg.Server.MetricsListenAddr = DefaultMetricsListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Renderer.Host == "" {
		cfg.Renderer.Host = DefaultRendererHost
	}
	if cfg.Renderer.Port == 0 {
		cfg.Renderer.Port = DefaultRendererPort
	}
	if cfg.Renderer.Zone == "" {
		cfg.Renderer.Zone = DefaultZone
	}
	if cfg.Auth.Path == "" {
		cfg.Auth.Path = DefaultAuthPath
	}
	if cfg.Viz.EntityCount == 0 {
		cfg.Viz.EntityCount = DefaultEntityCount
	}
	if cfg.Viz.Pattern == "" {
		cfg.Viz.Pattern = DefaultPattern
	}
	if cfg.Viz.Preset == "" {
		cfg.Viz.Preset = DefaultPreset
	}
	if cfg.Banner.Path == "" {
		cfg.Banner.Path = DefaultBannerPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	for name, addr := range map[string]string{
		"server.dj_listen_addr":      cfg.Server.DJListenAddr,
		"server.browser_listen_addr": cfg.Server.BrowserListenAddr,
		"server.http_listen_addr":    cfg.Server.HTTPListenAddr,
		"server.metrics_listen_addr": cfg.Server.MetricsListenAddr,
	} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a host:port address", name, addr))
		}
	}

	if !cfg.Renderer.Disabled {
		if cfg.Renderer.Host == "" {
			errs = append(errs, errors.New("renderer.host is required unless renderer.disabled is set"))
		}
		if cfg.Renderer.Port < 1 || cfg.Renderer.Port > 65535 {
			errs = append(errs, fmt.Errorf("renderer.port %d is out of range [1, 65535]", cfg.Renderer.Port))
		}
	}

	if cfg.Viz.EntityCount < 1 || cfg.Viz.EntityCount > 256 {
		errs = append(errs, fmt.Errorf("viz.entity_count %d is out of range [1, 256]", cfg.Viz.EntityCount))
	}

	return errors.Join(errs...)
}

func wsURL(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}
