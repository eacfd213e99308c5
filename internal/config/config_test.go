package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
server:
  dj_listen_addr: ":9000"
  browser_listen_addr: ":8766"
  http_listen_addr: ":8080"
  log_level: debug
renderer:
  host: mc.example.com
  port: 8765
  zone: stage
auth:
  path: /etc/mcav/auth.json
  require: true
viz:
  entity_count: 64
  pattern: helix
  preset: edm
banner:
  path: /var/lib/mcav/banners.json
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Renderer.URL() != "ws://mc.example.com:8765" {
		t.Errorf("renderer url = %q", cfg.Renderer.URL())
	}
	if !cfg.Auth.Require {
		t.Error("auth.require not parsed")
	}
	if cfg.Viz.EntityCount != 64 || cfg.Viz.Pattern != "helix" {
		t.Errorf("viz = %+v", cfg.Viz)
	}
	// Unset fields still receive defaults.
	if cfg.Server.MetricsListenAddr != DefaultMetricsListenAddr {
		t.Errorf("metrics addr = %q, want default", cfg.Server.MetricsListenAddr)
	}
}

func TestLoadFromReader_EmptyGetsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.DJListenAddr != DefaultDJListenAddr {
		t.Errorf("dj addr = %q", cfg.Server.DJListenAddr)
	}
	if cfg.Renderer.URL() != "ws://127.0.0.1:8765" {
		t.Errorf("renderer url = %q", cfg.Renderer.URL())
	}
	if cfg.Viz.Pattern != DefaultPattern || cfg.Viz.Preset != DefaultPreset {
		t.Errorf("viz = %+v", cfg.Viz)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_addres: \":9000\"\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.LogLevel = "loud"
	cfg.Server.DJListenAddr = "no-port"
	cfg.Renderer.Port = 99999
	cfg.Viz.EntityCount = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "dj_listen_addr", "renderer.port", "entity_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_DisabledRendererSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.Renderer.Disabled = true
	cfg.Renderer.Host = ""
	cfg.Renderer.Port = 0

	if err := Validate(cfg); err != nil {
		t.Errorf("disabled renderer should skip host/port checks: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcav.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Renderer.Zone != "stage" {
		t.Errorf("zone = %q, want stage", cfg.Renderer.Zone)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("verbose").IsValid() {
		t.Error("verbose should be invalid")
	}
}
