package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "service:\n  name: test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "test" {
		t.Errorf("name = %q, want test", cfg.Service.Name)
	}
	if cfg.Service.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want default 5s", cfg.Service.Timeout)
	}
	if cfg.Service.TickThrottle != 250*time.Millisecond {
		t.Errorf("tick_throttle = %v, want default 250ms", cfg.Service.TickThrottle)
	}
	if !cfg.History.Enabled || cfg.History.Path == "" {
		t.Errorf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.API.Enabled {
		t.Error("api must be disabled by default")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
service:
  log_level: debug
  timeout: 10s
  tick_throttle: 1s
builtins:
  disabled: [go, javascript]
plugins:
  dir: /opt/runlet/plugins
history:
  enabled: false
api:
  enabled: true
  listen: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.Service.Timeout)
	}
	if len(cfg.Builtins.Disabled) != 2 {
		t.Errorf("disabled = %v", cfg.Builtins.Disabled)
	}
	if cfg.Plugins.Dir != "/opt/runlet/plugins" {
		t.Errorf("plugins.dir = %q", cfg.Plugins.Dir)
	}
	if cfg.History.Enabled {
		t.Error("history must be disabled")
	}
	if !cfg.API.Enabled || cfg.API.Listen != "0.0.0.0:9000" {
		t.Errorf("unexpected api config: %+v", cfg.API)
	}
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("RUNLET_TEST_KEY", "sekrit")
	path := writeConfig(t, t.TempDir(), `
api:
  enabled: true
  listen: 127.0.0.1:8080
  api_key: ${RUNLET_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "sekrit" {
		t.Errorf("api_key = %q, want interpolated value", cfg.API.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad log level", "service:\n  log_level: verbose\n", "log_level"},
		{"zero timeout", "service:\n  timeout: 0s\n", "timeout"},
		{"negative throttle", "service:\n  tick_throttle: -1s\n", "tick_throttle"},
		{"history without path", "history:\n  enabled: true\n  path: \"\"\n", "history.path"},
		{"api without listen", "api:\n  enabled: true\n  listen: \"\"\n", "api.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
