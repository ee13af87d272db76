package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != Default() {
		t.Errorf("expected defaults, got %+v", c)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
port = "9090"
token = "secret"
model_url = "azblob://models/neuroscan.onnx"
pool_size = 2
resize_backend = "nfnt"
log_level = "debug"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != "9090" || c.Token != "secret" || c.PoolSize != 2 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.ResizeBackend != "nfnt" {
		t.Errorf("expected nfnt backend, got %q", c.ResizeBackend)
	}
	if c.ModelDir != "models" {
		t.Errorf("expected default model dir to survive, got %q", c.ModelDir)
	}
	if c.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", c.SlogLevel())
	}
	if c.Addr() != "0.0.0.0:9090" {
		t.Errorf("unexpected addr %q", c.Addr())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", `port = `},
		{"non numeric port", `port = "http"`},
		{"port out of range", `port = "70000"`},
		{"zero pool", `pool_size = 0`},
		{"unknown backend", `resize_backend = "opencv"`},
		{"zero upload limit", `max_upload_mb = 0`},
		{"zero pixel limit", `max_pixels = 0`},
		{"unknown imaging filter", `resize_filter = "lanczo"`},
		{"filter unsupported by nfnt", "resize_backend = \"nfnt\"\nresize_filter = \"box\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
