package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-dev/datarouter/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.Routes != DefaultRoutes {
		t.Errorf("Routes = %q, want %q", cfg.Routes, DefaultRoutes)
	}
	if cfg.Hydration.Format != "json" {
		t.Errorf("Hydration.Format = %q, want json", cfg.Hydration.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != "E141" {
		t.Fatalf("Load() on empty dir = %v, want E141", err)
	}

	writeConfig(t, dir, "datarouter.yaml", `
name: shop
routes: app/routes.yaml
basename: /shop
server:
  port: 9000
  allowedOrigins: [https://shop.example]
hydration:
  format: msgpack
log:
  level: debug
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "shop" || cfg.Basename != "/shop" {
		t.Errorf("Name, Basename = %q, %q", cfg.Name, cfg.Basename)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if got, want := cfg.RoutesLocation(), filepath.Join(dir, "app/routes.yaml"); got != want {
		t.Errorf("RoutesLocation() = %q, want %q", got, want)
	}
	if level, err := cfg.LogLevel(); err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, %v", level, err)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), dir)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "datarouter.json", `{"routes": "s3://bucket/routes.json", "server": {"shutdownTimeout": "3s"}}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.RoutesLocation(); got != "s3://bucket/routes.json" {
		t.Errorf("RoutesLocation() = %q", got)
	}
	if got := cfg.ShutdownTimeout(); got != 3*time.Second {
		t.Errorf("ShutdownTimeout() = %v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "datarouter.json", "{\n  \"name\": \"x\",\n}\n")

	_, err := LoadFile(path)
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("LoadFile() error = %v, want *errors.Error", err)
	}
	if e.Code != "E120" {
		t.Errorf("Code = %q, want E120", e.Code)
	}
	if e.Location == nil || e.Location.Line != 3 {
		t.Errorf("Location = %v, want line 3", e.Location)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "port", modify: func(c *Config) { c.Server.Port = 70000 }, code: "E122"},
		{name: "basename", modify: func(c *Config) { c.Basename = "app" }, code: "E121"},
		{name: "timeout", modify: func(c *Config) { c.Server.ShutdownTimeout = "soon" }, code: "E121"},
		{name: "format", modify: func(c *Config) { c.Hydration.Format = "xml" }, code: "E121"},
		{name: "metrics path", modify: func(c *Config) { c.Metrics.Path = "metrics" }, code: "E121"},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "loud" }, code: "E121"},
		{name: "log format", modify: func(c *Config) { c.Log.Format = "xml" }, code: "E121"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.code == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Code != tt.code {
				t.Errorf("Validate() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"datarouter.yaml", "datarouter.json"} {
		cfg := New()
		cfg.Name = "saved"
		cfg.Server.Port = 9100
		path := filepath.Join(dir, name)
		if err := cfg.SaveTo(path); err != nil {
			t.Fatalf("SaveTo(%s) error = %v", name, err)
		}
		if cfg.Path() != path {
			t.Errorf("Path() = %q, want %q", cfg.Path(), path)
		}

		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s) error = %v", name, err)
		}
		if loaded.Name != "saved" || loaded.Server.Port != 9100 {
			t.Errorf("%s round trip = %+v", name, loaded)
		}
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "datarouter.yml", "name: nested\n")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(sub)
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindProjectRoot() = %q, want %q", got, want)
	}
	if !Exists(root) || Exists(sub) {
		t.Error("Exists() mismatch")
	}
}
