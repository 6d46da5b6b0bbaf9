package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("METER_CLIENT_SECRET", "env-secret")
	t.Setenv("PORT", "9090")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8080
meter:
  auth_url: "https://auth.example.com/token"
  api_url: "https://api.example.com/data"
  client_id: "cid"
  device_id: "dev-1"
  sensor_id: "sen-1"
weather:
  cache_ttl_minutes: 15
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Meter.ClientSecret != "env-secret" {
		t.Errorf("client secret = %q, want env override", cfg.Meter.ClientSecret)
	}
	if cfg.Meter.AuthURL != "https://auth.example.com/token" {
		t.Errorf("auth url = %q", cfg.Meter.AuthURL)
	}
	if cfg.Meter.GrantType != "password" {
		t.Errorf("grant type = %q, want default password", cfg.Meter.GrantType)
	}
	if cfg.Weather.CacheTTLMinutes != 15 {
		t.Errorf("cache ttl = %d, want 15", cfg.Weather.CacheTTLMinutes)
	}

	// Load is a singleton; a second call returns the same instance.
	again, err := Load(filepath.Join(dir, "other.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if again != cfg {
		t.Error("second Load returned a different instance")
	}

	if Get() != cfg {
		t.Error("Get returned a different instance")
	}
}
