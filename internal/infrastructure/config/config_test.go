package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
platform:
  id: "forge-test"
database:
  path: "/tmp/forge-test.db"
  wal_mode: true
  busy_timeout: 5
broker:
  host: "localhost"
  port: 1883
  client_id: "forge-core-test"
  qos: 1
api:
  host: "0.0.0.0"
  port: 3000
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.ID != "forge-test" {
		t.Errorf("Platform.ID = %q, want %q", cfg.Platform.ID, "forge-test")
	}
	if cfg.Database.Path != "/tmp/forge-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/forge-test.db")
	}
	if cfg.Broker.Host != "localhost" {
		t.Errorf("Broker.Host = %q, want %q", cfg.Broker.Host, "localhost")
	}
	if !cfg.BrokerEnabled() {
		t.Error("BrokerEnabled() = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Port != 1883 {
		t.Errorf("Broker.Port = %d, want 1883", cfg.Broker.Port)
	}
	if cfg.Broker.QoS != 1 {
		t.Errorf("Broker.QoS = %d, want 1", cfg.Broker.QoS)
	}
	if cfg.Broker.Reconnect.Delay != 5 {
		t.Errorf("Broker.Reconnect.Delay = %d, want 5", cfg.Broker.Reconnect.Delay)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_DisabledBroker(t *testing.T) {
	content := `
broker:
  host: "disabled"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BrokerEnabled() {
		t.Error("BrokerEnabled() = true, want false for sentinel host")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FORGE_BROKER_HOST", "broker.example.com")
	t.Setenv("FORGE_JWT_SECRET", "env-secret-key-at-least-32-chars!!!")

	content := `
broker:
  host: "localhost"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Host != "broker.example.com" {
		t.Errorf("Broker.Host = %q, want env override", cfg.Broker.Host)
	}
	if cfg.Security.JWT.Secret != "env-secret-key-at-least-32-chars!!!" {
		t.Error("JWT secret env override not applied")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantMsg: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantMsg: "at least 32 characters",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.Broker.QoS = 3 },
			wantMsg: "broker.qos",
		},
		{
			name:    "empty broker host",
			mutate:  func(c *Config) { c.Broker.Host = "" },
			wantMsg: "broker.host is required",
		},
		{
			name:    "bad api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantMsg: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}
