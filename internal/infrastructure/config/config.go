package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerDisabled is the reserved broker host sentinel that disables the
// MQTT connection entirely. With this value the transport client is
// created in offline mode: publishes become no-ops and no subscriptions
// are made. Used for tests and single-node evaluation deployments.
const BrokerDisabled = "disabled"

// Config is the root configuration structure for Forge Fleet Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform  PlatformConfig  `yaml:"platform"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// PlatformConfig contains instance-level identity.
type PlatformConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BrokerConfig contains MQTT broker connection settings.
//
// Host may be set to BrokerDisabled to run without a broker connection.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	Auth      BrokerAuthConfig      `yaml:"auth"`
	QoS       int                   `yaml:"qos"`
	Reconnect BrokerReconnectConfig `yaml:"reconnect"`
}

// BrokerAuthConfig contains MQTT authentication credentials.
// The platform connects with the reserved platform identity.
type BrokerAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerReconnectConfig contains MQTT reconnection settings.
// Reconnection uses a fixed delay between attempts.
type BrokerReconnectConfig struct {
	Delay int `yaml:"delay"` // seconds between attempts
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// TelemetryConfig contains InfluxDB metering settings.
// When disabled, comms metrics are discarded.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the HTTP API.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FORGE_SECTION_KEY
// For example: FORGE_DATABASE_PATH, FORGE_BROKER_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:   "forge-001",
			Name: "Forge Fleet",
		},
		Database: DatabaseConfig{
			Path:        "./data/forge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "forge-core",
			QoS:      1,
			Reconnect: BrokerReconnectConfig{
				Delay: 5,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FORGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FORGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Broker
	if v := os.Getenv("FORGE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("FORGE_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("FORGE_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// API
	if v := os.Getenv("FORGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telemetry
	if v := os.Getenv("FORGE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("FORGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Platform.ID == "" {
		errs = append(errs, "platform.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}
	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required (use \"disabled\" to run without a broker)")
	}
	if c.Broker.Reconnect.Delay < 1 {
		errs = append(errs, "broker.reconnect.delay must be at least 1 second")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is REQUIRED. A forgeable token grants command access to
	// every device on the platform.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set FORGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerEnabled reports whether a real broker connection is configured.
func (c *Config) BrokerEnabled() bool {
	return c.Broker.Host != BrokerDisabled
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
