package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Source drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Reader    ReaderConfig    `yaml:"reader"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SourceConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	SSLMode    string `yaml:"sslmode"`
	Migrations string `yaml:"migrations"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type ReaderConfig struct {
	Timezone    string `yaml:"timezone"`
	DefaultDays int    `yaml:"default_days"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Location loads the configured IANA zone.
func (r ReaderConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix HEALTHBRIDGE_ and underscore-separated paths:
//
//	HEALTHBRIDGE_SERVER_HOST, HEALTHBRIDGE_SERVER_PORT,
//	HEALTHBRIDGE_SOURCE_DRIVER, HEALTHBRIDGE_SOURCE_SQLITE_PATH,
//	HEALTHBRIDGE_DB_HOST, HEALTHBRIDGE_DB_PORT, HEALTHBRIDGE_DB_NAME,
//	HEALTHBRIDGE_DB_USER, HEALTHBRIDGE_DB_PASSWORD, HEALTHBRIDGE_DB_SSLMODE,
//	HEALTHBRIDGE_AUTH_API_KEY, HEALTHBRIDGE_READER_TIMEZONE,
//	HEALTHBRIDGE_READER_DEFAULT_DAYS, HEALTHBRIDGE_TAILSCALE_ENABLED,
//	HEALTHBRIDGE_MCP_ENABLED
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Source:    SourceConfig{Driver: DriverPostgres, SQLitePath: "data/health.db"},
		Database:  DatabaseConfig{Migrations: "migrations"},
		Reader:    ReaderConfig{Timezone: "UTC", DefaultDays: 7},
		Tailscale: TailscaleConfig{Hostname: "healthbridge", StateDir: "tsnet-state"},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("HEALTHBRIDGE_SERVER_HOST", &cfg.Server.Host)
	setInt("HEALTHBRIDGE_SERVER_PORT", &cfg.Server.Port)
	setString("HEALTHBRIDGE_SOURCE_DRIVER", &cfg.Source.Driver)
	setString("HEALTHBRIDGE_SOURCE_SQLITE_PATH", &cfg.Source.SQLitePath)
	setString("HEALTHBRIDGE_DB_HOST", &cfg.Database.Host)
	setInt("HEALTHBRIDGE_DB_PORT", &cfg.Database.Port)
	setString("HEALTHBRIDGE_DB_NAME", &cfg.Database.Name)
	setString("HEALTHBRIDGE_DB_USER", &cfg.Database.User)
	setString("HEALTHBRIDGE_DB_PASSWORD", &cfg.Database.Password)
	setString("HEALTHBRIDGE_DB_SSLMODE", &cfg.Database.SSLMode)
	setString("HEALTHBRIDGE_AUTH_API_KEY", &cfg.Auth.APIKey)
	setString("HEALTHBRIDGE_READER_TIMEZONE", &cfg.Reader.Timezone)
	setInt("HEALTHBRIDGE_READER_DEFAULT_DAYS", &cfg.Reader.DefaultDays)
	setBool("HEALTHBRIDGE_TAILSCALE_ENABLED", &cfg.Tailscale.Enabled)
	setBool("HEALTHBRIDGE_MCP_ENABLED", &cfg.MCP.Enabled)
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	switch c.Source.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case DriverSQLite:
		if c.Source.SQLitePath == "" {
			return fmt.Errorf("source.sqlite_path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("source.driver %q must be one of postgres, sqlite, memory", c.Source.Driver)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Reader.Timezone == "" || c.Reader.Timezone == "Local" {
		return fmt.Errorf("reader.timezone must be an IANA zone name, got %q", c.Reader.Timezone)
	}
	if _, err := c.Reader.Location(); err != nil {
		return fmt.Errorf("reader.timezone: %w", err)
	}
	if c.Reader.DefaultDays < 1 || c.Reader.DefaultDays > 366 {
		return fmt.Errorf("reader.default_days must be between 1 and 366")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
