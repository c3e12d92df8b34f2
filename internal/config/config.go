package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	POS      POSConfig      `mapstructure:"pos"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	SeedPath string `mapstructure:"seed_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig holds admin authentication configuration.
type AuthConfig struct {
	PIN       string `mapstructure:"pin"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// POSConfig holds point-of-sale vendor API configuration.
type POSConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AuthBaseURL string `mapstructure:"auth_base_url"`
	ClientID    string `mapstructure:"client_id"`
	RedirectURI string `mapstructure:"redirect_uri"`
	Timeout     int    `mapstructure:"timeout"` // seconds
}

// JobsConfig holds background job tuning.
type JobsConfig struct {
	StaleRunningMinutes int    `mapstructure:"stale_running_minutes"`
	CatalogSyncCron     string `mapstructure:"catalog_sync_cron"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.pitstock")
	}

	v.SetEnvPrefix("PITSTOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8484)

	v.SetDefault("database.path", "./data/pitstock.db")
	v.SetDefault("database.seed_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("auth.pin", "")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("pos.base_url", "https://apisandbox.dev.clover.com")
	v.SetDefault("pos.auth_base_url", "https://sandbox.dev.clover.com")
	v.SetDefault("pos.client_id", "")
	v.SetDefault("pos.redirect_uri", "")
	v.SetDefault("pos.timeout", 15)

	v.SetDefault("jobs.stale_running_minutes", 30)
	v.SetDefault("jobs.catalog_sync_cron", "0 3 * * *")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
