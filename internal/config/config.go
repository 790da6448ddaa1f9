package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string    `mapstructure:"serverAddress"`
	DatabasePath  string    `mapstructure:"databasePath"`
	DatabaseURL   string    `mapstructure:"databaseUrl"`
	LogLevel      string    `mapstructure:"logLevel"`
	Security      Security  `mapstructure:"security"`
	Metrics       Metrics   `mapstructure:"metrics"`
	Events        Events    `mapstructure:"events"`
	Telemetry     Telemetry `mapstructure:"telemetry"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Security configuration. An empty APIKey leaves the API open.
type Security struct {
	APIKey       string `mapstructure:"apiKey"`
	APIKeyHeader string `mapstructure:"apiKeyHeader"`
}

// Metrics configuration for the Prometheus endpoint
type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// Events configuration for the websocket feed
type Events struct {
	StatsIntervalSeconds int `mapstructure:"statsIntervalSeconds"`
}

// StatsInterval returns the stats broadcast period
func (e Events) StatsInterval() time.Duration {
	return time.Duration(e.StatsIntervalSeconds) * time.Second
}

// Telemetry configuration for the OTLP exporters
type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
	Environment  string `mapstructure:"environment"`
}

// Default configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("serverAddress", ":3000")
	v.SetDefault("databasePath", "palet_v2.db")
	v.SetDefault("databaseUrl", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("security.apiKey", "")
	v.SetDefault("security.apiKeyHeader", "X-API-Key")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("events.statsIntervalSeconds", 2)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlpEndpoint", "localhost:4317")
	v.SetDefault("telemetry.serviceName", "pallet-server")
	v.SetDefault("telemetry.environment", "development")
}

var envBindings = map[string]string{
	"serverAddress":               "SERVER_ADDRESS",
	"databasePath":                "DATABASE_PATH",
	"databaseUrl":                 "DATABASE_URL",
	"logLevel":                    "LOG_LEVEL",
	"security.apiKey":             "API_KEY",
	"security.apiKeyHeader":       "API_KEY_HEADER",
	"metrics.enabled":             "METRICS_ENABLED",
	"events.statsIntervalSeconds": "EVENTS_STATS_INTERVAL_SECONDS",
	"telemetry.enabled":           "OTEL_ENABLED",
	"telemetry.otlpEndpoint":      "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.serviceName":       "SERVICE_NAME",
	"telemetry.environment":       "ENVIRONMENT",
}

// Load loads configuration from .env, the config file and the environment
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from the given file, which may be absent,
// with environment overrides applied on top
func LoadFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// PORT is honoured when no explicit address is configured
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDRESS") == "" && !v.InConfig("serverAddress") {
		cfg.ServerAddress = ":" + strings.TrimPrefix(port, ":")
	}

	if cfg.Events.StatsIntervalSeconds <= 0 {
		return nil, fmt.Errorf("events.statsIntervalSeconds must be positive, got %d", cfg.Events.StatsIntervalSeconds)
	}
	if cfg.Security.APIKeyHeader == "" {
		cfg.Security.APIKeyHeader = "X-API-Key"
	}

	return cfg, nil
}
