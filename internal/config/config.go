package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the runtime configuration of the catalog service.
type Config struct {
	AppPort   string
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string // "sqlite", "postgres" or "memory"
	DSN    string
}

// RabbitMQConfig holds the broker URL. An empty URL disables product events.
type RabbitMQConfig struct {
	URL string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

type TelemetryConfig struct {
	Endpoint    string
	ServiceName string
	Environment string
	LogLevel    string
}

// Load reads the configuration from environment variables, falling back to defaults.
func Load() *Config {
	v := viper.New()
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "catalog.db")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "catalog")
	v.SetDefault("OTEL_ENVIRONMENT", "development")
	v.AutomaticEnv()

	return &Config{
		AppPort: v.GetString("APP_PORT"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		RabbitMQ: RabbitMQConfig{
			URL: v.GetString("RABBITMQ_URL"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("AUTH_ENABLED"),
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Environment: v.GetString("OTEL_ENVIRONMENT"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
	}
}
