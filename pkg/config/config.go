package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/retailops/crewdeck/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (rate limiting)
	Redis RedisConfig

	// API key maintenance
	APIKeys APIKeyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// APIKeyConfig holds API key maintenance settings
type APIKeyConfig struct {
	// SweepSchedule is a cron expression for the expired-key sweep
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CREWDECK_HOST", "0.0.0.0"),
			Port:            getEnv("CREWDECK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CREWDECK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CREWDECK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CREWDECK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CREWDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CREWDECK_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("CREWDECK_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("CREWDECK_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("CREWDECK_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("CREWDECK_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CREWDECK_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CREWDECK_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CREWDECK_REDIS_DB", 0),
		},
		APIKeys: APIKeyConfig{
			SweepSchedule: getEnv("CREWDECK_KEY_SWEEP_SCHEDULE", "@hourly"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("CREWDECK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CREWDECK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
