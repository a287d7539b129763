// Package config loads application configuration from environment
// variables with sensible defaults.
//
// # Configuration Structure
//
// Server settings:
//
//	CREWDECK_HOST="0.0.0.0"
//	CREWDECK_PORT="8080"
//	CREWDECK_HEALTH_PORT="9090"
//	CREWDECK_READ_TIMEOUT="15s"
//	CREWDECK_WRITE_TIMEOUT="15s"
//	CREWDECK_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	CREWDECK_POSTGRES_URL="postgres://localhost/crewdeck"
//	CREWDECK_POSTGRES_MAX_CONNS="25"
//	CREWDECK_POSTGRES_IDLE_CONNS="5"
//	CREWDECK_POSTGRES_CONN_LIFETIME="5m"
//
// Redis settings (rate limiting):
//
//	CREWDECK_REDIS_ADDR="localhost:6379"
//	CREWDECK_REDIS_PASSWORD=""
//	CREWDECK_REDIS_DB="0"
//
// API key settings:
//
//	CREWDECK_KEY_SWEEP_SCHEDULE="@hourly"
//
// Observability settings:
//
//	CREWDECK_LOG_LEVEL="info"  # debug, info, warn, error
//	CREWDECK_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
