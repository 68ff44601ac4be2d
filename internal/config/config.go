// package config loads application configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	// owner operator (always privileged)
	OwnerID int64

	// server
	HTTPPort int

	// nats (empty disables event publishing)
	NatsURL string

	// optional yaml seed file with channels/messages/timer for the owner
	SeedFile string

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
// OWNER_ID is required: without it nobody could operate the orchestrator.
func Load() (*Config, error) {
	cfg := &Config{
		OwnerID:  getEnvInt64("OWNER_ID", 0),
		HTTPPort: getEnvInt("HTTP_PORT", 3100),
		NatsURL:  getEnv("NATS_URL", ""),
		SeedFile: getEnv("SEED_FILE", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if cfg.OwnerID == 0 {
		return nil, errors.New("OWNER_ID must be set")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
