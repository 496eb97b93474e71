package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// ProducerAddr is the TCP address of the telemetry frame producer.
	ProducerAddr string
	// HTTPAddr is the REST/WebSocket listen address.
	HTTPAddr string
	// DBPath is the bbolt database file.
	DBPath string
	// NATSURL enables the JetStream packet mirror when set.
	NATSURL string
	// RedisAddr enables the live-state cache when set.
	RedisAddr string
	// LogLevel is a logrus level name.
	LogLevel string
	// StreamBuffer is the per-subscriber broadcast buffer size.
	StreamBuffer int
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	producerAddr := os.Getenv("PRODUCER_ADDR")
	if producerAddr == "" {
		return nil, fmt.Errorf("PRODUCER_ADDR environment variable is required")
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":9090"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./telemetry.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	streamBuffer := 0
	if v := os.Getenv("STREAM_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAM_BUFFER: %w", err)
		}
		streamBuffer = n
	}

	return &Config{
		ProducerAddr: producerAddr,
		HTTPAddr:     httpAddr,
		DBPath:       dbPath,
		NATSURL:      os.Getenv("NATS_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		LogLevel:     logLevel,
		StreamBuffer: streamBuffer,
	}, nil
}
