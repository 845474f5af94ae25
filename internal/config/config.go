// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

var ErrMissingSecret = errors.New("SESSION_SECRET environment variable is required")

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr              string
	HTTPReadHeaderTimeout time.Duration
	HTTPReadTimeout       time.Duration
	HTTPIdleTimeout       time.Duration

	// DatabaseURL selects the PostgreSQL catalog when set; otherwise the
	// built-in trees are served from memory.
	DatabaseURL string

	// KafkaBrokers enables cart activity publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	// PublishTimeout bounds one Kafka write; PublishQueueSize is how many
	// cart events may wait for the broker before new ones are dropped.
	PublishTimeout   time.Duration
	PublishQueueSize int

	SessionSecret   string
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Config{
		AppEnv:          getEnv("APP_ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		HTTPReadHeaderTimeout: getEnvDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		HTTPReadTimeout:       getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPIdleTimeout:       getEnvDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "cart-activity"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "cart-activity-tally"),
		PublishTimeout:        getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
		PublishQueueSize:      getEnvInt("KAFKA_PUBLISH_QUEUE_SIZE", 1024),
		SessionSecret:         os.Getenv("SESSION_SECRET"),
		SessionTTL:            getEnvDuration("SESSION_TTL", 2*time.Hour),
		SweepInterval:         getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
	return cfg, nil
}

// ValidateSecret checks the settings the HTTP API cannot start without
func (c Config) ValidateSecret() error {
	if c.SessionSecret == "" {
		return ErrMissingSecret
	}
	if len(c.SessionSecret) < minSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters long", minSecretLength)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getEnvInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
