// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	OperatorAvatar string
	Chat           ChatConfig
	Retention      RetentionConfig
	RateLimit      RateLimitConfig
}

// ChatConfig tunes live chat sessions.
type ChatConfig struct {
	ReplyDelay       time.Duration
	PersistQueueSize int
}

// RetentionConfig controls purging of idle visitors.
type RetentionConfig struct {
	HistoryTTL    time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig bounds requests and chat submissions per visitor.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/moveit.db"),
		OperatorAvatar: getEnv("OPERATOR_AVATAR", "/images/operator.svg"),
		Chat: ChatConfig{
			ReplyDelay:       getEnvDuration("REPLY_DELAY", 1500*time.Millisecond),
			PersistQueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 64),
		},
		Retention: RetentionConfig{
			HistoryTTL:    getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
			SweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Chat.ReplyDelay < 0 {
		return fmt.Errorf("REPLY_DELAY cannot be negative")
	}
	if c.Chat.PersistQueueSize <= 0 {
		return fmt.Errorf("PERSIST_QUEUE_SIZE must be > 0")
	}
	if c.Retention.HistoryTTL <= 0 {
		return fmt.Errorf("HISTORY_RETENTION must be > 0")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// FrontendOrigin returns FRONTEND_URL in the form browsers send in the
// Origin header.
func (c *Config) FrontendOrigin() string {
	return strings.TrimRight(c.FrontendURL, "/")
}

// AllowedOrigins returns the CORS origins for the API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendOrigin()}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("1500ms", "720h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
