package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "FRONTEND_URL", "DB_PATH", "REPLY_DELAY", "PERSIST_QUEUE_SIZE",
		"HISTORY_RETENTION", "RETENTION_SWEEP_INTERVAL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "OPERATOR_AVATAR"} {
		t.Setenv(key, "")
	}
	// Blank values stand in for unset ones; the parsers fall back on them.
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "./data/moveit.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.Chat.ReplyDelay)
	assert.Equal(t, 64, cfg.Chat.PersistQueueSize)
	assert.Equal(t, 720*time.Hour, cfg.Retention.HistoryTTL)
	assert.Equal(t, time.Hour, cfg.Retention.SweepInterval)
	assert.InDelta(t, 5.0, cfg.RateLimit.RequestsPerSecond, 0.0001)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("FRONTEND_URL", "https://move-it.com/")
	t.Setenv("DB_PATH", "/var/lib/moveit/chat.db")
	t.Setenv("REPLY_DELAY", "250ms")
	t.Setenv("PERSIST_QUEUE_SIZE", "8")
	t.Setenv("HISTORY_RETENTION", "48h")
	t.Setenv("RETENTION_SWEEP_INTERVAL", "10m")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("OPERATOR_AVATAR", "/images/anna.png")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Chat.ReplyDelay)
	assert.Equal(t, 8, cfg.Chat.PersistQueueSize)
	assert.Equal(t, 48*time.Hour, cfg.Retention.HistoryTTL)
	assert.Equal(t, 10*time.Minute, cfg.Retention.SweepInterval)
	assert.InDelta(t, 0.5, cfg.RateLimit.RequestsPerSecond, 0.0001)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "/images/anna.png", cfg.OperatorAvatar)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://move-it.com"}, cfg.AllowedOrigins())
	assert.Equal(t, "https://move-it.com", cfg.FrontendOrigin())
}

func TestValidateRejects(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      "8080",
			DBPath:    "x.db",
			Chat:      ChatConfig{ReplyDelay: time.Second, PersistQueueSize: 1},
			Retention: RetentionConfig{HistoryTTL: time.Hour, SweepInterval: time.Minute},
			RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		}
	}
	require.NoError(t, valid().Validate())

	mutations := map[string]func(*Config){
		"empty port":     func(c *Config) { c.Port = "" },
		"empty db path":  func(c *Config) { c.DBPath = "" },
		"negative delay": func(c *Config) { c.Chat.ReplyDelay = -time.Second },
		"zero queue":     func(c *Config) { c.Chat.PersistQueueSize = 0 },
		"zero retention": func(c *Config) { c.Retention.HistoryTTL = 0 },
		"zero sweep":     func(c *Config) { c.Retention.SweepInterval = 0 },
		"negative rps":   func(c *Config) { c.RateLimit.RequestsPerSecond = -1 },
		"zero burst":     func(c *Config) { c.RateLimit.Burst = 0 },
	}
	for name, mutate := range mutations {
		c := valid()
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
}
