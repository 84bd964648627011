package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL_SECONDS", "")
	t.Setenv("CHAT_SCROLL_THRESHOLD_PX", "")
	t.Setenv("CHAT_ALLOWED_MIME_PREFIXES", "")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Chat.PollInterval())
	assert.Equal(t, 100, cfg.Chat.ScrollThresholdPx)
	assert.Equal(t, []string{"image/", "application/pdf", "text/"}, cfg.Chat.AllowedMimePrefixes)
	assert.Zero(t, cfg.Backend.Timeout())
}

func TestLoad_ChatOverrides(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL_SECONDS", "3")
	t.Setenv("CHAT_POLL_MAX_PAGES", "2")
	t.Setenv("CHAT_SCROLL_THRESHOLD_PX", "40")
	t.Setenv("CHAT_ALLOWED_MIME_PREFIXES", " image/ , ,video/")
	t.Setenv("CHAT_SESSION_IDLE_MINUTES", "5")
	t.Setenv("BACKEND_BASE_URL", "https://api.example.test/v1")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Chat.PollInterval())
	assert.Equal(t, 2, cfg.Chat.PollMaxPages)
	assert.Equal(t, 40, cfg.Chat.ScrollThresholdPx)
	assert.Equal(t, []string{"image/", "video/"}, cfg.Chat.AllowedMimePrefixes)
	assert.Equal(t, 5*time.Minute, cfg.Chat.SessionIdleTimeout())
	assert.Equal(t, "https://api.example.test/v1", cfg.Backend.BaseURL)
	assert.Equal(t, 8*time.Second, cfg.Backend.Timeout())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL_SECONDS", "soon")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Chat.PollIntervalSeconds)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "primary")

	_, err := Load()
	assert.Error(t, err)
}
