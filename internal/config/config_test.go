package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RequiresRedisURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("REDIS_URL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, 6*time.Hour, cfg.SweepEvery)
	assert.Equal(t, time.Minute, cfg.DrainEvery)
	assert.Equal(t, 7*24*time.Hour, cfg.EntryTTL)
	assert.Equal(t, 30*time.Minute, cfg.StaleAfter,
		"staleness threshold must outlast the longest execution")
	assert.True(t, cfg.Headless)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)

	sum := cfg.Weights.Title + cfg.Weights.Salary + cfg.Weights.Location +
		cfg.Weights.WorkType + cfg.Weights.Experience + cfg.Weights.Industry +
		cfg.Weights.Skills
	assert.Equal(t, 100, sum, "default weights must sum to 100")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PIPELINE_PORT", "9100")
	t.Setenv("PIPELINE_SWEEP_EVERY", "2h")
	t.Setenv("PIPELINE_SMTP_HOST", "mail.internal.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.SweepEvery)
	assert.Equal(t, "mail.internal.example", cfg.SMTP.Host)
}
