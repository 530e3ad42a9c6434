package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/config"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/progress",
	})
	require.NoError(t, err)

	assert.Equal(t, "progress-engine", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)

	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.EqualValues(t, 25, cfg.Store.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Store.ConnMaxLifetime)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "progress:events", cfg.Redis.EventsChannel)
	assert.Equal(t, 5*time.Minute, cfg.Redis.OverviewTTL)

	assert.Equal(t, "configs/catalog.yaml", cfg.Catalog.Path)

	assert.Equal(t, config.ProgressionConfig{
		BaseDeclarationXP:    20,
		DeclarationXPStep:    10,
		DefaultMissionXP:     50,
		DefaultAchievementXP: 100,
		WeeklyStreakTarget:   5,
	}, cfg.Progression)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"APP_ENV":                "staging",
		"APP_TIMEZONE":           "America/Mexico_City",
		"STORE_DRIVER":           "memory",
		"REDIS_ENABLED":          "true",
		"REDIS_PORT":             "6380",
		"REDIS_OVERVIEW_TTL":     "30s",
		"REDIS_BREAKER_COOLDOWN": "1m",
		"WEEKLY_STREAK_TARGET":   "7",
		"LOG_FORMAT":             "console",
		"OTEL_ENABLED":           "true",
		"OTEL_ENDPOINT":          "http://collector:4318",
	})
	require.NoError(t, err)

	assert.Equal(t, config.EnvStaging, cfg.App.Environment)
	assert.Equal(t, "America/Mexico_City", cfg.App.Location.String())
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 30*time.Second, cfg.Redis.OverviewTTL)
	assert.Equal(t, time.Minute, cfg.Redis.BreakerCoolDown)
	assert.Equal(t, 5, cfg.Redis.BreakerThreshold)
	assert.Equal(t, 7, cfg.Progression.WeeklyStreakTarget)
	assert.Equal(t, "http://collector:4318", cfg.Observability.OTelEndpoint)
}

func TestLoadFrom_CollectsEveryProblem(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{
		"APP_TIMEZONE":         "Mars/Olympus",
		"STORE_DRIVER":         "postgres",
		"WEEKLY_STREAK_TARGET": "0",
		"LOG_LEVEL":            "loud",
		"OTEL_ENABLED":         "true",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "configuration errors:")
	assert.Contains(t, msg, "APP_TIMEZONE")
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "WEEKLY_STREAK_TARGET")
	assert.Contains(t, msg, "LOG_LEVEL")
	assert.Contains(t, msg, "OTEL_ENDPOINT")
}

func TestLoadFrom_UnknownDriver(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"STORE_DRIVER": "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `STORE_DRIVER "sqlite"`)
}

func TestLoadFrom_MemoryNotInProduction(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{
		"APP_ENV":      "production",
		"STORE_DRIVER": "memory",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"REDIS_PORT": "six"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
