package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "dev-secret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 50, cfg.Security.RateLimit)
	assert.Equal(t, time.Hour, cfg.Security.RateWindow)
	assert.Equal(t, 5, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LockoutCooldown)
	assert.Equal(t, int64(150_000), cfg.Enrollment.FullPriceNaira)
	assert.Equal(t, 3, cfg.Enrollment.InstallmentCount)
	assert.True(t, cfg.Enrollment.PartialGrantsAccess)
	assert.Equal(t, "@every 10m", cfg.Scheduler.ReconcileSchedule)
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "dev-secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("SECURITY_SUSPICIOUS_PATHS", "/.env,/backup")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/upscale")
	t.Setenv("SCHEDULER_STALE_AFTER", "45m")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, []string{"/.env", "/backup"}, cfg.Security.SuspiciousPaths)
	assert.Equal(t, 45*time.Minute, cfg.Scheduler.StaleAfter)
	assert.True(t, cfg.UsesPostgres())
	assert.True(t, cfg.UsesRedis())

	t.Setenv("REDIS_DISABLED", "true")
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.UsesRedis())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_SESSION_SECRET", "short")
	t.Setenv("SECURITY_RATE_LIMIT", "0")
	t.Setenv("SCHEDULER_RECONCILE_SCHEDULE", "every now and then")

	_, err := LoadFromEnv()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "AUTH_SESSION_SECRET must be at least 32 bytes")
	assert.Contains(t, msg, "DB_URL is required in production")
	assert.Contains(t, msg, "PAYSTACK_SECRET_KEY is required in production")
	assert.Contains(t, msg, "SECURITY_RATE_LIMIT must be positive")
	assert.Contains(t, msg, "SCHEDULER_RECONCILE_SCHEDULE is invalid")
}

func TestValidate_RequiresSessionSecret(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SESSION_SECRET is required")
}

func TestValidate_ExpireMustExceedStale(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "dev-secret")
	t.Setenv("SCHEDULER_EXPIRE_AFTER", "10m")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_EXPIRE_AFTER")
}

func TestAppConfig_Location(t *testing.T) {
	assert.Equal(t, "UTC", AppConfig{Timezone: "UTC"}.Location().String())
	assert.Equal(t, time.UTC, AppConfig{Timezone: "Mars/Olympus"}.Location())
}
