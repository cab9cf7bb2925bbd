package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLOSURE_TIMEOUT", "")
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ClosureTimeout)
	assert.Equal(t, 3, cfg.RollbackAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyKeyTTL)
	assert.True(t, cfg.InMemory())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CLOSURE_TIMEOUT", "5s")
	t.Setenv("CALC_WORKERS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RUN_MIGRATIONS", "not-a-bool")
	cfg := FromEnv()

	assert.Equal(t, 5*time.Second, cfg.ClosureTimeout)
	assert.Equal(t, 3, cfg.CalcWorkers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RunMigrations)
}

func TestValidate(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg := FromEnv()
	cfg.JWTSecret = "dev-secret"
	cfg.DatabaseURL = ""
	require.NoError(t, cfg.Validate())

	prod := cfg
	prod.Environment = "production"
	assert.ErrorContains(t, prod.Validate(), "DATABASE_URL")

	prod.DatabaseURL = "postgres://localhost/nomina"
	prod.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.ErrorContains(t, prod.Validate(), "DATA_ENCRYPTION_KEY")

	bad := cfg
	bad.ClosureTimeout = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.LogLevel = "verbose"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.JobRunRetention = -time.Hour
	assert.ErrorContains(t, bad.Validate(), "JOB_RUN_RETENTION")
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CALC_WORKERS=5\nAPP_ADDR=:9999\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("APP_ADDR", ":7000")
	t.Setenv("CALC_WORKERS", "")
	require.NoError(t, os.Unsetenv("CALC_WORKERS"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CalcWorkers)
	assert.Equal(t, ":7000", cfg.Addr)
}
