package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	Environment        string
	LogLevel           string
	DatabaseURL        string
	JWTSecret          string
	DataEncryptionKey  string
	AllowedOrigins     []string
	RunMigrations      bool
	MigrationsDir      string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	ClosureTimeout     time.Duration
	RollbackAttempts   int
	RollbackBackoff    time.Duration
	CalcWorkers        int
	GhostSweepInterval time.Duration
	GhostStaleAfter    time.Duration
	RetentionInterval  time.Duration
	IdempotencyKeyTTL  time.Duration
	JobRunRetention    time.Duration
	LegalParamsFile    string
	MetricsEnabled     bool
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPUseTLS         bool
	AlertFrom          string
	AlertRecipients    []string
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ClosureTimeout:     getEnvDuration("CLOSURE_TIMEOUT", 30*time.Second),
		RollbackAttempts:   getEnvInt("ROLLBACK_MAX_ATTEMPTS", 3),
		RollbackBackoff:    getEnvDuration("ROLLBACK_BACKOFF", 100*time.Millisecond),
		CalcWorkers:        getEnvInt("CALC_WORKERS", 8),
		GhostSweepInterval: getEnvDuration("GHOST_SWEEP_INTERVAL", time.Hour),
		GhostStaleAfter:    getEnvDuration("GHOST_STALE_AFTER", 72*time.Hour),
		RetentionInterval:  getEnvDuration("RETENTION_INTERVAL", 24*time.Hour),
		IdempotencyKeyTTL:  getEnvDuration("IDEMPOTENCY_KEY_TTL", 24*time.Hour),
		JobRunRetention:    getEnvDuration("JOB_RUN_RETENTION", 90*24*time.Hour),
		LegalParamsFile:    getEnv("LEGAL_PARAMS_FILE", ""),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:         getEnvBool("SMTP_USE_TLS", true),
		AlertFrom:          getEnv("ALERT_EMAIL_FROM", "payroll-alerts@localhost"),
		AlertRecipients:    getEnvList("ALERT_EMAIL_TO", nil),
	}
}

// InMemory reports whether the service runs without Postgres.
func (c Config) InMemory() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" {
		if c.InMemory() {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.ClosureTimeout <= 0 {
		return fmt.Errorf("CLOSURE_TIMEOUT must be positive")
	}
	if c.RollbackAttempts < 1 {
		return fmt.Errorf("ROLLBACK_MAX_ATTEMPTS must be at least 1")
	}
	if c.CalcWorkers < 1 {
		return fmt.Errorf("CALC_WORKERS must be at least 1")
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		return fmt.Errorf("SMTP_PORT must be a valid port")
	}
	if c.GhostStaleAfter <= 0 {
		return fmt.Errorf("GHOST_STALE_AFTER must be positive")
	}
	if c.IdempotencyKeyTTL < 0 || c.JobRunRetention < 0 {
		return fmt.Errorf("IDEMPOTENCY_KEY_TTL and JOB_RUN_RETENTION must not be negative")
	}
	return nil
}
