package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/benefits"
	"nomina/internal/domain/closure"
	"nomina/internal/domain/employee"
	"nomina/internal/domain/legal"
	"nomina/internal/domain/notifications"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
	"nomina/internal/domain/recalc"
	"nomina/internal/domain/reports"
	"nomina/internal/domain/retention"
	"nomina/internal/platform/config"
	"nomina/internal/platform/crypto"
	"nomina/internal/platform/db"
	"nomina/internal/platform/email"
	"nomina/internal/platform/jobs"
	"nomina/internal/platform/metrics"
	"nomina/internal/platform/retry"
	audithandler "nomina/internal/transport/http/handlers/audit"
	"nomina/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type auditStore interface {
	audit.Recorder
	audithandler.Lister
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      *pgxpool.Pool
	Metrics *metrics.Collector
	Jobs    *jobs.Service
	Router  http.Handler

	payroll     *payroll.Service
	employees   *employee.Service
	reports     *reports.Service
	alerts      *notifications.Service
	closer      *closure.Coordinator
	pipeline    *recalc.Pipeline
	accruals    *benefits.Service
	audit       auditStore
	idempotency middleware.IdempotencyStore
}

func Run() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Closure may take up to its own timeout plus rollback.
		WriteTimeout: cfg.ClosureTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payroll server listening", "addr", cfg.Addr, "env", cfg.Environment, "inMemory", cfg.InMemory())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
		logger.Info("payroll server stopped")
	}
}

// NewLogger emits JSON in the ECS schema so request logs and domain logs
// share one shape.
func NewLogger(cfg config.Config) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(!isProduction(cfg))
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parseLevel(cfg.LogLevel),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "nomina"),
		slog.String("env", cfg.Environment),
	)
}

// New wires the stores, domain services and router. With no DATABASE_URL
// everything lives in memory.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	table := legal.DefaultTable()
	if cfg.LegalParamsFile != "" {
		loaded, err := legal.LoadTable(cfg.LegalParamsFile)
		if err != nil {
			return nil, fmt.Errorf("load legal parameters: %w", err)
		}
		table = loaded
	}

	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	var (
		payrollStore  payroll.StoreAPI
		employeeStore employee.StoreAPI
		benefitsStore benefits.StoreAPI
		runLog        jobs.RunLog
		purger        jobs.Purger
	)
	if cfg.InMemory() {
		mem := memstore.New()
		if !isProduction(cfg) {
			seedDemo(mem)
		}
		payrollStore, employeeStore, benefitsStore = mem, mem, mem
		app.audit = audit.NewMemory()
		app.idempotency = middleware.NewMemoryIdempotencyStore()
		logger.Warn("DATABASE_URL not set; running with in-memory storage")
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			logger.Info("migrations applied", "count", applied)
		}
		sealer, err := crypto.New(cfg.DataEncryptionKey)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		pgStore := payroll.NewStore(pool, sealer)
		payrollStore, employeeStore = pgStore, pgStore
		benefitsStore = benefits.NewStore(pool)
		app.audit = audit.New(pool)
		app.idempotency = middleware.NewIdempotencyStore(pool)
		runLog = jobs.PGRunLog{DB: pool}
		purger = retention.New(pool, retention.Policy{
			retention.CategoryIdempotencyKeys: cfg.IdempotencyKeyTTL,
			retention.CategoryJobRuns:         cfg.JobRunRetention,
		})
	}

	calc := payroll.NewCalculator(table)
	app.payroll = payroll.NewService(payrollStore, calc,
		payroll.WithWorkers(cfg.CalcWorkers),
		payroll.WithLogger(logger),
	)
	app.employees = employee.NewService(employeeStore, app.audit)
	app.reports = reports.NewService(app.payroll, app.employees)
	app.accruals = benefits.NewService(benefitsStore, table)

	app.alerts = notifications.New(email.New(cfg), cfg.AlertFrom, cfg.AlertRecipients)

	rollback := retry.Default()
	rollback.MaxAttempts = cfg.RollbackAttempts
	rollback.Backoff = cfg.RollbackBackoff
	app.closer = closure.NewCoordinator(payrollStore, calc,
		closure.Config{Timeout: cfg.ClosureTimeout, Rollback: rollback, Workers: cfg.CalcWorkers},
		closure.WithAccruer(app.accruals),
		closure.WithAudit(app.audit),
		closure.WithAlerter(app.alerts),
		closure.WithMetrics(app.Metrics),
		closure.WithLogger(logger),
	)
	app.pipeline = recalc.NewPipeline(app.payroll, app.closer,
		recalc.WithAudit(app.audit),
		recalc.WithMetrics(app.Metrics),
		recalc.WithLogger(logger),
	)
	app.Jobs = jobs.New(payrollStore, runLog, app.Metrics, jobs.Config{
		SweepInterval:     cfg.GhostSweepInterval,
		StaleAfter:        cfg.GhostStaleAfter,
		RetentionInterval: cfg.RetentionInterval,
	})
	if purger != nil {
		app.Jobs.WithPurger(purger)
	}

	app.Router = app.routes()
	return app, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func isProduction(cfg config.Config) bool {
	return strings.EqualFold(cfg.Environment, "production")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
