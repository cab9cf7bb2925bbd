package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"

	"nomina/internal/transport/http/api"
	audithandler "nomina/internal/transport/http/handlers/audit"
	employeehandler "nomina/internal/transport/http/handlers/employees"
	notificationshandler "nomina/internal/transport/http/handlers/notifications"
	payrollhandler "nomina/internal/transport/http/handlers/payroll"
	reportshandler "nomina/internal/transport/http/handlers/reports"
	"nomina/internal/transport/http/middleware"
)

func (a *App) routes() http.Handler {
	cfg := a.Config
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed", "Retry-After"},
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(a.Logger, &httplog.Options{
		Level:  parseLevel(cfg.LogLevel),
		Schema: httplog.SchemaECS,
	}))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))
	r.Use(middleware.SecureHeaders(isProduction(cfg)))
	r.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.Auth(cfg.JWTSecret))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	r.Get("/readyz", a.handleReady)
	if cfg.MetricsEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		employeehandler.NewHandler(a.employees).RegisterRoutes(r)
		payrollhandler.NewHandler(a.payroll, a.closer, a.pipeline, a.accruals, a.audit, a.idempotency).RegisterRoutes(r)
		reportshandler.NewHandler(a.reports).RegisterRoutes(r)
		audithandler.NewHandler(a.audit).RegisterRoutes(r)
		notificationshandler.NewHandler(a.alerts).RegisterRoutes(r)
	})

	return r
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "readiness ping failed", "err", err)
			api.Fail(w, http.StatusServiceUnavailable, "db_not_ready", "database not ready", middleware.GetRequestID(r.Context()))
			return
		}
	}
	api.Success(w, map[string]string{"status": "ready"}, middleware.GetRequestID(r.Context()))
}
