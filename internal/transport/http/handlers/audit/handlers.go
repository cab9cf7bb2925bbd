package audithandler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/auth"
	"nomina/internal/transport/http/api"
	"nomina/internal/transport/http/middleware"
	"nomina/internal/transport/http/shared"
)

// Lister is satisfied by audit.Service and audit.Memory.
type Lister interface {
	List(ctx context.Context, orgID string, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/events/export", h.handleExportEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/periods/{periodID}/events", h.handlePeriodEvents)
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	query := r.URL.Query()
	h.list(w, r, user.OrganizationID, audit.Filter{
		Action:     query.Get("action"),
		EntityType: query.Get("entityType"),
		EntityID:   query.Get("entityId"),
	})
}

func (h *Handler) handlePeriodEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	h.list(w, r, user.OrganizationID, audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: audit.EntityPayrollPeriod,
		EntityID:   chi.URLParam(r, "periodID"),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, orgID string, filter audit.Filter) {
	page := shared.ParsePagination(r, 100, 500)
	events, err := h.Service.List(r.Context(), orgID, filter, page.Limit, page.Offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	events, err := h.Service.List(r.Context(), user.OrganizationID, audit.Filter{Action: r.URL.Query().Get("action")}, 10_000, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, evt.CreatedAt.Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}
