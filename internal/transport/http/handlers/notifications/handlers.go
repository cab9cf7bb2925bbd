package notificationshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nomina/internal/domain/auth"
	"nomina/internal/domain/notifications"
	"nomina/internal/transport/http/api"
	"nomina/internal/transport/http/middleware"
	"nomina/internal/transport/http/shared"
)

type Handler struct {
	Service *notifications.Service
}

func NewHandler(service *notifications.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/alerts", h.handleListAlerts)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	alerts := h.Service.Recent(user.OrganizationID, page.Limit)
	if alerts == nil {
		alerts = []notifications.Alert{}
	}
	api.Success(w, alerts, middleware.GetRequestID(r.Context()))
}
