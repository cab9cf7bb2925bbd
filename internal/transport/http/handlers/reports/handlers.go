package reportshandler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nomina/internal/domain/auth"
	"nomina/internal/domain/reports"
	"nomina/internal/transport/http/api"
	"nomina/internal/transport/http/middleware"
)

type Handler struct {
	Service *reports.Service
}

func NewHandler(service *reports.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports/periods/{periodID}", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermPayrollRead))
		r.Get("/summary", h.handleSummary)
		r.Get("/register", h.handleRegister)
		r.Get("/payslips/{employeeID}", h.handlePayslip)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	summary, err := h.Service.Summary(r.Context(), user.OrganizationID, chi.URLParam(r, "periodID"))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

// Both file routes render into a buffer first so a failure still gets a
// JSON error instead of a truncated file.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	var buf bytes.Buffer
	if err := h.Service.Register(r.Context(), user.OrganizationID, periodID, &buf); err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payroll-register-%s.csv", periodID))
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(r.Context(), "register write failed", "err", err)
	}
}

func (h *Handler) handlePayslip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	employeeID := chi.URLParam(r, "employeeID")
	var buf bytes.Buffer
	if err := h.Service.Payslip(r.Context(), user.OrganizationID, periodID, employeeID, &buf); err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payslip-%s-%s.pdf", periodID, employeeID))
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(r.Context(), "payslip write failed", "err", err)
	}
}
