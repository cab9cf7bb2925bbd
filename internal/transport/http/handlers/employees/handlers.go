package employeehandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"nomina/internal/domain/auth"
	"nomina/internal/domain/employee"
	"nomina/internal/domain/payroll"
	"nomina/internal/transport/http/api"
	"nomina/internal/transport/http/middleware"
	"nomina/internal/transport/http/shared"
)

type Handler struct {
	Service *employee.Service
}

func NewHandler(service *employee.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/", h.handleListEmployees)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite)).Post("/", h.handleCreateEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/{employeeID}", h.handleGetEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite)).Put("/{employeeID}", h.handleUpdateEmployee)
	})
}

type employeePayload struct {
	ID            string          `json:"id"`
	FirstName     string          `json:"firstName" validate:"required"`
	LastName      string          `json:"lastName" validate:"required"`
	BaseSalary    decimal.Decimal `json:"baseSalary"`
	ContractType  string          `json:"contractType"`
	HealthInsurer string          `json:"healthInsurer"`
	PensionFund   string          `json:"pensionFund"`
	RiskInsurer   string          `json:"riskInsurer"`
	BankName      string          `json:"bankName"`
	BankAccount   string          `json:"bankAccount"`
	Status        string          `json:"status" validate:"omitempty,oneof=active inactive terminated"`
}

func (p employeePayload) toEmployee(orgID string) payroll.Employee {
	return payroll.Employee{
		ID:             p.ID,
		OrganizationID: orgID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		BaseSalary:     p.BaseSalary,
		ContractType:   p.ContractType,
		HealthInsurer:  p.HealthInsurer,
		PensionFund:    p.PensionFund,
		RiskInsurer:    p.RiskInsurer,
		BankName:       p.BankName,
		BankAccount:    p.BankAccount,
		Status:         p.Status,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (employeePayload, bool) {
	reqID := middleware.GetRequestID(r.Context())
	var payload employeePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return payload, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if !payload.BaseSalary.IsPositive() {
		v.Add("baseSalary", "must be greater than zero")
	}
	if v.Reject(w, reqID) {
		return payload, false
	}
	return payload, true
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	employees, err := h.Service.List(r.Context(), user.OrganizationID, r.URL.Query().Get("status"))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	out := make([]payroll.Employee, 0, len(employees))
	for _, e := range employees {
		out = append(out, employee.FilterSensitiveFields(e, user))
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	e, err := h.Service.Get(r.Context(), user.OrganizationID, chi.URLParam(r, "employeeID"))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, employee.FilterSensitiveFields(e, user), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.Service.Create(r.Context(), user.UserID, payload.toEmployee(user.OrganizationID))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Created(w, employee.FilterSensitiveFields(created, user), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	payload.ID = chi.URLParam(r, "employeeID")
	updated, err := h.Service.Update(r.Context(), user.UserID, payload.toEmployee(user.OrganizationID))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, employee.FilterSensitiveFields(updated, user), middleware.GetRequestID(r.Context()))
}
