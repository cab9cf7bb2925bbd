package payrollhandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/auth"
	"nomina/internal/domain/benefits"
	"nomina/internal/domain/closure"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/domain/recalc"
	"nomina/internal/platform/apperror"
	"nomina/internal/transport/http/api"
	"nomina/internal/transport/http/middleware"
	"nomina/internal/transport/http/shared"
)

type Handler struct {
	Payroll     *payroll.Service
	Closer      *closure.Coordinator
	Recalc      *recalc.Pipeline
	Benefits    *benefits.Service
	Audit       audit.Recorder
	Idempotency middleware.IdempotencyStore
}

func NewHandler(svc *payroll.Service, closer *closure.Coordinator, pipeline *recalc.Pipeline, accruals *benefits.Service, recorder audit.Recorder, idem middleware.IdempotencyStore) *Handler {
	return &Handler{Payroll: svc, Closer: closer, Recalc: pipeline, Benefits: accruals, Audit: recorder, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Post("/calculate", h.handleCalculate)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Post("/ibc", h.handlePreviewIBC)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite)).Post("/periods", h.handleCreatePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/periods/{periodID}", h.handleGetPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/periods/{periodID}/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite)).Post("/periods/{periodID}/adjustments", h.handleCreateAdjustment)
		r.With(middleware.RequirePermission(auth.PermPayrollRun)).Post("/periods/{periodID}/run", h.handleRunPayroll)
		r.With(
			middleware.RequirePermission(auth.PermPayrollClose),
			middleware.Idempotency(h.Idempotency, "payroll.close"),
		).Post("/periods/{periodID}/close", h.handleClosePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollReopen)).Post("/periods/{periodID}/reopen", h.handleReopenPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Post("/periods/{periodID}/recalculate/preview", h.handlePreviewRecalculation)
		r.With(
			middleware.RequirePermission(auth.PermPayrollReopen),
			middleware.Idempotency(h.Idempotency, "payroll.recalculate"),
		).Post("/periods/{periodID}/recalculate/apply", h.handleApplyRecalculation)
		r.With(middleware.RequirePermission(auth.PermBenefitsAccrue)).Post("/benefits/accruals", h.handleAccrueBenefits)
	})
}

type adjustmentPayload struct {
	EmployeeID   string          `json:"employeeId"`
	Kind         payroll.Kind    `json:"kind" validate:"required"`
	Subtype      payroll.Subtype `json:"subtype"`
	Hours        decimal.Decimal `json:"hours"`
	Days         int             `json:"days"`
	Amount       decimal.Decimal `json:"amount"`
	Constitutive *bool           `json:"constitutive"`
	Description  string          `json:"description"`
}

// toAdjustment takes the kind's default constitutive flag unless the
// payload overrides it.
func (p adjustmentPayload) toAdjustment() payroll.Adjustment {
	adj := payroll.NewAdjustment(p.Kind, p.Subtype)
	adj.EmployeeID = p.EmployeeID
	adj.Hours = p.Hours
	adj.Days = p.Days
	adj.Amount = p.Amount
	adj.Description = p.Description
	if p.Constitutive != nil {
		adj.Constitutive = *p.Constitutive
	}
	return adj
}

func toAdjustments(payloads []adjustmentPayload) []payroll.Adjustment {
	out := make([]payroll.Adjustment, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.toAdjustment())
	}
	return out
}

type calculatePayload struct {
	EmployeeID    string              `json:"employeeId"`
	BaseSalary    decimal.Decimal     `json:"baseSalary"`
	WorkedDays    int                 `json:"workedDays"`
	PeriodType    string              `json:"periodType" validate:"required,oneof=weekly biweekly monthly"`
	ReferenceDate string              `json:"referenceDate" validate:"required"`
	Adjustments   []adjustmentPayload `json:"adjustments" validate:"dive"`
}

func (h *Handler) decodeCalculation(w http.ResponseWriter, r *http.Request) (payroll.EmployeeInput, period.Type, time.Time, bool) {
	reqID := middleware.GetRequestID(r.Context())
	var payload calculatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return payroll.EmployeeInput{}, "", time.Time{}, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	ref, _ := v.Date("referenceDate", payload.ReferenceDate)
	if v.Reject(w, reqID) {
		return payroll.EmployeeInput{}, "", time.Time{}, false
	}
	return payroll.EmployeeInput{
		EmployeeID:  payload.EmployeeID,
		BaseSalary:  payload.BaseSalary,
		WorkedDays:  payload.WorkedDays,
		Adjustments: toAdjustments(payload.Adjustments),
	}, period.Type(payload.PeriodType), ref, true
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	in, pt, ref, ok := h.decodeCalculation(w, r)
	if !ok {
		return
	}
	breakdown, err := h.Payroll.Calculator().Calculate(in, pt, ref)
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, breakdown, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePreviewIBC(w http.ResponseWriter, r *http.Request) {
	in, pt, ref, ok := h.decodeCalculation(w, r)
	if !ok {
		return
	}
	ibc, err := h.Payroll.Calculator().PreviewIBC(in, pt, ref)
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"employeeId": in.EmployeeID, "ibc": ibc}, middleware.GetRequestID(r.Context()))
}

type periodPayload struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=weekly biweekly monthly"`
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload periodPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Payroll.CreatePeriod(r.Context(), user.OrganizationID, start, end, period.Type(payload.Type))
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	h.audit(r, user, audit.ActionPeriodCreate, created.ID, nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	p, err := h.Payroll.GetPeriod(r.Context(), user.OrganizationID, chi.URLParam(r, "periodID"))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, p, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	periodID := chi.URLParam(r, "periodID")
	if _, err := h.Payroll.GetPeriod(r.Context(), user.OrganizationID, periodID); err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	records, err := h.Payroll.ListRecords(r.Context(), user.OrganizationID, periodID)
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	if records == nil {
		records = []payroll.Record{}
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload adjustmentPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	v.Required("employeeId", payload.EmployeeID, "is required")
	if v.Reject(w, reqID) {
		return
	}

	adj := payload.toAdjustment()
	adj.OrganizationID = user.OrganizationID
	adj.PeriodID = chi.URLParam(r, "periodID")
	stored, err := h.Payroll.AddAdjustment(r.Context(), adj)
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	api.Created(w, stored, reqID)
}

type runPayload struct {
	EmployeeIDs []string       `json:"employeeIds"`
	WorkedDays  map[string]int `json:"workedDays"`
}

func (h *Handler) handleRunPayroll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload runPayload
	if r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &payload); err != nil {
			api.FailError(w, r, err, reqID)
			return
		}
	}

	periodID := chi.URLParam(r, "periodID")
	result, err := h.Payroll.RunPeriod(r.Context(), payroll.RunRequest{
		OrganizationID: user.OrganizationID,
		PeriodID:       periodID,
		EmployeeIDs:    payload.EmployeeIDs,
		WorkedDays:     payload.WorkedDays,
	})
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	h.audit(r, user, audit.ActionPeriodRun, periodID, nil, map[string]any{
		"valid":   len(result.Valid),
		"invalid": len(result.Invalid),
		"issues":  result.Issues,
	})
	api.Success(w, result, reqID)
}

type closePayload struct {
	EmployeeIDs []string `json:"employeeIds" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload closePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	result, err := h.Closer.Close(r.Context(), closure.CloseRequest{
		OrganizationID: user.OrganizationID,
		PeriodID:       chi.URLParam(r, "periodID"),
		EmployeeIDs:    payload.EmployeeIDs,
		ActorID:        user.UserID,
	})
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	api.Success(w, result, reqID)
}

type reopenPayload struct {
	Justification string `json:"justification" validate:"required"`
}

func (h *Handler) handleReopenPeriod(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload reopenPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	reopened, err := h.Recalc.Reopen(r.Context(), recalc.ReopenRequest{
		OrganizationID: user.OrganizationID,
		PeriodID:       chi.URLParam(r, "periodID"),
		ActorID:        user.UserID,
		Justification:  payload.Justification,
	})
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	api.Success(w, reopened, reqID)
}

type changePayload struct {
	EmployeeID        string              `json:"employeeId" validate:"required"`
	ExpectedUpdatedAt *time.Time          `json:"expectedUpdatedAt"`
	WorkedDays        *int                `json:"workedDays"`
	Adjustments       []adjustmentPayload `json:"adjustments" validate:"dive"`
}

type recalculationPayload struct {
	Justification string          `json:"justification"`
	Reopen        bool            `json:"reopen"`
	Changes       []changePayload `json:"changes" validate:"required,min=1,dive"`
}

func toChanges(payloads []changePayload) []recalc.Change {
	out := make([]recalc.Change, 0, len(payloads))
	for _, p := range payloads {
		change := recalc.Change{EmployeeID: p.EmployeeID, WorkedDays: p.WorkedDays}
		if p.ExpectedUpdatedAt != nil {
			change.ExpectedUpdatedAt = *p.ExpectedUpdatedAt
		}
		for _, adj := range p.Adjustments {
			a := adj.toAdjustment()
			a.EmployeeID = p.EmployeeID
			change.Adjustments = append(change.Adjustments, a)
		}
		out = append(out, change)
	}
	return out
}

func (h *Handler) decodeRecalculation(w http.ResponseWriter, r *http.Request) (recalculationPayload, bool) {
	reqID := middleware.GetRequestID(r.Context())
	var payload recalculationPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return payload, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return payload, false
	}
	return payload, true
}

func (h *Handler) handlePreviewRecalculation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payload, ok := h.decodeRecalculation(w, r)
	if !ok {
		return
	}
	diffs, err := h.Recalc.Preview(r.Context(), user.OrganizationID, chi.URLParam(r, "periodID"), toChanges(payload.Changes))
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]any{"diffs": diffs, "totals": recalc.Totals(diffs)}, middleware.GetRequestID(r.Context()))
}

// handleApplyRecalculation applies to a reopened period, or runs the whole
// reopen, apply and close sequence when the payload asks to reopen.
func (h *Handler) handleApplyRecalculation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	payload, ok := h.decodeRecalculation(w, r)
	if !ok {
		return
	}
	req := recalc.ApplyRequest{
		OrganizationID: user.OrganizationID,
		PeriodID:       chi.URLParam(r, "periodID"),
		ActorID:        user.UserID,
		Justification:  payload.Justification,
		Changes:        toChanges(payload.Changes),
	}
	apply := h.Recalc.Apply
	if payload.Reopen {
		apply = h.Recalc.ReopenApplyReclose
	}
	result, err := apply(r.Context(), req)
	if err != nil {
		api.FailError(w, r, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

type accrualPayload struct {
	EmployeeID    string           `json:"employeeId" validate:"required"`
	MonthlySalary *decimal.Decimal `json:"monthlySalary"`
	PeriodStart   string           `json:"periodStart" validate:"required"`
	PeriodEnd     string           `json:"periodEnd" validate:"required"`
	Kinds         []benefits.Kind  `json:"kinds"`
}

func (h *Handler) handleAccrueBenefits(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	var payload accrualPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	start, _ := v.Date("periodStart", payload.PeriodStart)
	end, _ := v.Date("periodEnd", payload.PeriodEnd)
	for i, kind := range payload.Kinds {
		if !kind.Valid() {
			v.Add(fmt.Sprintf("kinds[%d]", i), fmt.Sprintf("unknown benefit kind %q", kind))
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	salary := decimal.Zero
	if payload.MonthlySalary != nil {
		salary = *payload.MonthlySalary
	} else {
		employee, err := h.Payroll.Store().GetEmployee(r.Context(), user.OrganizationID, payload.EmployeeID)
		if errors.Is(err, payroll.ErrEmployeeNotFound) {
			err = apperror.Wrap(err, apperror.KindNotFound, "employee not found")
		}
		if err != nil {
			api.FailError(w, r, err, reqID)
			return
		}
		salary = employee.BaseSalary
	}

	req := benefits.AccrualRequest{
		OrganizationID: user.OrganizationID,
		EmployeeID:     payload.EmployeeID,
		MonthlySalary:  salary,
		PeriodStart:    start,
		PeriodEnd:      end,
	}
	var calcs []benefits.Calculation
	var err error
	if len(payload.Kinds) == 0 {
		calcs, err = h.Benefits.AccrueAll(r.Context(), req)
	} else {
		for _, kind := range payload.Kinds {
			var calc benefits.Calculation
			calc, err = h.Benefits.Accrue(r.Context(), req, kind)
			if err != nil {
				break
			}
			calcs = append(calcs, calc)
		}
	}
	if err != nil {
		api.FailError(w, r, err, reqID)
		return
	}
	api.Success(w, calcs, reqID)
}

func (h *Handler) audit(r *http.Request, user auth.UserContext, action, periodID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.OrganizationID, user.UserID, action, audit.EntityPayrollPeriod, periodID, before, after); err != nil {
		slog.WarnContext(r.Context(), "audit record failed", "action", action, "period_id", periodID, "err", err)
	}
}
