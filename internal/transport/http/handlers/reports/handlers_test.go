package reportshandler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/domain/auth"
	"nomina/internal/domain/employee"
	"nomina/internal/domain/legal"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
	"nomina/internal/domain/period"
	"nomina/internal/domain/reports"
	"nomina/internal/transport/http/middleware"
)

const secret = "reports-handler-secret"

func setup(t *testing.T) (http.Handler, string) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	store.PutEmployee(payroll.Employee{ID: "emp-1", OrganizationID: "org-1", FirstName: "Ana", LastName: "Rojas",
		BaseSalary: decimal.NewFromInt(1_300_000)})
	svc := payroll.NewService(store, payroll.NewCalculator(legal.DefaultTable()),
		payroll.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	p, err := svc.CreatePeriod(ctx, "org-1", time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC), period.TypeMonthly)
	require.NoError(t, err)
	_, err = svc.RunPeriod(ctx, payroll.RunRequest{OrganizationID: "org-1", PeriodID: p.ID})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Auth(secret))
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		NewHandler(reports.NewService(svc, employee.NewService(store, nil))).RegisterRoutes(r)
	})
	return r, p.ID
}

func get(t *testing.T, router http.Handler, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	tok, err := auth.GenerateToken(secret, auth.Claims{UserID: "user-1", OrganizationID: "org-1", Role: role}, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReportRoutes(t *testing.T) {
	router, periodID := setup(t)
	base := "/api/v1/reports/periods/" + periodID

	rec := get(t, router, auth.RoleViewer, base+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":1`)

	rec = get(t, router, auth.RoleViewer, base+"/register")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "employee_id,status"))

	rec = get(t, router, auth.RoleViewer, base+"/payslips/emp-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = get(t, router, auth.RoleViewer, base+"/payslips/nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, auth.RoleViewer, "/api/v1/reports/periods/missing/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
