package payroll_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/domain/legal"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
)

const org = "org-1"

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func newService(t *testing.T) (*payroll.Service, *memstore.Memory) {
	t.Helper()
	store := memstore.New()
	store.PutEmployee(payroll.Employee{ID: "emp-1", OrganizationID: org, BaseSalary: decimal.NewFromInt(1_300_000)})
	store.PutEmployee(payroll.Employee{ID: "emp-2", OrganizationID: org, BaseSalary: decimal.NewFromInt(900_000)})
	store.PutEmployee(payroll.Employee{ID: "emp-3", OrganizationID: org, BaseSalary: decimal.NewFromInt(3_000_000), Status: "terminated"})
	svc := payroll.NewService(store, payroll.NewCalculator(legal.DefaultTable()),
		payroll.WithWorkers(2),
		payroll.WithClock(func() time.Time { return day(time.September, 1) }),
		payroll.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return svc, store
}

func TestRunPeriodKeepsGoingPastInvalidEmployees(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p, err := svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 31), period.TypeMonthly)
	require.NoError(t, err)

	res, err := svc.RunPeriod(ctx, payroll.RunRequest{OrganizationID: org, PeriodID: p.ID})
	require.NoError(t, err)

	require.Len(t, res.Valid, 1)
	assert.Equal(t, "emp-1", res.Valid[0].EmployeeID)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, "emp-2", res.Invalid[0].EmployeeID)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, "baseSalary", res.Issues[0].Field)

	records, err := store.ListRecords(ctx, org, p.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, payroll.RecordStatusValid, records[0].Status)
	assert.Equal(t, payroll.RecordStatusInvalid, records[1].Status)
}

func TestRunPeriodReportsUnknownEmployees(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 15), period.TypeBiweekly)
	require.NoError(t, err)

	res, err := svc.RunPeriod(ctx, payroll.RunRequest{
		OrganizationID: org,
		PeriodID:       p.ID,
		EmployeeIDs:    []string{"emp-1", "nobody"},
		WorkedDays:     map[string]int{"emp-1": 10},
	})
	require.NoError(t, err)
	require.Len(t, res.Valid, 1)
	assert.Equal(t, 10, res.Valid[0].WorkedDays)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "nobody", res.Issues[0].EmployeeID)
}

func TestRunPeriodRejectsClosedPeriod(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p, err := svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 31), period.TypeMonthly)
	require.NoError(t, err)
	_, err = store.ClosePeriod(ctx, org, p.ID, period.StateDraft, p.Version, period.Totals{}, 0, day(time.September, 1))
	require.NoError(t, err)

	_, err = svc.RunPeriod(ctx, payroll.RunRequest{OrganizationID: org, PeriodID: p.ID})
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, payroll.ErrPeriodNotEditable)
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 15), period.TypeBiweekly)
	require.NoError(t, err)

	_, err = svc.CreatePeriod(ctx, org, day(time.August, 10), day(time.August, 24), period.TypeBiweekly)
	assert.ErrorIs(t, err, apperror.ErrValidationFailed)

	_, err = svc.CreatePeriod(ctx, org, day(time.August, 16), day(time.August, 31), period.TypeBiweekly)
	assert.NoError(t, err)

	_, err = svc.CreatePeriod(ctx, "org-2", day(time.August, 1), day(time.August, 15), period.TypeBiweekly)
	assert.NoError(t, err)
}

func TestCreatePeriodValidatesRange(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreatePeriod(ctx, org, day(time.August, 10), day(time.August, 1), period.TypeMonthly)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 20), period.TypeWeekly)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 7), period.Type("daily"))
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestAddAdjustmentChecksPeriodAndKind(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p, err := svc.CreatePeriod(ctx, org, day(time.August, 1), day(time.August, 31), period.TypeMonthly)
	require.NoError(t, err)

	adj := payroll.Overtime(payroll.SubtypeNight, decimal.NewFromInt(4))
	adj.OrganizationID, adj.PeriodID, adj.EmployeeID = org, p.ID, "emp-1"
	stored, err := svc.AddAdjustment(ctx, adj)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, day(time.September, 1), stored.UpdatedAt)

	bad := adj
	bad.Kind = "tip"
	_, err = svc.AddAdjustment(ctx, bad)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	missing := adj
	missing.EmployeeID = "nobody"
	_, err = svc.AddAdjustment(ctx, missing)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = store.ClosePeriod(ctx, org, p.ID, period.StateDraft, p.Version, period.Totals{}, 0, day(time.September, 1))
	require.NoError(t, err)
	_, err = svc.AddAdjustment(ctx, adj)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}
