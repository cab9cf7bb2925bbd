package recalc_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/benefits"
	"nomina/internal/domain/closure"
	"nomina/internal/domain/legal"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
	"nomina/internal/domain/period"
	"nomina/internal/domain/recalc"
	"nomina/internal/platform/apperror"
)

const org = "org-1"

type env struct {
	store    *memstore.Memory
	payroll  *payroll.Service
	closer   *closure.Coordinator
	audit    *audit.Memory
	pipeline *recalc.Pipeline
	period   period.Period
}

func newEnv(t *testing.T) *env {
	t.Helper()
	now := func() time.Time { return time.Date(2024, time.September, 3, 8, 0, 0, 0, time.UTC) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	calc := payroll.NewCalculator(legal.DefaultTable())
	e := &env{
		store:   store,
		payroll: payroll.NewService(store, calc, payroll.WithClock(now), payroll.WithLogger(logger)),
		audit:   audit.NewMemory(),
	}
	e.closer = closure.NewCoordinator(store, calc, closure.DefaultConfig(),
		closure.WithAccruer(benefits.NewService(store, legal.DefaultTable()).WithClock(now)),
		closure.WithLogger(logger),
		closure.WithClock(now),
	)
	e.pipeline = recalc.NewPipeline(e.payroll, e.closer, recalc.WithAudit(e.audit), recalc.WithLogger(logger))

	store.PutEmployee(payroll.Employee{ID: "emp-1", OrganizationID: org, BaseSalary: decimal.NewFromInt(1_300_000)})
	store.PutEmployee(payroll.Employee{ID: "emp-2", OrganizationID: org, BaseSalary: decimal.NewFromInt(1_800_000)})

	ctx := context.Background()
	p, err := e.payroll.CreatePeriod(ctx, org,
		time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC),
		period.TypeMonthly)
	require.NoError(t, err)
	e.period = p
	return e
}

// closeAll runs and closes the period for every employee.
func (e *env) closeAll(t *testing.T) closure.ClosureResult {
	t.Helper()
	ctx := context.Background()
	_, err := e.payroll.RunPeriod(ctx, payroll.RunRequest{OrganizationID: org, PeriodID: e.period.ID})
	require.NoError(t, err)
	res, err := e.closer.Close(ctx, closure.CloseRequest{OrganizationID: org, PeriodID: e.period.ID, EmployeeIDs: []string{"emp-1", "emp-2"}})
	require.NoError(t, err)
	return res
}

func tenOvertimeHours() recalc.Change {
	return recalc.Change{
		EmployeeID:  "emp-1",
		Adjustments: []payroll.Adjustment{payroll.Overtime(payroll.SubtypeDaytime, decimal.NewFromInt(10))},
	}
}

func TestReopenApplyRecloseStoresRecalculatedTotals(t *testing.T) {
	e := newEnv(t)
	first := e.closeAll(t)

	res, err := e.pipeline.ReopenApplyReclose(context.Background(), recalc.ApplyRequest{
		OrganizationID: org,
		PeriodID:       e.period.ID,
		ActorID:        "user-1",
		Justification:  "missing overtime for August",
		Changes:        []recalc.Change{tenOvertimeHours()},
	})
	require.NoError(t, err)

	records, err := e.store.ListRecords(context.Background(), org, e.period.ID)
	require.NoError(t, err)
	p, err := e.store.GetPeriod(context.Background(), org, e.period.ID)
	require.NoError(t, err)

	assert.Equal(t, period.StateClosed, p.State)
	assert.True(t, p.Totals.Equal(payroll.SumRecords(records)))
	assert.False(t, p.Totals.Equal(first.Totals))
	assert.True(t, first.Totals.Gross.Add(decimal.NewFromInt(81_658)).Equal(p.Totals.Gross), p.Totals.Gross.String())
	assert.Equal(t, 2, p.EmployeeCount)
	for _, r := range records {
		assert.True(t, r.Finalized, r.EmployeeID)
	}

	require.Len(t, res.Diffs, 1)
	assert.True(t, decimal.NewFromInt(81_658).Equal(res.Diffs[0].GrossDelta))
	assert.Len(t, e.store.Reopens(e.period.ID), 1)
	assert.Len(t, e.audit.Events(audit.ActionPeriodReopen), 1)
	assert.Len(t, e.audit.Events(audit.ActionRecalcApply), 1)
}

func TestPreviewPersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	ctx := context.Background()
	before, err := e.store.ListRecords(ctx, org, e.period.ID)
	require.NoError(t, err)

	diffs, err := e.pipeline.Preview(ctx, org, e.period.ID, []recalc.Change{tenOvertimeHours()})
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.NotNil(t, diffs[0].Before)
	assert.True(t, decimal.NewFromInt(1_462_000).Equal(diffs[0].Before.GrossPay))
	assert.True(t, decimal.NewFromInt(1_543_658).Equal(diffs[0].After.GrossPay))
	assert.False(t, diffs[0].Stale)
	assert.True(t, decimal.NewFromInt(1_543_658).Equal(recalc.Totals(diffs).Gross))

	after, err := e.store.ListRecords(ctx, org, e.period.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	adjustments, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, adjustments)
}

func TestApplyRejectsStaleAdjustmentSet(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	ctx := context.Background()
	_, err := e.pipeline.Reopen(ctx, recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, ActorID: "user-1", Justification: "fix bonus"})
	require.NoError(t, err)

	// A concurrent edit lands after the caller read an empty set.
	_, err = e.payroll.AddAdjustment(ctx, payroll.Adjustment{
		OrganizationID: org, PeriodID: e.period.ID, EmployeeID: "emp-1",
		Kind: payroll.KindBonus, Amount: decimal.NewFromInt(50_000),
	})
	require.NoError(t, err)

	_, err = e.pipeline.Apply(ctx, recalc.ApplyRequest{
		OrganizationID: org, PeriodID: e.period.ID, ActorID: "user-1",
		Justification: "fix bonus",
		Changes:       []recalc.Change{tenOvertimeHours()},
	})
	require.ErrorIs(t, err, apperror.ErrStaleAdjustmentSet)

	adjustments, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-1")
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, payroll.KindBonus, adjustments[0].Kind)

	p, err := e.store.GetPeriod(ctx, org, e.period.ID)
	require.NoError(t, err)
	assert.Equal(t, period.StateReopened, p.State)
}

func TestApplyWithMatchingTimestampReplacesSet(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	ctx := context.Background()
	_, err := e.pipeline.Reopen(ctx, recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, Justification: "swap bonus"})
	require.NoError(t, err)
	added, err := e.payroll.AddAdjustment(ctx, payroll.Adjustment{
		OrganizationID: org, PeriodID: e.period.ID, EmployeeID: "emp-1",
		Kind: payroll.KindBonus, Amount: decimal.NewFromInt(50_000),
	})
	require.NoError(t, err)

	change := tenOvertimeHours()
	change.ExpectedUpdatedAt = added.UpdatedAt
	_, err = e.pipeline.Apply(ctx, recalc.ApplyRequest{
		OrganizationID: org, PeriodID: e.period.ID, Justification: "swap bonus",
		Changes: []recalc.Change{change},
	})
	require.NoError(t, err)

	adjustments, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-1")
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, payroll.KindOvertime, adjustments[0].Kind)
}

func TestReopenRequiresJustification(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)

	_, err := e.pipeline.Reopen(context.Background(), recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, Justification: "  "})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Empty(t, e.store.Reopens(e.period.ID))
}

func TestReopenDraftIsInvalidTransition(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.Reopen(context.Background(), recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, Justification: "typo"})
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestApplyOnClosedPeriodIsInvalidTransition(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	_, err := e.pipeline.Apply(context.Background(), recalc.ApplyRequest{
		OrganizationID: org, PeriodID: e.period.ID, Justification: "late",
		Changes: []recalc.Change{tenOvertimeHours()},
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestApplyRejectsInvalidRecalculation(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	ctx := context.Background()
	_, err := e.pipeline.Reopen(ctx, recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, Justification: "days"})
	require.NoError(t, err)

	change := tenOvertimeHours()
	days := 40
	change.WorkedDays = &days
	_, err = e.pipeline.Apply(ctx, recalc.ApplyRequest{
		OrganizationID: org, PeriodID: e.period.ID, Justification: "days",
		Changes: []recalc.Change{change},
	})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	adjustments, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, adjustments)
}

func TestApplyWritesNothingWhenAnySetIsStale(t *testing.T) {
	e := newEnv(t)
	e.closeAll(t)
	ctx := context.Background()
	_, err := e.pipeline.Reopen(ctx, recalc.ReopenRequest{OrganizationID: org, PeriodID: e.period.ID, ActorID: "user-1", Justification: "add overtime"})
	require.NoError(t, err)
	beforeRecords, err := e.store.ListRecords(ctx, org, e.period.ID)
	require.NoError(t, err)

	// emp-2's set is edited after the preview read it and before the write.
	e.store.SetHooks(memstore.Hooks{BeforeReplaceAdjustments: func(ctx context.Context) error {
		e.store.SetHooks(memstore.Hooks{})
		_, err := e.store.CreateAdjustment(ctx, payroll.Adjustment{
			OrganizationID: org, PeriodID: e.period.ID, EmployeeID: "emp-2",
			Kind: payroll.KindBonus, Amount: decimal.NewFromInt(20_000),
			UpdatedAt: time.Date(2024, time.September, 3, 9, 0, 0, 0, time.UTC),
		})
		return err
	}})
	_, err = e.pipeline.Apply(ctx, recalc.ApplyRequest{
		OrganizationID: org, PeriodID: e.period.ID, ActorID: "user-1",
		Justification: "add overtime",
		Changes: []recalc.Change{
			tenOvertimeHours(),
			{EmployeeID: "emp-2", Adjustments: []payroll.Adjustment{payroll.Overtime(payroll.SubtypeNight, decimal.NewFromInt(2))}},
		},
	})
	require.ErrorIs(t, err, apperror.ErrStaleAdjustmentSet)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "emp-2", appErr.Details[0].EmployeeID)

	emp1, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, emp1)
	emp2, err := e.store.ListAdjustments(ctx, org, e.period.ID, "emp-2")
	require.NoError(t, err)
	require.Len(t, emp2, 1)
	assert.Equal(t, payroll.KindBonus, emp2[0].Kind)

	afterRecords, err := e.store.ListRecords(ctx, org, e.period.ID)
	require.NoError(t, err)
	assert.Equal(t, beforeRecords, afterRecords)
	p, err := e.store.GetPeriod(ctx, org, e.period.ID)
	require.NoError(t, err)
	assert.Equal(t, period.StateReopened, p.State)
}
