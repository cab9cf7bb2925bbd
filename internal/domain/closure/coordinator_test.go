package closure_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
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
	"nomina/internal/platform/apperror"
	"nomina/internal/platform/metrics"
	"nomina/internal/platform/retry"
)

const org = "org-1"

var clock = time.Date(2024, time.September, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Memory
	payroll  *payroll.Service
	audit    *audit.Memory
	metrics  *metrics.Collector
	coord    *closure.Coordinator
	period   period.Period
	accruals *benefits.Service
	alerts   *recordingAlerter
}

type recordingAlerter struct {
	mu     sync.Mutex
	bodies []string
}

func (a *recordingAlerter) Alert(_ context.Context, _, subject, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bodies = append(a.bodies, subject+"\n"+body)
	return nil
}

func (a *recordingAlerter) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.bodies...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newFixture(t *testing.T, cfg closure.Config) *fixture {
	t.Helper()
	store := memstore.New()
	calc := payroll.NewCalculator(legal.DefaultTable())
	now := func() time.Time { return clock }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		store:    store,
		payroll:  payroll.NewService(store, calc, payroll.WithClock(now), payroll.WithLogger(logger)),
		audit:    audit.NewMemory(),
		metrics:  metrics.New(),
		accruals: benefits.NewService(store, legal.DefaultTable()).WithClock(now),
		alerts:   &recordingAlerter{},
	}
	if cfg.Rollback.MaxAttempts == 0 {
		cfg.Rollback = retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond, Sleep: noSleep}
	}
	f.coord = closure.NewCoordinator(store, calc, cfg,
		closure.WithAccruer(f.accruals),
		closure.WithAudit(f.audit),
		closure.WithAlerter(f.alerts),
		closure.WithMetrics(f.metrics),
		closure.WithLogger(logger),
		closure.WithClock(now),
	)

	for _, e := range []payroll.Employee{
		{ID: "emp-1", OrganizationID: org, BaseSalary: decimal.NewFromInt(1_300_000)},
		{ID: "emp-2", OrganizationID: org, BaseSalary: decimal.NewFromInt(2_000_000)},
		{ID: "emp-3", OrganizationID: org, BaseSalary: decimal.NewFromInt(1_500_000)},
	} {
		store.PutEmployee(e)
	}

	ctx := context.Background()
	p, err := f.payroll.CreatePeriod(ctx, org,
		time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC),
		period.TypeMonthly)
	require.NoError(t, err)
	f.period = p
	return f
}

func (f *fixture) run(t *testing.T, workedDays map[string]int) payroll.RunResult {
	t.Helper()
	res, err := f.payroll.RunPeriod(context.Background(), payroll.RunRequest{
		OrganizationID: org,
		PeriodID:       f.period.ID,
		WorkedDays:     workedDays,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) request(ids ...string) closure.CloseRequest {
	return closure.CloseRequest{OrganizationID: org, PeriodID: f.period.ID, EmployeeIDs: ids, ActorID: "user-1"}
}

func (f *fixture) state(t *testing.T) (period.Period, []payroll.Record) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.GetPeriod(ctx, org, f.period.ID)
	require.NoError(t, err)
	records, err := f.store.ListRecords(ctx, org, f.period.ID)
	require.NoError(t, err)
	return p, records
}

func countFinalized(records []payroll.Record) int {
	n := 0
	for _, r := range records {
		if r.Finalized {
			n++
		}
	}
	return n
}

func TestCloseFinalizesSelectionAndStoresMatchingTotals(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	run := f.run(t, nil)
	require.Len(t, run.Valid, 3)

	res, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-2", "emp-3"))
	require.NoError(t, err)

	assert.Equal(t, period.StateClosed, res.Period.State)
	assert.Equal(t, 3, res.EmployeeCount)
	assert.Nil(t, res.Inconsistency)
	assert.True(t, res.Totals.Equal(payroll.SumRecords(res.Records)))

	p, records := f.state(t)
	assert.Equal(t, period.StateClosed, p.State)
	assert.True(t, p.Totals.Equal(payroll.SumRecords(records)))
	assert.Equal(t, 3, countFinalized(records))
	assert.Equal(t, int64(2), p.Version)

	assert.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), res.Next.StartDate)
	assert.Equal(t, time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC), res.Next.EndDate)
	assert.Equal(t, period.TypeMonthly, res.Next.Type)

	assert.Len(t, res.Accruals, 3*len(benefits.Kinds()))
	assert.Len(t, f.store.Calculations("emp-1"), len(benefits.Kinds()))
	assert.Len(t, f.audit.Events(audit.ActionPeriodClose), 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["closuresTotal"])
}

func TestCloseOnlyFinalizesSelectedEmployees(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)

	res, err := f.coord.Close(context.Background(), f.request("emp-2", "emp-1", "emp-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmployeeCount)

	_, records := f.state(t)
	for _, r := range records {
		assert.Equal(t, r.EmployeeID != "emp-3", r.Finalized, r.EmployeeID)
	}
}

func TestCloseWithInvalidRecordLeavesDraftUntouched(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	run := f.run(t, map[string]int{"emp-3": 45})
	require.Len(t, run.Invalid, 1)
	before, beforeRecords := f.state(t)

	_, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-2", "emp-3"))
	require.ErrorIs(t, err, apperror.ErrValidationFailed)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "emp-3", appErr.Details[0].EmployeeID)
	assert.False(t, appErr.RolledBack)

	after, afterRecords := f.state(t)
	assert.Equal(t, period.StateDraft, after.State)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRecords, afterRecords)
	assert.Zero(t, countFinalized(afterRecords))
	assert.Empty(t, f.store.Calculations("emp-1"))
}

func TestCloseCollectsEveryPreconditionFailure(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, map[string]int{"emp-3": -1})

	_, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-3", "ghost"))
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidationFailed, appErr.Kind)

	var ids []string
	for _, d := range appErr.Details {
		ids = append(ids, d.EmployeeID)
	}
	assert.Equal(t, []string{"emp-3", "ghost"}, ids)
}

func TestCloseRequiresSelection(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)

	_, err := f.coord.Close(context.Background(), f.request())
	require.ErrorIs(t, err, apperror.ErrValidationFailed)
}

func TestCloseTwiceIsInvalidTransition(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))
	require.NoError(t, err)

	_, err = f.coord.Close(context.Background(), f.request("emp-1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestCloseUnknownPeriod(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	_, err := f.coord.Close(context.Background(), closure.CloseRequest{OrganizationID: org, PeriodID: "missing", EmployeeIDs: []string{"emp-1"}})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCloseRollsBackToExactSnapshotWhenFinalizeFails(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)
	before, beforeRecords := f.state(t)

	f.store.SetHooks(memstore.Hooks{BeforeFinalize: func(context.Context) error {
		return errors.New("disk full")
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-2"))

	require.ErrorIs(t, err, apperror.ErrCommitFailed)
	appErr, _ := apperror.As(err)
	assert.True(t, appErr.RolledBack)

	after, afterRecords := f.state(t)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRecords, afterRecords)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["rollbacksTotal"])
}

func TestCloseRollsBackAccrualsWrittenBeforeFailure(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)
	before, beforeRecords := f.state(t)

	calls := 0
	f.store.SetHooks(memstore.Hooks{BeforeUpsertCalculation: func(context.Context) error {
		calls++
		if calls > 5 {
			return errors.New("benefits table locked")
		}
		return nil
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-2"))
	require.ErrorIs(t, err, apperror.ErrCommitFailed)

	after, afterRecords := f.state(t)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRecords, afterRecords)
	assert.Empty(t, f.store.Calculations("emp-1"))
	assert.Empty(t, f.store.Calculations("emp-2"))
}

func TestCloseReportsCriticalInconsistencyWhenRestoreFails(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)

	restores := 0
	f.store.SetHooks(memstore.Hooks{
		BeforeFinalize: func(context.Context) error { return errors.New("connection reset") },
		BeforeRestorePeriod: func(context.Context) error {
			restores++
			return errors.New("connection reset")
		},
	})
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))

	require.ErrorIs(t, err, apperror.ErrCriticalInconsistency)
	appErr, _ := apperror.As(err)
	assert.False(t, appErr.RolledBack)
	assert.Equal(t, 3, restores)
	assert.Len(t, f.audit.Events(audit.ActionRollbackCrit), 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["criticalInconsistencyTotal"])
	alerts := f.alerts.sent()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], f.period.ID)
	assert.Contains(t, alerts[0], "connection reset")
}

func TestCloseRetriesRestoreUntilItSucceeds(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)
	before, _ := f.state(t)

	restores := 0
	f.store.SetHooks(memstore.Hooks{
		BeforeFinalize: func(context.Context) error { return errors.New("connection reset") },
		BeforeRestoreRecords: func(context.Context) error {
			restores++
			if restores < 2 {
				return errors.New("connection reset")
			}
			return nil
		},
	})
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))
	require.ErrorIs(t, err, apperror.ErrCommitFailed)

	after, _ := f.state(t)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, restores)
	assert.Empty(t, f.alerts.sent())
}

func TestCloseDetectsConcurrentModification(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)

	f.store.SetHooks(memstore.Hooks{BeforeClosePeriod: func(ctx context.Context) error {
		// Another closer gets there first.
		f.store.SetHooks(memstore.Hooks{})
		_, err := f.store.ClosePeriod(ctx, org, f.period.ID, period.StateDraft, 1, period.Totals{}, 0, clock)
		return err
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))

	require.ErrorIs(t, err, apperror.ErrConcurrentModification)
	assert.True(t, apperror.IsRetryable(err))
	_, records := f.state(t)
	assert.Zero(t, countFinalized(records))
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["concurrentConflictsTotal"])
}

func TestCloseTimesOutAndRollsBack(t *testing.T) {
	cfg := closure.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	f := newFixture(t, cfg)
	f.run(t, nil)
	before, beforeRecords := f.state(t)

	f.store.SetHooks(memstore.Hooks{BeforeFinalize: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1", "emp-2"))

	require.ErrorIs(t, err, apperror.ErrTimeout)
	appErr, _ := apperror.As(err)
	assert.True(t, appErr.RolledBack)

	after, afterRecords := f.state(t)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRecords, afterRecords)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["closureTimeoutsTotal"])
}

func TestCloseRecomputesFromCurrentAdjustments(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)

	// Added after the run; the stored record is now stale.
	_, err := f.payroll.AddAdjustment(context.Background(), payroll.Adjustment{
		OrganizationID: org,
		PeriodID:       f.period.ID,
		EmployeeID:     "emp-1",
		Kind:           payroll.KindBonus,
		Amount:         decimal.NewFromInt(100_000),
	})
	require.NoError(t, err)

	res, err := f.coord.Close(context.Background(), f.request("emp-1"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1_562_000).Equal(res.Totals.Gross), res.Totals.Gross.String())
}

func TestCloseRollsBackWhenCloseWriteLandsButTimesOut(t *testing.T) {
	cfg := closure.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	f := newFixture(t, cfg)
	f.run(t, nil)
	before, beforeRecords := f.state(t)

	// The period row is switched to closed, then the deadline hits before
	// the store call returns.
	f.store.SetHooks(memstore.Hooks{AfterClosePeriod: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))

	require.ErrorIs(t, err, apperror.ErrTimeout)
	appErr, _ := apperror.As(err)
	assert.True(t, appErr.RolledBack)

	after, afterRecords := f.state(t)
	assert.Equal(t, period.StateDraft, after.State)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRecords, afterRecords)
	assert.Zero(t, countFinalized(afterRecords))
}

func TestCloseRollsBackWhenCloseWriteFails(t *testing.T) {
	f := newFixture(t, closure.DefaultConfig())
	f.run(t, nil)
	before, _ := f.state(t)

	f.store.SetHooks(memstore.Hooks{AfterClosePeriod: func(context.Context) error {
		return errors.New("connection reset")
	}})
	_, err := f.coord.Close(context.Background(), f.request("emp-1"))

	require.ErrorIs(t, err, apperror.ErrCommitFailed)
	appErr, _ := apperror.As(err)
	assert.True(t, appErr.RolledBack)
	after, _ := f.state(t)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["rollbacksTotal"])
}
