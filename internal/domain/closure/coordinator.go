package closure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/benefits"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
	"nomina/internal/platform/metrics"
)

// Accruer computes and stores social benefit accruals for a closed range.
// Snapshot and Restore let a failed closure put earlier accruals back.
type Accruer interface {
	AccrueAll(ctx context.Context, req benefits.AccrualRequest) ([]benefits.Calculation, error)
	Snapshot(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time) ([]benefits.Calculation, error)
	Restore(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time, calcs []benefits.Calculation) error
}

// Alerter pages people when a period needs manual repair.
type Alerter interface {
	Alert(ctx context.Context, orgID, subject, body string) error
}

type Coordinator struct {
	store   payroll.StoreAPI
	calc    *payroll.Calculator
	accruer Accruer
	audit   audit.Recorder
	alerter Alerter
	metrics *metrics.Collector
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

type Option func(*Coordinator)

func WithAccruer(a Accruer) Option { return func(c *Coordinator) { c.accruer = a } }

func WithAudit(r audit.Recorder) Option { return func(c *Coordinator) { c.audit = r } }

func WithAlerter(a Alerter) Option { return func(c *Coordinator) { c.alerter = a } }

func WithMetrics(m *metrics.Collector) Option { return func(c *Coordinator) { c.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func NewCoordinator(store payroll.StoreAPI, calc *payroll.Calculator, cfg Config, opts ...Option) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = payroll.DefaultWorkers
	}
	c := &Coordinator{
		store:   store,
		calc:    calc,
		logger:  slog.Default(),
		cfg:     cfg,
		now:     time.Now,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close finalizes a draft or reopened period for the selected employees.
// Nothing is written unless every precondition holds; once the period row
// has been switched to closed, any later failure restores the snapshot.
func (c *Coordinator) Close(ctx context.Context, req CloseRequest) (ClosureResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	log := c.logger.With("organization_id", req.OrganizationID, "period_id", req.PeriodID)

	p, err := c.store.GetPeriod(ctx, req.OrganizationID, req.PeriodID)
	if errors.Is(err, payroll.ErrPeriodNotFound) {
		return ClosureResult{}, apperror.Wrap(err, apperror.KindNotFound, "payroll period not found")
	}
	if err != nil {
		return ClosureResult{}, c.fail(ctx, fmt.Errorf("load period: %w", err))
	}
	if err := period.Transition(p.State, period.StateClosed); err != nil {
		return ClosureResult{}, err
	}

	selected := dedupe(req.EmployeeIDs)
	records, err := c.store.ListRecords(ctx, req.OrganizationID, req.PeriodID)
	if err != nil {
		return ClosureResult{}, c.fail(ctx, fmt.Errorf("load records: %w", err))
	}
	fresh, err := c.prevalidate(ctx, p, selected, records)
	if err != nil {
		return ClosureResult{}, c.fail(ctx, err)
	}

	snap := snapshot{period: p, records: records, employeeIDs: selected}
	if c.accruer != nil {
		snap.accruals, err = c.accruer.Snapshot(ctx, p.OrganizationID, selected, p.StartDate, p.EndDate)
		if err != nil {
			return ClosureResult{}, c.fail(ctx, fmt.Errorf("snapshot accruals: %w", err))
		}
	}
	totals := payroll.SumRecords(fresh)

	if err := ctx.Err(); err != nil {
		return ClosureResult{}, c.fail(ctx, apperror.Wrap(err, apperror.KindTimeout, "closure timed out before commit"))
	}

	closed, err := c.store.ClosePeriod(ctx, req.OrganizationID, req.PeriodID, p.State, p.Version, totals, len(fresh), c.now().UTC())
	if errors.Is(err, payroll.ErrVersionConflict) {
		c.metrics.ConcurrentConflict()
		log.WarnContext(ctx, "period changed during closure", "expected_state", p.State, "expected_version", p.Version)
		return ClosureResult{}, c.fail(ctx, apperror.Wrap(err, apperror.KindConcurrentModification, "period was modified by another process"))
	}
	if err != nil {
		// The write may have landed although it reported an error, e.g. when
		// the deadline cut the round trip short. Restore either way.
		return ClosureResult{}, c.rollback(ctx, log, snap, fmt.Errorf("close period: %w", err))
	}

	accruals, commitErr := c.commit(ctx, closed, fresh)
	if commitErr != nil {
		return ClosureResult{}, c.rollback(ctx, log, snap, commitErr)
	}

	// The closure stands from here on; reads and bookkeeping must not be cut
	// short by the closure deadline.
	detached := context.WithoutCancel(ctx)
	result := ClosureResult{
		Period:        closed,
		Totals:        closed.Totals,
		EmployeeCount: closed.EmployeeCount,
		Records:       fresh,
		Accruals:      accruals,
	}
	result.Inconsistency = c.verify(detached, log, closed, selected)
	start, end := period.SuggestNext(closed)
	result.Next = NextPeriod{StartDate: start, EndDate: end, Type: closed.Type}

	if c.audit != nil {
		if err := c.audit.Record(detached, req.OrganizationID, req.ActorID, audit.ActionPeriodClose, audit.EntityPayrollPeriod, closed.ID, snap.period, closed); err != nil {
			log.WarnContext(detached, "audit close failed", "error", err)
		}
	}
	c.metrics.ClosureSucceeded()
	c.metrics.EmployeesCalculated(len(fresh))
	log.InfoContext(detached, "period closed",
		"employees", len(fresh), "gross", closed.Totals.Gross.String(), "net", closed.Totals.Net.String())
	return result, nil
}

// prevalidate checks every selected employee and recomputes its breakdown
// from current data. All failures are collected into one ValidationFailed.
func (c *Coordinator) prevalidate(ctx context.Context, p period.Period, selected []string, records []payroll.Record) ([]payroll.Record, error) {
	if len(selected) == 0 {
		return nil, apperror.New(apperror.KindValidationFailed, "closure preconditions not met",
			apperror.Detail{Field: "employeeIds", Reason: "at least one employee must be selected"})
	}
	byEmployee := make(map[string]payroll.Record, len(records))
	for _, record := range records {
		byEmployee[record.EmployeeID] = record
	}

	var (
		mu     sync.Mutex
		issues []apperror.Detail
		fresh  = make([]payroll.Record, len(selected))
	)
	addIssue := func(d apperror.Detail) {
		mu.Lock()
		issues = append(issues, d)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, employeeID := range selected {
		g.Go(func() error {
			record, ok := byEmployee[employeeID]
			if !ok {
				addIssue(apperror.Detail{EmployeeID: employeeID, Reason: "no payroll record in this period"})
				return nil
			}
			if record.Status != payroll.RecordStatusValid {
				addIssue(apperror.Detail{EmployeeID: employeeID, Field: "status", Reason: fmt.Sprintf("record status is %q, not valid", record.Status)})
				return nil
			}
			if !record.BaseSalary.IsPositive() {
				addIssue(apperror.Detail{EmployeeID: employeeID, Field: "baseSalary", Reason: "record has no positive base salary"})
				return nil
			}
			if _, err := c.store.GetEmployee(gctx, p.OrganizationID, employeeID); err != nil {
				if errors.Is(err, payroll.ErrEmployeeNotFound) {
					addIssue(apperror.Detail{EmployeeID: employeeID, Reason: "record references an unknown employee"})
					return nil
				}
				return fmt.Errorf("load employee %s: %w", employeeID, err)
			}
			adjustments, err := c.store.ListAdjustments(gctx, p.OrganizationID, p.ID, employeeID)
			if err != nil {
				return fmt.Errorf("load adjustments of %s: %w", employeeID, err)
			}
			breakdown, err := c.calc.Calculate(payroll.EmployeeInput{
				EmployeeID:  employeeID,
				BaseSalary:  record.BaseSalary,
				WorkedDays:  record.WorkedDays,
				Adjustments: adjustments,
			}, p.Type, p.StartDate)
			if err != nil {
				if appErr, ok := apperror.As(err); ok && appErr.Kind == apperror.KindInvalidInput {
					for _, d := range appErr.Details {
						addIssue(d)
					}
					return nil
				}
				return err
			}
			record.Breakdown = breakdown
			record.Issues = nil
			record.UpdatedAt = c.now().UTC()
			fresh[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		sortDetails(issues)
		return nil, apperror.New(apperror.KindValidationFailed, "closure preconditions not met", issues...)
	}
	return fresh, nil
}

// commit runs the writes that follow the conditional close: fresh records,
// finalization and benefit accruals.
func (c *Coordinator) commit(ctx context.Context, closed period.Period, fresh []payroll.Record) ([]benefits.Calculation, error) {
	employeeIDs := make([]string, len(fresh))
	for i, record := range fresh {
		if err := c.store.UpsertRecord(ctx, record); err != nil {
			return nil, fmt.Errorf("store record of %s: %w", record.EmployeeID, err)
		}
		employeeIDs[i] = record.EmployeeID
	}
	if err := c.store.FinalizeRecords(ctx, closed.OrganizationID, closed.ID, employeeIDs, c.now().UTC()); err != nil {
		return nil, fmt.Errorf("finalize records: %w", err)
	}
	if c.accruer == nil {
		return nil, nil
	}

	var accruals []benefits.Calculation
	for _, record := range fresh {
		calcs, err := c.accruer.AccrueAll(ctx, benefits.AccrualRequest{
			OrganizationID: closed.OrganizationID,
			EmployeeID:     record.EmployeeID,
			MonthlySalary:  record.BaseSalary,
			PeriodStart:    closed.StartDate,
			PeriodEnd:      closed.EndDate,
		})
		accruals = append(accruals, calcs...)
		if err != nil {
			// Accruals the range does not support leave the closure standing.
			if apperror.IsClientError(err) {
				c.logger.WarnContext(ctx, "accrual skipped", "employee_id", record.EmployeeID, "error", err)
				continue
			}
			return nil, err
		}
	}
	return accruals, nil
}

// rollback restores the snapshot under the retry policy on a context that
// outlives the closure deadline.
func (c *Coordinator) rollback(ctx context.Context, log *slog.Logger, snap snapshot, cause error) error {
	timedOut := ctx.Err() != nil
	restoreCtx := context.WithoutCancel(ctx)

	attempts, err := c.cfg.Rollback.Do(restoreCtx, func(ctx context.Context, attempt int) error {
		if err := c.store.RestorePeriod(ctx, snap.period); err != nil {
			log.WarnContext(ctx, "restore period failed", "attempt", attempt, "error", err)
			return fmt.Errorf("restore period: %w", err)
		}
		if err := c.store.RestoreRecords(ctx, snap.period.OrganizationID, snap.period.ID, snap.records); err != nil {
			log.WarnContext(ctx, "restore records failed", "attempt", attempt, "error", err)
			return fmt.Errorf("restore records: %w", err)
		}
		if c.accruer != nil {
			p := snap.period
			if err := c.accruer.Restore(ctx, p.OrganizationID, snap.employeeIDs, p.StartDate, p.EndDate, snap.accruals); err != nil {
				log.WarnContext(ctx, "restore accruals failed", "attempt", attempt, "error", err)
				return fmt.Errorf("restore accruals: %w", err)
			}
		}
		return nil
	})
	c.metrics.ClosureFailed()
	if err != nil {
		c.metrics.CriticalInconsistency()
		log.ErrorContext(restoreCtx, "closure rollback failed; period needs manual repair",
			"attempts", attempts, "cause", cause, "rollback_error", err,
			"snapshot_state", snap.period.State, "snapshot_version", snap.period.Version)
		if c.audit != nil {
			_ = c.audit.Record(restoreCtx, snap.period.OrganizationID, "", audit.ActionRollbackCrit, audit.EntityPayrollPeriod, snap.period.ID, snap.period, map[string]string{"cause": cause.Error(), "rollback": err.Error()})
		}
		c.alert(restoreCtx, log, snap.period,
			"payroll period could not be restored after a failed closure",
			fmt.Sprintf("Closure failed: %v\nRollback failed after %d attempts: %v\nSnapshot state %s, version %d.",
				cause, attempts, err, snap.period.State, snap.period.Version))
		return &apperror.Error{
			Kind:    apperror.KindCriticalInconsistency,
			Message: "closure failed and the period could not be restored",
			Details: []apperror.Detail{{Reason: cause.Error()}, {Reason: err.Error()}},
			Err:     errors.Join(cause, err),
		}
	}

	c.metrics.RolledBack()
	log.WarnContext(restoreCtx, "closure rolled back", "attempts", attempts, "cause", cause)
	if timedOut {
		c.metrics.ClosureTimedOut()
		return &apperror.Error{Kind: apperror.KindTimeout, Message: "closure timed out and was rolled back", RolledBack: true, Err: cause}
	}
	return &apperror.Error{Kind: apperror.KindCommitFailed, Message: "closure failed and was rolled back", RolledBack: true, Err: cause}
}

// verify compares persisted totals with the finalized records.
func (c *Coordinator) verify(ctx context.Context, log *slog.Logger, closed period.Period, selected []string) *Inconsistency {
	records, err := c.store.ListRecords(ctx, closed.OrganizationID, closed.ID)
	if err != nil {
		log.ErrorContext(ctx, "closure verification could not read records", "error", err)
		return nil
	}
	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}
	var finalized []payroll.Record
	for _, record := range records {
		if record.Finalized && want[record.EmployeeID] {
			finalized = append(finalized, record)
		}
	}
	sum := payroll.SumRecords(finalized)
	if sum.Equal(closed.Totals) && len(finalized) == closed.EmployeeCount {
		return nil
	}
	c.metrics.VerificationMismatch()
	log.ErrorContext(ctx, "closed period totals disagree with finalized records",
		"persisted_gross", closed.Totals.Gross.String(), "finalized_gross", sum.Gross.String(),
		"persisted_net", closed.Totals.Net.String(), "finalized_net", sum.Net.String(),
		"employee_count", closed.EmployeeCount, "finalized_count", len(finalized))
	c.alert(ctx, log, closed, "closed payroll period totals disagree with its records",
		fmt.Sprintf("Persisted gross %s, net %s over %d employees.\nFinalized gross %s, net %s over %d records.",
			closed.Totals.Gross.StringFixed(2), closed.Totals.Net.StringFixed(2), closed.EmployeeCount,
			sum.Gross.StringFixed(2), sum.Net.StringFixed(2), len(finalized)))
	return &Inconsistency{Persisted: closed.Totals, Finalized: sum}
}

func (c *Coordinator) alert(ctx context.Context, log *slog.Logger, p period.Period, subject, body string) {
	if c.alerter == nil {
		return
	}
	body = fmt.Sprintf("Organization %s, period %s (%s to %s).\n\n%s", p.OrganizationID, p.ID,
		p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly), body)
	if err := c.alerter.Alert(ctx, p.OrganizationID, subject, body); err != nil {
		log.WarnContext(ctx, "closure alert failed", "error", err)
	}
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	c.metrics.ClosureFailed()
	if ctx.Err() != nil && apperror.KindOf(err) == "" {
		return apperror.Wrap(err, apperror.KindTimeout, "closure timed out")
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortDetails(details []apperror.Detail) {
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].EmployeeID != details[j].EmployeeID {
			return details[i].EmployeeID < details[j].EmployeeID
		}
		return details[i].Field < details[j].Field
	})
}
