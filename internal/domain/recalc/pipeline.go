package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/closure"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
	"nomina/internal/platform/metrics"
)

// Closer re-finalizes a reopened period.
type Closer interface {
	Close(ctx context.Context, req closure.CloseRequest) (closure.ClosureResult, error)
}

type Pipeline struct {
	payroll *payroll.Service
	closer  Closer
	audit   audit.Recorder
	metrics *metrics.Collector
	logger  *slog.Logger
}

type Option func(*Pipeline)

func WithAudit(r audit.Recorder) Option { return func(p *Pipeline) { p.audit = r } }

func WithMetrics(m *metrics.Collector) Option { return func(p *Pipeline) { p.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func NewPipeline(svc *payroll.Service, closer Closer, opts ...Option) *Pipeline {
	p := &Pipeline{payroll: svc, closer: closer, logger: slog.Default(), metrics: metrics.New()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reopen moves a closed period to reopened and leaves an audit trail.
func (p *Pipeline) Reopen(ctx context.Context, req ReopenRequest) (period.Period, error) {
	justification := strings.TrimSpace(req.Justification)
	if justification == "" {
		return period.Period{}, apperror.New(apperror.KindInvalidInput, "reopen needs a justification",
			apperror.Detail{Field: "justification", Reason: "must not be empty"})
	}
	current, err := p.payroll.GetPeriod(ctx, req.OrganizationID, req.PeriodID)
	if err != nil {
		return period.Period{}, err
	}
	if err := period.Transition(current.State, period.StateReopened); err != nil {
		return period.Period{}, err
	}

	reopened, err := p.payroll.Store().ReopenPeriod(ctx, period.ReopenEvent{
		OrganizationID: req.OrganizationID,
		PeriodID:       req.PeriodID,
		ActorID:        req.ActorID,
		Justification:  justification,
		CreatedAt:      p.payroll.Now(),
	}, current.Version)
	if errors.Is(err, payroll.ErrVersionConflict) {
		p.metrics.ConcurrentConflict()
		return period.Period{}, apperror.Wrap(err, apperror.KindConcurrentModification, "period was modified by another process")
	}
	if err != nil {
		return period.Period{}, fmt.Errorf("reopen period: %w", err)
	}

	if p.audit != nil {
		if err := p.audit.Record(ctx, req.OrganizationID, req.ActorID, audit.ActionPeriodReopen, audit.EntityPayrollPeriod, reopened.ID,
			current, map[string]any{"period": reopened, "justification": justification}); err != nil {
			p.logger.WarnContext(ctx, "audit reopen failed", "period_id", reopened.ID, "error", err)
		}
	}
	p.metrics.Reopened()
	p.logger.InfoContext(ctx, "period reopened", "period_id", reopened.ID, "actor_id", req.ActorID)
	return reopened, nil
}

// Preview recalculates the changed employees against their new adjustment
// sets. Nothing is persisted.
func (p *Pipeline) Preview(ctx context.Context, orgID, periodID string, changes []Change) ([]Diff, error) {
	current, err := p.payroll.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return nil, err
	}
	return p.preview(ctx, current, changes)
}

func (p *Pipeline) preview(ctx context.Context, current period.Period, changes []Change) ([]Diff, error) {
	if err := validateChanges(changes); err != nil {
		return nil, err
	}
	store := p.payroll.Store()
	records, err := store.ListRecords(ctx, current.OrganizationID, current.ID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	byEmployee := make(map[string]payroll.Record, len(records))
	for _, record := range records {
		byEmployee[record.EmployeeID] = record
	}

	diffs := make([]Diff, 0, len(changes))
	for _, change := range changes {
		employee, err := store.GetEmployee(ctx, current.OrganizationID, change.EmployeeID)
		if errors.Is(err, payroll.ErrEmployeeNotFound) {
			return nil, apperror.Wrap(err, apperror.KindNotFound, fmt.Sprintf("employee %s not found", change.EmployeeID))
		}
		if err != nil {
			return nil, fmt.Errorf("load employee %s: %w", change.EmployeeID, err)
		}
		stored, err := store.ListAdjustments(ctx, current.OrganizationID, current.ID, change.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("load adjustments of %s: %w", change.EmployeeID, err)
		}

		diff := Diff{EmployeeID: change.EmployeeID}
		diff.Stale = !payroll.LatestUpdate(stored).Equal(change.ExpectedUpdatedAt)

		workedDays := current.Type.MaxDays()
		old, hasOld := byEmployee[change.EmployeeID]
		if hasOld {
			// Recalculate on the salary the period was run with.
			employee.BaseSalary = old.BaseSalary
			workedDays = old.WorkedDays
			if old.Status == payroll.RecordStatusValid {
				before := old.Breakdown
				diff.Before = &before
			}
		}
		if change.WorkedDays != nil {
			workedDays = *change.WorkedDays
		}

		adjustments := make([]payroll.Adjustment, len(change.Adjustments))
		for i, adj := range change.Adjustments {
			adj.OrganizationID, adj.PeriodID, adj.EmployeeID = current.OrganizationID, current.ID, change.EmployeeID
			adjustments[i] = adj
		}
		record := p.payroll.Evaluate(current, employee, workedDays, adjustments)
		diff.record = record
		diff.Status = record.Status
		diff.Issues = record.Issues
		diff.After = record.Breakdown
		diff.GrossDelta = record.Gross()
		diff.NetDelta = record.Net()
		if diff.Before != nil {
			diff.GrossDelta = diff.GrossDelta.Sub(diff.Before.GrossPay)
			diff.NetDelta = diff.NetDelta.Sub(diff.Before.NetPay)
		}
		diffs = append(diffs, diff)
	}
	return diffs, nil
}

// Apply stores the changed adjustment sets and records of a reopened
// period and closes it again over every employee recorded in it.
func (p *Pipeline) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	justification := strings.TrimSpace(req.Justification)
	if justification == "" {
		return ApplyResult{}, apperror.New(apperror.KindInvalidInput, "recalculation needs a justification",
			apperror.Detail{Field: "justification", Reason: "must not be empty"})
	}
	current, err := p.payroll.GetPeriod(ctx, req.OrganizationID, req.PeriodID)
	if err != nil {
		return ApplyResult{}, err
	}
	if current.State != period.StateReopened {
		return ApplyResult{}, apperror.Newf(apperror.KindInvalidStateTransition,
			"period must be reopened before recalculation, it is %s", current.State)
	}

	diffs, err := p.preview(ctx, current, req.Changes)
	if err != nil {
		return ApplyResult{}, err
	}
	var stale, invalid []apperror.Detail
	for _, diff := range diffs {
		if diff.Stale {
			stale = append(stale, apperror.Detail{EmployeeID: diff.EmployeeID, Field: "expectedUpdatedAt", Reason: "adjustments changed since they were read"})
		}
		if diff.Status != payroll.RecordStatusValid {
			invalid = append(invalid, diff.Issues...)
		}
	}
	if len(stale) > 0 {
		return ApplyResult{}, apperror.New(apperror.KindStaleAdjustmentSet, "adjustments were modified concurrently", stale...)
	}
	if len(invalid) > 0 {
		return ApplyResult{}, apperror.New(apperror.KindInvalidInput, "recalculated input is invalid", invalid...)
	}

	store := p.payroll.Store()
	stamp := p.payroll.Now().Truncate(time.Microsecond)
	sets := make([]payroll.AdjustmentSet, len(req.Changes))
	for i, change := range req.Changes {
		adjustments := make([]payroll.Adjustment, len(change.Adjustments))
		for j, adj := range change.Adjustments {
			adj.ID = ""
			adj.UpdatedAt = stamp
			adjustments[j] = adj
		}
		sets[i] = payroll.AdjustmentSet{EmployeeID: change.EmployeeID, ExpectedUpdatedAt: change.ExpectedUpdatedAt, Adjustments: adjustments}
	}
	// An edit racing the preview above is caught here, before any set or
	// record of this request is written.
	if err := store.ReplaceAdjustmentSets(ctx, req.OrganizationID, req.PeriodID, sets); err != nil {
		var staleErr *payroll.StaleAdjustmentsError
		if errors.As(err, &staleErr) {
			details := make([]apperror.Detail, 0, len(staleErr.EmployeeIDs))
			for _, id := range staleErr.EmployeeIDs {
				details = append(details, apperror.Detail{EmployeeID: id, Field: "expectedUpdatedAt", Reason: "adjustments changed since they were read"})
			}
			return ApplyResult{}, &apperror.Error{
				Kind:    apperror.KindStaleAdjustmentSet,
				Message: "adjustments were modified concurrently",
				Details: details,
				Err:     err,
			}
		}
		return ApplyResult{}, fmt.Errorf("replace adjustments: %w", err)
	}
	for i, change := range req.Changes {
		if err := store.UpsertRecord(ctx, diffs[i].record); err != nil {
			return ApplyResult{}, fmt.Errorf("store record of %s: %w", change.EmployeeID, err)
		}
	}

	records, err := store.ListRecords(ctx, req.OrganizationID, req.PeriodID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("load records: %w", err)
	}
	employeeIDs := make([]string, 0, len(records))
	for _, record := range records {
		employeeIDs = append(employeeIDs, record.EmployeeID)
	}
	sort.Strings(employeeIDs)

	closed, err := p.closer.Close(ctx, closure.CloseRequest{
		OrganizationID: req.OrganizationID,
		PeriodID:       req.PeriodID,
		EmployeeIDs:    employeeIDs,
		ActorID:        req.ActorID,
	})
	if err != nil {
		return ApplyResult{Diffs: diffs}, err
	}

	if p.audit != nil {
		if err := p.audit.Record(ctx, req.OrganizationID, req.ActorID, audit.ActionRecalcApply, audit.EntityPayrollPeriod, req.PeriodID,
			current, map[string]any{"justification": justification, "diffs": diffs, "totals": closed.Totals}); err != nil {
			p.logger.WarnContext(ctx, "audit recalculation failed", "period_id", req.PeriodID, "error", err)
		}
	}
	p.logger.InfoContext(ctx, "period recalculated",
		"period_id", req.PeriodID, "changed", len(diffs), "gross", closed.Totals.Gross.String())
	return ApplyResult{Diffs: diffs, Closure: closed}, nil
}

// ReopenApplyReclose runs a whole correction: reopen, apply, close.
func (p *Pipeline) ReopenApplyReclose(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	if _, err := p.Reopen(ctx, ReopenRequest{
		OrganizationID: req.OrganizationID,
		PeriodID:       req.PeriodID,
		ActorID:        req.ActorID,
		Justification:  req.Justification,
	}); err != nil {
		return ApplyResult{}, err
	}
	return p.Apply(ctx, req)
}

func validateChanges(changes []Change) error {
	var issues []apperror.Detail
	if len(changes) == 0 {
		issues = append(issues, apperror.Detail{Field: "changes", Reason: "at least one change is required"})
	}
	seen := make(map[string]bool, len(changes))
	for i, change := range changes {
		field := fmt.Sprintf("changes[%d]", i)
		switch {
		case change.EmployeeID == "":
			issues = append(issues, apperror.Detail{Field: field + ".employeeId", Reason: "is required"})
		case seen[change.EmployeeID]:
			issues = append(issues, apperror.Detail{EmployeeID: change.EmployeeID, Field: field + ".employeeId", Reason: "appears more than once"})
		}
		seen[change.EmployeeID] = true
	}
	if len(issues) > 0 {
		return apperror.New(apperror.KindInvalidInput, "invalid recalculation", issues...)
	}
	return nil
}

// Totals sums the new breakdowns of valid diffs.
func Totals(diffs []Diff) period.Totals {
	records := make([]payroll.Record, 0, len(diffs))
	for _, diff := range diffs {
		if diff.Status == payroll.RecordStatusValid {
			records = append(records, payroll.Record{Breakdown: diff.After})
		}
	}
	return payroll.SumRecords(records)
}
