package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
)

type Service struct {
	store   StoreAPI
	calc    *Calculator
	logger  *slog.Logger
	workers int
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func NewService(store StoreAPI, calc *Calculator, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		calc:    calc,
		logger:  slog.Default(),
		workers: DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() StoreAPI { return s.store }

func (s *Service) Calculator() *Calculator { return s.calc }

func (s *Service) Workers() int { return s.workers }

func (s *Service) Now() time.Time { return s.now().UTC() }

// CreatePeriod opens a draft period. Overlapping any live period of the
// organization is rejected so duplicate drafts cannot appear.
func (s *Service) CreatePeriod(ctx context.Context, orgID string, start, end time.Time, pt period.Type) (period.Period, error) {
	var issues []apperror.Detail
	if !pt.Valid() {
		issues = append(issues, apperror.Detail{Field: "type", Reason: fmt.Sprintf("unsupported period type %q", pt)})
	}
	if end.Before(start) {
		issues = append(issues, apperror.Detail{Field: "endDate", Reason: period.ErrInvalidRange.Error()})
	} else if pt.Valid() && period.InclusiveDays(start, end) > pt.MaxCalendarDays() {
		issues = append(issues, apperror.Detail{Field: "endDate", Reason: fmt.Sprintf("%s period cannot span %d days", pt, period.InclusiveDays(start, end))})
	}
	if len(issues) > 0 {
		return period.Period{}, apperror.New(apperror.KindInvalidInput, "invalid period", issues...)
	}

	now := s.Now()
	created, err := s.store.CreatePeriod(ctx, period.Period{
		OrganizationID: orgID,
		StartDate:      start,
		EndDate:        end,
		Type:           pt,
		State:          period.StateDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, period.ErrOverlappingPeriod) {
		return period.Period{}, apperror.New(apperror.KindValidationFailed, "period overlaps an existing period",
			apperror.Detail{Field: "startDate", Reason: err.Error()})
	}
	if err != nil {
		return period.Period{}, fmt.Errorf("create period: %w", err)
	}
	return created, nil
}

func (s *Service) GetPeriod(ctx context.Context, orgID, periodID string) (period.Period, error) {
	p, err := s.store.GetPeriod(ctx, orgID, periodID)
	if errors.Is(err, ErrPeriodNotFound) {
		return period.Period{}, apperror.Wrap(err, apperror.KindNotFound, "payroll period not found")
	}
	return p, err
}

func (s *Service) ListRecords(ctx context.Context, orgID, periodID string) ([]Record, error) {
	return s.store.ListRecords(ctx, orgID, periodID)
}

// AddAdjustment attaches a novedad to an editable period.
func (s *Service) AddAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	p, err := s.GetPeriod(ctx, adj.OrganizationID, adj.PeriodID)
	if err != nil {
		return Adjustment{}, err
	}
	if !p.Editable() {
		return Adjustment{}, apperror.Wrap(ErrPeriodNotEditable, apperror.KindInvalidStateTransition, "period is closed")
	}
	if _, ok := LookupKind(adj.Kind); !ok {
		return Adjustment{}, apperror.New(apperror.KindInvalidInput, "invalid adjustment",
			apperror.Detail{EmployeeID: adj.EmployeeID, Field: "kind", Reason: fmt.Sprintf("unknown adjustment kind %q", adj.Kind)})
	}
	if _, err := s.store.GetEmployee(ctx, adj.OrganizationID, adj.EmployeeID); err != nil {
		if errors.Is(err, ErrEmployeeNotFound) {
			return Adjustment{}, apperror.Wrap(err, apperror.KindNotFound, "employee not found")
		}
		return Adjustment{}, err
	}
	adj.UpdatedAt = s.Now()
	return s.store.CreateAdjustment(ctx, adj)
}

// Evaluate computes one employee's record for p from stored data without
// persisting it. Invalid input yields a record with status invalid.
func (s *Service) Evaluate(p period.Period, employee Employee, workedDays int, adjustments []Adjustment) Record {
	record := Record{
		OrganizationID: p.OrganizationID,
		PeriodID:       p.ID,
		EmployeeID:     employee.ID,
		BaseSalary:     employee.BaseSalary,
		WorkedDays:     workedDays,
		UpdatedAt:      s.Now(),
	}
	breakdown, err := s.calc.Calculate(EmployeeInput{
		EmployeeID:  employee.ID,
		BaseSalary:  employee.BaseSalary,
		WorkedDays:  workedDays,
		Adjustments: adjustments,
	}, p.Type, p.StartDate)
	if err != nil {
		record.Status = RecordStatusInvalid
		if appErr, ok := apperror.As(err); ok {
			record.Issues = appErr.Details
		} else {
			record.Issues = []apperror.Detail{{EmployeeID: employee.ID, Reason: err.Error()}}
		}
		return record
	}
	record.Status = RecordStatusValid
	record.Breakdown = breakdown
	return record
}

// RunPeriod calculates and stores a record for each requested employee
// (every active employee when none are named). Per-employee input problems
// are collected; only store failures abort the batch.
func (s *Service) RunPeriod(ctx context.Context, req RunRequest) (RunResult, error) {
	p, err := s.GetPeriod(ctx, req.OrganizationID, req.PeriodID)
	if err != nil {
		return RunResult{}, err
	}
	if !p.Editable() {
		return RunResult{}, apperror.Wrap(ErrPeriodNotEditable, apperror.KindInvalidStateTransition, "period is closed")
	}

	employeeIDs := req.EmployeeIDs
	if len(employeeIDs) == 0 {
		active, err := s.store.ListActiveEmployees(ctx, req.OrganizationID)
		if err != nil {
			return RunResult{}, fmt.Errorf("list employees: %w", err)
		}
		for _, employee := range active {
			employeeIDs = append(employeeIDs, employee.ID)
		}
	}

	result := RunResult{PeriodID: p.ID}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, employeeID := range employeeIDs {
		g.Go(func() error {
			employee, err := s.store.GetEmployee(gctx, req.OrganizationID, employeeID)
			if errors.Is(err, ErrEmployeeNotFound) {
				mu.Lock()
				result.Issues = append(result.Issues, apperror.Detail{EmployeeID: employeeID, Reason: "employee not found"})
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("load employee %s: %w", employeeID, err)
			}
			adjustments, err := s.store.ListAdjustments(gctx, req.OrganizationID, p.ID, employeeID)
			if err != nil {
				return fmt.Errorf("load adjustments of %s: %w", employeeID, err)
			}
			workedDays, ok := req.WorkedDays[employeeID]
			if !ok {
				workedDays = p.Type.MaxDays()
			}

			record := s.Evaluate(p, employee, workedDays, adjustments)
			if err := s.store.UpsertRecord(gctx, record); err != nil {
				return fmt.Errorf("store record of %s: %w", employeeID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if record.Status == RecordStatusValid {
				result.Valid = append(result.Valid, record)
			} else {
				result.Invalid = append(result.Invalid, record)
				result.Issues = append(result.Issues, record.Issues...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunResult{}, err
	}

	sort.Slice(result.Valid, func(i, j int) bool { return result.Valid[i].EmployeeID < result.Valid[j].EmployeeID })
	sort.Slice(result.Invalid, func(i, j int) bool { return result.Invalid[i].EmployeeID < result.Invalid[j].EmployeeID })
	sort.SliceStable(result.Issues, func(i, j int) bool { return result.Issues[i].EmployeeID < result.Issues[j].EmployeeID })

	s.logger.InfoContext(ctx, "payroll run completed",
		"period_id", p.ID, "valid", len(result.Valid), "invalid", len(result.Invalid))
	return result, nil
}
