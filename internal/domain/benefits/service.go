package benefits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nomina/internal/domain/legal"
)

type Service struct {
	store  StoreAPI
	params *legal.Table
	now    func() time.Time
}

func NewService(store StoreAPI, params *legal.Table) *Service {
	return &Service{store: store, params: params, now: time.Now}
}

// WithClock returns a copy of s that stamps calculations with now.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// MonthlySubsidy is the full monthly transport subsidy the salary is
// entitled to under the parameters in force at ref, or zero.
func (s *Service) MonthlySubsidy(monthlySalary decimal.Decimal, ref time.Time) decimal.Decimal {
	set := s.params.Resolve(ref)
	if !set.SubsidyEligible(monthlySalary) {
		return decimal.Zero
	}
	return set.TransportSubsidy
}

// Accrue computes one accrual and upserts it on (employee, kind, start, end).
// Parameters are resolved at the range's start date.
func (s *Service) Accrue(ctx context.Context, req AccrualRequest, kind Kind) (Calculation, error) {
	subsidy := s.MonthlySubsidy(req.MonthlySalary, req.PeriodStart)

	var severance *decimal.Decimal
	if kind == KindSeveranceInterest {
		stored, err := s.store.GetCalculation(ctx, req.OrganizationID, req.EmployeeID, KindSeverance, req.PeriodStart, req.PeriodEnd)
		switch {
		case err == nil:
			severance = &stored.Amount
		case !errors.Is(err, ErrCalculationNotFound):
			return Calculation{}, fmt.Errorf("load severance: %w", err)
		}
	}

	result, err := Calculate(kind, req.MonthlySalary, subsidy, req.PeriodStart, req.PeriodEnd, severance)
	if err != nil {
		return Calculation{}, err
	}
	return s.store.UpsertCalculation(ctx, Calculation{
		OrganizationID: req.OrganizationID,
		EmployeeID:     req.EmployeeID,
		Kind:           kind,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		Amount:         result.Amount,
		MonthlySalary:  req.MonthlySalary,
		MonthlySubsidy: subsidy,
		Days:           result.Days,
		Rate:           result.Rate,
		ComputedAt:     s.now().UTC(),
	})
}

// AccrueAll runs every accrual kind for the request in dependency order.
func (s *Service) AccrueAll(ctx context.Context, req AccrualRequest) ([]Calculation, error) {
	out := make([]Calculation, 0, len(Kinds()))
	for _, kind := range Kinds() {
		calc, err := s.Accrue(ctx, req, kind)
		if err != nil {
			return out, fmt.Errorf("accrue %s for %s: %w", kind, req.EmployeeID, err)
		}
		out = append(out, calc)
	}
	return out, nil
}

// Snapshot returns the accruals currently stored for the employees over [start, end].
func (s *Service) Snapshot(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time) ([]Calculation, error) {
	return s.store.ListCalculations(ctx, orgID, employeeIDs, start, end)
}

// Restore puts back a Snapshot, removing anything accrued since.
func (s *Service) Restore(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time, calcs []Calculation) error {
	return s.store.ReplaceCalculations(ctx, orgID, employeeIDs, start, end, calcs)
}
