// Package reports renders closed or in-progress payroll periods for people:
// a totals summary, the payroll register and per-employee payslips.
package reports

import (
	"context"
	"io"

	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
)

// PeriodSource is satisfied by payroll.Service.
type PeriodSource interface {
	GetPeriod(ctx context.Context, orgID, periodID string) (period.Period, error)
	ListRecords(ctx context.Context, orgID, periodID string) ([]payroll.Record, error)
}

// EmployeeLookup is satisfied by employee.Service.
type EmployeeLookup interface {
	Get(ctx context.Context, orgID, employeeID string) (payroll.Employee, error)
}

type Service struct {
	periods   PeriodSource
	employees EmployeeLookup
}

func NewService(periods PeriodSource, employees EmployeeLookup) *Service {
	return &Service{periods: periods, employees: employees}
}

func (s *Service) load(ctx context.Context, orgID, periodID string) (period.Period, []payroll.Record, error) {
	p, err := s.periods.GetPeriod(ctx, orgID, periodID)
	if err != nil {
		return period.Period{}, nil, err
	}
	records, err := s.periods.ListRecords(ctx, orgID, periodID)
	if err != nil {
		return period.Period{}, nil, err
	}
	return p, records, nil
}

func (s *Service) Summary(ctx context.Context, orgID, periodID string) (PeriodSummary, error) {
	p, records, err := s.load(ctx, orgID, periodID)
	if err != nil {
		return PeriodSummary{}, err
	}
	return Summarize(p, records), nil
}

func (s *Service) Register(ctx context.Context, orgID, periodID string, w io.Writer) error {
	_, records, err := s.load(ctx, orgID, periodID)
	if err != nil {
		return err
	}
	return WriteRegister(w, records)
}

// Payslip renders the employee's record for the period as PDF.
func (s *Service) Payslip(ctx context.Context, orgID, periodID, employeeID string, w io.Writer) error {
	p, records, err := s.load(ctx, orgID, periodID)
	if err != nil {
		return err
	}
	var record *payroll.Record
	for i := range records {
		if records[i].EmployeeID == employeeID {
			record = &records[i]
			break
		}
	}
	if record == nil {
		return apperror.New(apperror.KindNotFound, "no payroll record for employee in period",
			apperror.Detail{EmployeeID: employeeID, Reason: "employee was not calculated in this period"})
	}
	if record.Status != payroll.RecordStatusValid {
		return apperror.New(apperror.KindValidationFailed, "payroll record is invalid",
			apperror.Detail{EmployeeID: employeeID, Field: "status", Reason: "invalid records have no payslip"})
	}
	emp, err := s.employees.Get(ctx, orgID, employeeID)
	if err != nil {
		return err
	}
	return RenderPayslip(w, p, emp, *record)
}
