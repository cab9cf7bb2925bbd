// Package employee maintains the payroll master data the calculator reads:
// base salary, contract, social security affiliations and bank details.
package employee

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/payroll"
	"nomina/internal/platform/apperror"
)

const (
	StatusActive     = payroll.EmployeeStatusActive
	StatusInactive   = "inactive"
	StatusTerminated = "terminated"
)

var statuses = []string{StatusActive, StatusInactive, StatusTerminated}

type StoreAPI interface {
	GetEmployee(ctx context.Context, orgID, employeeID string) (payroll.Employee, error)
	ListEmployees(ctx context.Context, orgID, status string) ([]payroll.Employee, error)
	CreateEmployee(ctx context.Context, e payroll.Employee) (payroll.Employee, error)
	UpdateEmployee(ctx context.Context, e payroll.Employee) (payroll.Employee, error)
}

type Service struct {
	store StoreAPI
	audit audit.Recorder
}

func NewService(store StoreAPI, recorder audit.Recorder) *Service {
	return &Service{store: store, audit: recorder}
}

func (s *Service) Get(ctx context.Context, orgID, employeeID string) (payroll.Employee, error) {
	e, err := s.store.GetEmployee(ctx, orgID, employeeID)
	if errors.Is(err, payroll.ErrEmployeeNotFound) {
		return payroll.Employee{}, apperror.Wrap(err, apperror.KindNotFound, "employee not found")
	}
	return e, err
}

func (s *Service) List(ctx context.Context, orgID, status string) ([]payroll.Employee, error) {
	if status != "" && !slices.Contains(statuses, status) {
		return nil, apperror.New(apperror.KindInvalidInput, "unknown employee status",
			apperror.Detail{Field: "status", Reason: "must be one of " + strings.Join(statuses, ", ")})
	}
	return s.store.ListEmployees(ctx, orgID, status)
}

// Create assigns an ID when the caller gave none and defaults the status
// to active.
func (s *Service) Create(ctx context.Context, actorID string, e payroll.Employee) (payroll.Employee, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusActive
	}
	if err := validate(e); err != nil {
		return payroll.Employee{}, err
	}
	if _, err := s.store.GetEmployee(ctx, e.OrganizationID, e.ID); err == nil {
		return payroll.Employee{}, apperror.New(apperror.KindValidationFailed, "employee already exists",
			apperror.Detail{EmployeeID: e.ID, Field: "id", Reason: "already registered"})
	} else if !errors.Is(err, payroll.ErrEmployeeNotFound) {
		return payroll.Employee{}, err
	}
	created, err := s.store.CreateEmployee(ctx, e)
	if err != nil {
		return payroll.Employee{}, err
	}
	s.record(ctx, actorID, created.OrganizationID, created.ID, nil, created)
	return created, nil
}

// Update replaces the employee's master data. An empty bank account keeps
// the stored one.
func (s *Service) Update(ctx context.Context, actorID string, e payroll.Employee) (payroll.Employee, error) {
	current, err := s.Get(ctx, e.OrganizationID, e.ID)
	if err != nil {
		return payroll.Employee{}, err
	}
	if e.Status == "" {
		e.Status = current.Status
	}
	if e.BankAccount == "" {
		e.BankAccount = current.BankAccount
	}
	if err := validate(e); err != nil {
		return payroll.Employee{}, err
	}
	updated, err := s.store.UpdateEmployee(ctx, e)
	if errors.Is(err, payroll.ErrEmployeeNotFound) {
		return payroll.Employee{}, apperror.Wrap(err, apperror.KindNotFound, "employee not found")
	}
	if err != nil {
		return payroll.Employee{}, err
	}
	s.record(ctx, actorID, updated.OrganizationID, updated.ID, current, updated)
	return updated, nil
}

func (s *Service) record(ctx context.Context, actorID, orgID, employeeID string, before, after any) {
	if s.audit == nil {
		return
	}
	if b, ok := before.(payroll.Employee); ok {
		before = Masked(b)
	}
	if a, ok := after.(payroll.Employee); ok {
		after = Masked(a)
	}
	if err := s.audit.Record(ctx, orgID, actorID, audit.ActionEmployeeSave, audit.EntityEmployee, employeeID, before, after); err != nil {
		slog.WarnContext(ctx, "employee audit failed", "employeeId", employeeID, "err", err)
	}
}

func validate(e payroll.Employee) error {
	var details []apperror.Detail
	if strings.TrimSpace(e.OrganizationID) == "" {
		details = append(details, apperror.Detail{EmployeeID: e.ID, Field: "organizationId", Reason: "is required"})
	}
	if strings.TrimSpace(e.FirstName) == "" {
		details = append(details, apperror.Detail{EmployeeID: e.ID, Field: "firstName", Reason: "is required"})
	}
	if strings.TrimSpace(e.LastName) == "" {
		details = append(details, apperror.Detail{EmployeeID: e.ID, Field: "lastName", Reason: "is required"})
	}
	if !e.BaseSalary.IsPositive() {
		details = append(details, apperror.Detail{EmployeeID: e.ID, Field: "baseSalary", Reason: "must be greater than zero"})
	}
	if !slices.Contains(statuses, e.Status) {
		details = append(details, apperror.Detail{EmployeeID: e.ID, Field: "status", Reason: "must be one of " + strings.Join(statuses, ", ")})
	}
	if len(details) > 0 {
		return apperror.New(apperror.KindInvalidInput, "invalid employee", details...)
	}
	return nil
}
