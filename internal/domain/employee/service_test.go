package employee_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/domain/audit"
	"nomina/internal/domain/employee"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/payroll/memstore"
	"nomina/internal/platform/apperror"
)

const org = "org-1"

func newService(t *testing.T) (*employee.Service, *audit.Memory) {
	t.Helper()
	recorder := audit.NewMemory()
	return employee.NewService(memstore.New(), recorder), recorder
}

func sample() payroll.Employee {
	return payroll.Employee{
		OrganizationID: org,
		FirstName:      "Ana",
		LastName:       "Rojas",
		BaseSalary:     decimal.NewFromInt(1_300_000),
		BankName:       "Banco Uno",
		BankAccount:    "001234567890",
	}
}

func TestCreateDefaultsAndAudits(t *testing.T) {
	svc, recorder := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", sample())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, employee.StatusActive, created.Status)

	events := recorder.Events(audit.ActionEmployeeSave)
	require.Len(t, events, 1)
	assert.NotContains(t, string(events[0].After), "001234567890")
	assert.Contains(t, string(events[0].After), "7890")

	_, err = svc.Create(ctx, "user-1", created)
	assert.ErrorIs(t, err, apperror.ErrValidationFailed)
}

func TestCreateRejectsIncompleteEmployee(t *testing.T) {
	svc, _ := newService(t)
	bad := sample()
	bad.FirstName = ""
	bad.BaseSalary = decimal.Zero
	bad.Status = "retired"

	_, err := svc.Create(context.Background(), "user-1", bad)
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Len(t, appErr.Details, 3)
}

func TestUpdateKeepsBankAccountWhenOmitted(t *testing.T) {
	svc, recorder := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, "user-1", sample())
	require.NoError(t, err)

	change := created
	change.BankAccount = ""
	change.BaseSalary = decimal.NewFromInt(1_500_000)
	change.Status = employee.StatusTerminated
	updated, err := svc.Update(ctx, "user-2", change)
	require.NoError(t, err)
	assert.Equal(t, "001234567890", updated.BankAccount)
	assert.True(t, decimal.NewFromInt(1_500_000).Equal(updated.BaseSalary))

	active, err := svc.List(ctx, org, employee.StatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.List(ctx, org, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, recorder.Events(audit.ActionEmployeeSave), 2)
}

func TestUpdateAndGetUnknownEmployee(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	missing := sample()
	missing.ID = "nobody"
	_, err := svc.Update(ctx, "user-1", missing)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Get(ctx, "org-2", "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.List(ctx, org, "retired")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
