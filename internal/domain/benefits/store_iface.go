package benefits

import (
	"context"
	"time"
)

type StoreAPI interface {
	UpsertCalculation(ctx context.Context, calc Calculation) (Calculation, error)
	GetCalculation(ctx context.Context, orgID, employeeID string, kind Kind, start, end time.Time) (Calculation, error)
	// ListCalculations returns every accrual of the employees for exactly [start, end].
	ListCalculations(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time) ([]Calculation, error)
	// ReplaceCalculations drops the employees' accruals for [start, end] and stores calcs in their place.
	ReplaceCalculations(ctx context.Context, orgID string, employeeIDs []string, start, end time.Time, calcs []Calculation) error
}
