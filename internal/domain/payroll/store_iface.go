package payroll

import (
	"context"
	"time"

	"nomina/internal/domain/period"
)

// GhostCandidate is a draft period with the activity needed to classify it.
type GhostCandidate struct {
	Period        period.Period
	EmployeeCount int
	LastActivity  time.Time
}

// AdjustmentSet replaces one employee's adjustments. ExpectedUpdatedAt is
// the stamp of the set the caller read, zero for an empty set.
type AdjustmentSet struct {
	EmployeeID        string
	ExpectedUpdatedAt time.Time
	Adjustments       []Adjustment
}

type StoreAPI interface {
	GetEmployee(ctx context.Context, orgID, employeeID string) (Employee, error)
	ListActiveEmployees(ctx context.Context, orgID string) ([]Employee, error)

	CreatePeriod(ctx context.Context, p period.Period) (period.Period, error)
	GetPeriod(ctx context.Context, orgID, periodID string) (period.Period, error)
	ClosePeriod(ctx context.Context, orgID, periodID string, expected period.State, expectedVersion int64, totals period.Totals, employeeCount int, closedAt time.Time) (period.Period, error)
	ReopenPeriod(ctx context.Context, event period.ReopenEvent, expectedVersion int64) (period.Period, error)
	RestorePeriod(ctx context.Context, snapshot period.Period) error
	ListGhostCandidates(ctx context.Context, createdBefore time.Time) ([]GhostCandidate, error)
	ArchivePeriod(ctx context.Context, orgID, periodID string, at time.Time) error

	UpsertRecord(ctx context.Context, record Record) error
	ListRecords(ctx context.Context, orgID, periodID string) ([]Record, error)
	FinalizeRecords(ctx context.Context, orgID, periodID string, employeeIDs []string, at time.Time) error
	RestoreRecords(ctx context.Context, orgID, periodID string, records []Record) error

	ListAdjustments(ctx context.Context, orgID, periodID, employeeID string) ([]Adjustment, error)
	CreateAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	// ReplaceAdjustmentSets writes every set or none of them.
	ReplaceAdjustmentSets(ctx context.Context, orgID, periodID string, sets []AdjustmentSet) error
}
