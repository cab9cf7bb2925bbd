package recalc

import (
	"time"

	"github.com/shopspring/decimal"

	"nomina/internal/domain/closure"
	"nomina/internal/domain/payroll"
	"nomina/internal/platform/apperror"
)

// Change replaces one employee's adjustment set. ExpectedUpdatedAt is the
// latest UpdatedAt of the set the caller edited, zero for an empty set.
type Change struct {
	EmployeeID        string               `json:"employeeId"`
	ExpectedUpdatedAt time.Time            `json:"expectedUpdatedAt"`
	WorkedDays        *int                 `json:"workedDays,omitempty"`
	Adjustments       []payroll.Adjustment `json:"adjustments"`
}

type ReopenRequest struct {
	OrganizationID string `json:"organizationId"`
	PeriodID       string `json:"periodId"`
	ActorID        string `json:"actorId"`
	Justification  string `json:"justification"`
}

type ApplyRequest struct {
	OrganizationID string   `json:"organizationId"`
	PeriodID       string   `json:"periodId"`
	ActorID        string   `json:"actorId"`
	Justification  string   `json:"justification"`
	Changes        []Change `json:"changes"`
}

// Diff is the old and new breakdown of one employee.
type Diff struct {
	EmployeeID string               `json:"employeeId"`
	Before     *payroll.Breakdown   `json:"before,omitempty"`
	After      payroll.Breakdown    `json:"after"`
	Status     payroll.RecordStatus `json:"status"`
	Issues     []apperror.Detail    `json:"issues,omitempty"`
	GrossDelta decimal.Decimal      `json:"grossDelta"`
	NetDelta   decimal.Decimal      `json:"netDelta"`
	// Stale is set when the stored adjustments moved past ExpectedUpdatedAt.
	Stale bool `json:"stale"`

	record payroll.Record
}

type ApplyResult struct {
	Diffs   []Diff                `json:"diffs"`
	Closure closure.ClosureResult `json:"closure"`
}
