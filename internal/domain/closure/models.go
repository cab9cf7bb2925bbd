package closure

import (
	"time"

	"nomina/internal/domain/benefits"
	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
	"nomina/internal/platform/retry"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	// Timeout bounds the whole closure; exceeding it rolls back.
	Timeout  time.Duration
	Rollback retry.Policy
	Workers  int
}

func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, Rollback: retry.Default(), Workers: payroll.DefaultWorkers}
}

type CloseRequest struct {
	OrganizationID string   `json:"organizationId"`
	PeriodID       string   `json:"periodId"`
	EmployeeIDs    []string `json:"employeeIds"`
	ActorID        string   `json:"actorId"`
}

// Inconsistency is a mismatch found after a successful closure between the
// persisted period totals and the sum of its finalized records.
type Inconsistency struct {
	Persisted period.Totals `json:"persisted"`
	Finalized period.Totals `json:"finalized"`
}

type NextPeriod struct {
	StartDate time.Time   `json:"startDate"`
	EndDate   time.Time   `json:"endDate"`
	Type      period.Type `json:"type"`
}

type ClosureResult struct {
	Period        period.Period          `json:"period"`
	Totals        period.Totals          `json:"totals"`
	EmployeeCount int                    `json:"employeeCount"`
	Records       []payroll.Record       `json:"records"`
	Accruals      []benefits.Calculation `json:"accruals,omitempty"`
	RolledBack    bool                   `json:"rolledBack"`
	Inconsistency *Inconsistency         `json:"inconsistency,omitempty"`
	Next          NextPeriod             `json:"next"`
}

// snapshot is everything needed to put a period back the way it was.
type snapshot struct {
	period      period.Period
	records     []payroll.Record
	employeeIDs []string
	accruals    []benefits.Calculation
}
