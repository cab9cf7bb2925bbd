package benefits

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindSeverance         Kind = "severance"
	KindSeveranceInterest Kind = "severance_interest"
	KindServiceBonus      Kind = "service_bonus"
	KindVacation          Kind = "vacation"
)

// Kinds lists the accruals in dependency order: interest needs severance.
func Kinds() []Kind {
	return []Kind{KindSeverance, KindSeveranceInterest, KindServiceBonus, KindVacation}
}

func (k Kind) Valid() bool {
	switch k {
	case KindSeverance, KindSeveranceInterest, KindServiceBonus, KindVacation:
		return true
	}
	return false
}

type Periodicity string

const (
	PeriodicityWeekly   Periodicity = "weekly"
	PeriodicityBiweekly Periodicity = "biweekly"
	PeriodicityMonthly  Periodicity = "monthly"
)

// Calculation is one stored accrual, unique per (employee, kind, start, end).
type Calculation struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	EmployeeID     string          `json:"employeeId"`
	Kind           Kind            `json:"kind"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	Amount         decimal.Decimal `json:"amount"`
	MonthlySalary  decimal.Decimal `json:"monthlySalary"`
	MonthlySubsidy decimal.Decimal `json:"monthlySubsidy"`
	Days           int             `json:"days"`
	Rate           decimal.Decimal `json:"rate"`
	ComputedAt     time.Time       `json:"computedAt"`
}

// Result is the outcome of the pure calculation, before it is stored.
type Result struct {
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Days        int             `json:"days"`
	Rate        decimal.Decimal `json:"rate"`
	Periodicity Periodicity     `json:"periodicity,omitempty"`
}

type AccrualRequest struct {
	OrganizationID string
	EmployeeID     string
	MonthlySalary  decimal.Decimal
	PeriodStart    time.Time
	PeriodEnd      time.Time
}
