package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of novedad types.
type Kind string

const (
	KindOvertime    Kind = "overtime"
	KindSurcharge   Kind = "surcharge"
	KindBonus       Kind = "bonus"
	KindCommission  Kind = "commission"
	KindPaidLeave   Kind = "paid_leave"
	KindDisability  Kind = "disability"
	KindAbsence     Kind = "absence"
	KindUnpaidLeave Kind = "unpaid_leave"
	KindDeduction   Kind = "deduction"
)

type Subtype string

const (
	SubtypeNone           Subtype = ""
	SubtypeDaytime        Subtype = "daytime"
	SubtypeNight          Subtype = "night"
	SubtypeHolidayDaytime Subtype = "holiday_daytime"
	SubtypeHolidayNight   Subtype = "holiday_night"
)

type Category int

const (
	CategoryHours Category = iota + 1
	CategoryAmount
	CategoryDays
	CategoryDeduction
)

// KindInfo describes how a kind is valued and whether it counts toward the
// IBC unless the adjustment says otherwise.
type KindInfo struct {
	Category     Category
	Constitutive bool
}

var kindTable = map[Kind]KindInfo{
	KindOvertime:    {Category: CategoryHours, Constitutive: true},
	KindSurcharge:   {Category: CategoryHours, Constitutive: true},
	KindBonus:       {Category: CategoryAmount, Constitutive: false},
	KindCommission:  {Category: CategoryAmount, Constitutive: true},
	KindPaidLeave:   {Category: CategoryAmount, Constitutive: true},
	KindDisability:  {Category: CategoryDays, Constitutive: false},
	KindAbsence:     {Category: CategoryDays, Constitutive: false},
	KindUnpaidLeave: {Category: CategoryDays, Constitutive: false},
	KindDeduction:   {Category: CategoryDeduction, Constitutive: false},
}

func LookupKind(kind Kind) (KindInfo, bool) {
	info, ok := kindTable[kind]
	return info, ok
}

func Kinds() []Kind {
	return []Kind{KindOvertime, KindSurcharge, KindBonus, KindCommission, KindPaidLeave, KindDisability, KindAbsence, KindUnpaidLeave, KindDeduction}
}

// SurchargeTable maps an hours-based kind and subtype to the multiplier
// applied to the hourly rate.
type SurchargeTable map[Kind]map[Subtype]decimal.Decimal

func DefaultSurcharges() SurchargeTable {
	return SurchargeTable{
		KindOvertime: {
			SubtypeNone:           decimal.RequireFromString("1.25"),
			SubtypeDaytime:        decimal.RequireFromString("1.25"),
			SubtypeNight:          decimal.RequireFromString("1.75"),
			SubtypeHolidayDaytime: decimal.RequireFromString("2.00"),
			SubtypeHolidayNight:   decimal.RequireFromString("2.50"),
		},
		KindSurcharge: {
			SubtypeNight:          decimal.RequireFromString("0.35"),
			SubtypeHolidayDaytime: decimal.RequireFromString("0.75"),
			SubtypeHolidayNight:   decimal.RequireFromString("1.10"),
		},
	}
}

func (t SurchargeTable) Factor(kind Kind, subtype Subtype) (decimal.Decimal, bool) {
	factors, ok := t[kind]
	if !ok {
		return decimal.Zero, false
	}
	factor, ok := factors[subtype]
	return factor, ok
}

// Adjustment is a novedad: one ad-hoc pay item for an employee in a period.
type Adjustment struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	PeriodID       string          `json:"periodId"`
	EmployeeID     string          `json:"employeeId"`
	Kind           Kind            `json:"kind"`
	Subtype        Subtype         `json:"subtype,omitempty"`
	Hours          decimal.Decimal `json:"hours"`
	Days           int             `json:"days"`
	Amount         decimal.Decimal `json:"amount"`
	Constitutive   bool            `json:"constitutive"`
	Description    string          `json:"description,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewAdjustment fills Constitutive from the kind table.
func NewAdjustment(kind Kind, subtype Subtype) Adjustment {
	info := kindTable[kind]
	return Adjustment{Kind: kind, Subtype: subtype, Hours: decimal.Zero, Amount: decimal.Zero, Constitutive: info.Constitutive}
}

func Overtime(subtype Subtype, hours decimal.Decimal) Adjustment {
	adj := NewAdjustment(KindOvertime, subtype)
	adj.Hours = hours
	return adj
}

func AmountAdjustment(kind Kind, amount decimal.Decimal) Adjustment {
	adj := NewAdjustment(kind, SubtypeNone)
	adj.Amount = amount
	return adj
}

func DaysAdjustment(kind Kind, days int) Adjustment {
	adj := NewAdjustment(kind, SubtypeNone)
	adj.Days = days
	return adj
}

// LatestUpdate is the version stamp of an adjustment set.
func LatestUpdate(adjustments []Adjustment) time.Time {
	var latest time.Time
	for _, adj := range adjustments {
		if adj.UpdatedAt.After(latest) {
			latest = adj.UpdatedAt
		}
	}
	return latest
}
