package legal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Set is the statutory parameter set in force from EffectiveFrom onward.
// Percentages are expressed as 4 for 4%.
type Set struct {
	EffectiveFrom       time.Time       `json:"effectiveFrom"`
	MinimumWage         decimal.Decimal `json:"minimumWage"`
	TransportSubsidy    decimal.Decimal `json:"transportSubsidy"`
	SubsidyCapMultiple  decimal.Decimal `json:"subsidyCapMultiple"`
	WeeklyHours         int             `json:"weeklyHours"`
	HealthEmployeePct   decimal.Decimal `json:"healthEmployeePct"`
	PensionEmployeePct  decimal.Decimal `json:"pensionEmployeePct"`
	HealthEmployerPct   decimal.Decimal `json:"healthEmployerPct"`
	PensionEmployerPct  decimal.Decimal `json:"pensionEmployerPct"`
	RiskInsurancePct    decimal.Decimal `json:"riskInsurancePct"`
	CompensationFundPct decimal.Decimal `json:"compensationFundPct"`
	ICBFPct             decimal.Decimal `json:"icbfPct"`
	SENAPct             decimal.Decimal `json:"senaPct"`
}

// SubsidyCap is the highest monthly salary still entitled to the transport
// subsidy.
func (s Set) SubsidyCap() decimal.Decimal {
	return s.MinimumWage.Mul(s.SubsidyCapMultiple)
}

func (s Set) SubsidyEligible(monthlySalary decimal.Decimal) bool {
	return monthlySalary.LessThanOrEqual(s.SubsidyCap())
}

// HourlyDivisor is round(weeklyHours × 52 / 12), the monthly hours used to
// derive an hourly rate from a monthly salary.
func (s Set) HourlyDivisor() decimal.Decimal {
	return decimal.NewFromInt(int64(s.WeeklyHours)).
		Mul(decimal.NewFromInt(52)).
		Div(decimal.NewFromInt(12)).
		Round(0)
}

var ErrEmptyTable = errors.New("legal parameter table has no sets")

// Table is an immutable list of parameter sets ordered by effective date.
type Table struct {
	sets []Set
}

func NewTable(sets ...Set) (*Table, error) {
	if len(sets) == 0 {
		return nil, ErrEmptyTable
	}
	sorted := make([]Set, len(sets))
	copy(sorted, sets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveFrom.Before(sorted[j].EffectiveFrom)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].EffectiveFrom.Equal(sorted[i-1].EffectiveFrom) {
			return nil, fmt.Errorf("duplicate legal parameter set effective %s", sorted[i].EffectiveFrom.Format(time.DateOnly))
		}
	}
	return &Table{sets: sorted}, nil
}

func MustTable(sets ...Set) *Table {
	table, err := NewTable(sets...)
	if err != nil {
		panic(err)
	}
	return table
}

// Resolve returns the set with the latest effective date on or before ref.
// Dates before the first set fall back to the earliest set.
func (t *Table) Resolve(ref time.Time) Set {
	day := dateOnly(ref)
	idx := sort.Search(len(t.sets), func(i int) bool {
		return dateOnly(t.sets[i].EffectiveFrom).After(day)
	})
	if idx == 0 {
		return t.sets[0]
	}
	return t.sets[idx-1]
}

// Sets returns a copy of the table in effective-date order.
func (t *Table) Sets() []Set {
	out := make([]Set, len(t.sets))
	copy(out, t.sets)
	return out
}

// LoadTable reads a JSON array of sets.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sets []Set
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("parse legal parameters %s: %w", path, err)
	}
	return NewTable(sets...)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
