package period

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateDraft    State = "draft"
	StateClosed   State = "closed"
	StateReopened State = "reopened"
)

type Type string

const (
	TypeWeekly   Type = "weekly"
	TypeBiweekly Type = "biweekly"
	TypeMonthly  Type = "monthly"
)

// MaxDays is the number of payable days the period type covers.
func (t Type) MaxDays() int {
	switch t {
	case TypeWeekly:
		return 7
	case TypeBiweekly:
		return 15
	case TypeMonthly:
		return 30
	}
	return 0
}

// MaxCalendarDays is the longest date range a period of the type may span.
func (t Type) MaxCalendarDays() int {
	switch t {
	case TypeWeekly:
		return 7
	case TypeBiweekly:
		return 16
	case TypeMonthly:
		return 31
	}
	return 0
}

func (t Type) Valid() bool {
	return t.MaxDays() > 0
}

func ParseType(raw string) (Type, bool) {
	t := Type(raw)
	return t, t.Valid()
}

type Totals struct {
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}

func (t Totals) Add(gross, deductions, net decimal.Decimal) Totals {
	return Totals{
		Gross:      t.Gross.Add(gross),
		Deductions: t.Deductions.Add(deductions),
		Net:        t.Net.Add(net),
	}
}

func (t Totals) Equal(other Totals) bool {
	return t.Gross.Equal(other.Gross) && t.Deductions.Equal(other.Deductions) && t.Net.Equal(other.Net)
}

type Period struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        time.Time  `json:"endDate"`
	Type           Type       `json:"type"`
	State          State      `json:"state"`
	Totals         Totals     `json:"totals"`
	EmployeeCount  int        `json:"employeeCount"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
}

// Editable reports whether records and adjustments of the period may change.
func (p Period) Editable() bool {
	return p.State == StateDraft || p.State == StateReopened
}

// Overlaps reports whether the inclusive date ranges of p and other intersect.
func (p Period) Overlaps(start, end time.Time) bool {
	return !p.StartDate.After(end) && !start.After(p.EndDate)
}

// ReopenEvent is one row of a period's reopen audit trail.
type ReopenEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	PeriodID       string    `json:"periodId"`
	ActorID        string    `json:"actorId"`
	Justification  string    `json:"justification"`
	CreatedAt      time.Time `json:"createdAt"`
}
