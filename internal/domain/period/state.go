package period

import (
	"errors"
	"time"

	"nomina/internal/platform/apperror"
)

var (
	ErrOverlappingPeriod = errors.New("an open payroll period already covers part of this date range")
	ErrInvalidRange      = errors.New("period end date must not be before start date")
)

var transitions = map[State][]State{
	StateDraft:    {StateClosed},
	StateClosed:   {StateReopened},
	StateReopened: {StateClosed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from → to and returns an InvalidStateTransition
// error for anything outside draft→closed, closed→reopened, reopened→closed.
func Transition(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return apperror.Newf(apperror.KindInvalidStateTransition, "period cannot move from %s to %s", from, to)
}

// IsGhost flags a draft that nobody is working on: no employees recorded,
// or no activity within staleAfter. Advisory only; it never changes state.
func IsGhost(p Period, employeeCount int, lastActivity, now time.Time, staleAfter time.Duration) bool {
	if p.State != StateDraft || p.ArchivedAt != nil {
		return false
	}
	if employeeCount == 0 {
		return now.Sub(p.CreatedAt) >= staleAfter
	}
	if lastActivity.IsZero() {
		lastActivity = p.UpdatedAt
	}
	return now.Sub(lastActivity) >= staleAfter
}

// SuggestNext proposes the period that follows p for the same periodicity.
func SuggestNext(p Period) (start, end time.Time) {
	start = p.EndDate.AddDate(0, 0, 1)
	switch p.Type {
	case TypeWeekly:
		end = start.AddDate(0, 0, 6)
	case TypeBiweekly:
		if start.Day() <= 15 {
			end = time.Date(start.Year(), start.Month(), 15, 0, 0, 0, 0, start.Location())
		} else {
			end = endOfMonth(start)
		}
	default:
		if start.Day() == 1 {
			end = endOfMonth(start)
		} else {
			end = start.AddDate(0, 1, -1)
		}
	}
	return start, end
}

func endOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}

// InclusiveDays counts calendar days from start to end, both included.
func InclusiveDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}
