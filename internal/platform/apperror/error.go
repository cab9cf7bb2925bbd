package apperror

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindInvalidInput           Kind = "invalid_input"
	KindMissingDependency      Kind = "missing_dependency"
	KindUnsupportedPeriodicity Kind = "unsupported_periodicity"
	KindValidationFailed       Kind = "validation_failed"
	KindConcurrentModification Kind = "concurrent_modification"
	KindTimeout                Kind = "timeout"
	KindCriticalInconsistency  Kind = "critical_inconsistency"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindStaleAdjustmentSet     Kind = "stale_adjustment_set"
	KindNotFound               Kind = "not_found"
	KindCommitFailed           Kind = "commit_failed"
)

// Sentinels for errors.Is; every *Error unwraps to the one matching its kind.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrMissingDependency      = errors.New("missing dependency")
	ErrUnsupportedPeriodicity = errors.New("unsupported periodicity")
	ErrValidationFailed       = errors.New("validation failed")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrTimeout                = errors.New("timeout")
	ErrCriticalInconsistency  = errors.New("critical inconsistency")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStaleAdjustmentSet     = errors.New("stale adjustment set")
	ErrNotFound               = errors.New("not found")
	ErrCommitFailed           = errors.New("commit failed")
)

var sentinels = map[Kind]error{
	KindInvalidInput:           ErrInvalidInput,
	KindMissingDependency:      ErrMissingDependency,
	KindUnsupportedPeriodicity: ErrUnsupportedPeriodicity,
	KindValidationFailed:       ErrValidationFailed,
	KindConcurrentModification: ErrConcurrentModification,
	KindTimeout:                ErrTimeout,
	KindCriticalInconsistency:  ErrCriticalInconsistency,
	KindInvalidStateTransition: ErrInvalidStateTransition,
	KindStaleAdjustmentSet:     ErrStaleAdjustmentSet,
	KindNotFound:               ErrNotFound,
	KindCommitFailed:           ErrCommitFailed,
}

// Detail pins a failure to an employee, a field or a precondition.
type Detail struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Field      string `json:"field,omitempty"`
	Reason     string `json:"reason"`
}

type Error struct {
	Kind       Kind
	Message    string
	Details    []Detail
	RolledBack bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for i, d := range e.Details {
		if i == 0 {
			b.WriteString(" [")
		} else {
			b.WriteString("; ")
		}
		if d.EmployeeID != "" {
			b.WriteString(d.EmployeeID)
			b.WriteString(" ")
		}
		if d.Field != "" {
			b.WriteString(d.Field)
			b.WriteString(": ")
		}
		b.WriteString(d.Reason)
		if i == len(e.Details)-1 {
			b.WriteString("]")
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if sentinel, ok := sentinels[e.Kind]; ok {
		out = append(out, sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func New(kind Kind, message string, details ...Detail) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As extracts the structured error from err, if any.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if target, ok := As(err); ok {
		return target.Kind
	}
	return ""
}

// IsClientError reports whether err was caused by the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrUnsupportedPeriodicity) ||
		errors.Is(err, ErrMissingDependency) ||
		errors.Is(err, ErrStaleAdjustmentSet)
}

// IsRetryable reports whether the same request may succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommitFailed)
}
