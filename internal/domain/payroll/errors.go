package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPeriodNotFound     = errors.New("payroll period not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrRecordNotFound     = errors.New("payroll record not found")
	ErrRecordFinalized    = errors.New("payroll record is finalized")
	ErrPeriodNotEditable  = errors.New("payroll period is closed; reopen it before editing")
	ErrAdjustmentsChanged = errors.New("adjustments changed since they were read")
	ErrVersionConflict    = errors.New("payroll period was modified concurrently")
)

// StaleAdjustmentsError names the employees whose stored adjustment sets
// moved past the stamp the caller read. It matches ErrAdjustmentsChanged.
type StaleAdjustmentsError struct {
	EmployeeIDs []string
}

func (e *StaleAdjustmentsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAdjustmentsChanged, strings.Join(e.EmployeeIDs, ", "))
}

func (e *StaleAdjustmentsError) Unwrap() error { return ErrAdjustmentsChanged }
