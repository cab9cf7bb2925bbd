package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
)

type Employee struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	BaseSalary     decimal.Decimal `json:"baseSalary"`
	ContractType   string          `json:"contractType"`
	HealthInsurer  string          `json:"healthInsurer"`
	PensionFund    string          `json:"pensionFund"`
	RiskInsurer    string          `json:"riskInsurer"`
	BankName       string          `json:"bankName"`
	BankAccount    string          `json:"bankAccount"`
	Status         string          `json:"status"`
}

// EmployeeInput is everything the calculator needs for one employee.
type EmployeeInput struct {
	EmployeeID  string          `json:"employeeId"`
	BaseSalary  decimal.Decimal `json:"baseSalary"`
	WorkedDays  int             `json:"workedDays"`
	Adjustments []Adjustment    `json:"adjustments"`
}

// Line is the monetary value an adjustment contributed to a breakdown.
type Line struct {
	AdjustmentID string          `json:"adjustmentId,omitempty"`
	Kind         Kind            `json:"kind"`
	Subtype      Subtype         `json:"subtype,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Constitutive bool            `json:"constitutive"`
}

type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Breakdown struct {
	EmployeeID     string      `json:"employeeId"`
	PeriodType     period.Type `json:"periodType"`
	ReferenceDate  time.Time   `json:"referenceDate"`
	ParametersFrom time.Time   `json:"parametersFrom"`

	BaseSalary    decimal.Decimal `json:"baseSalary"`
	WorkedDays    int             `json:"workedDays"`
	EffectiveDays int             `json:"effectiveDays"`
	DailyDivisor  int             `json:"dailyDivisor"`
	HourlyDivisor decimal.Decimal `json:"hourlyDivisor"`

	RegularPay       decimal.Decimal `json:"regularPay"`
	OvertimePay      decimal.Decimal `json:"overtimePay"`
	Bonuses          decimal.Decimal `json:"bonuses"`
	TransportSubsidy decimal.Decimal `json:"transportSubsidy"`
	GrossPay         decimal.Decimal `json:"grossPay"`

	ConstitutiveTotal decimal.Decimal `json:"constitutiveTotal"`
	IBC               decimal.Decimal `json:"ibc"`
	HealthDeduction   decimal.Decimal `json:"healthDeduction"`
	PensionDeduction  decimal.Decimal `json:"pensionDeduction"`
	OtherDeductions   decimal.Decimal `json:"otherDeductions"`
	TotalDeductions   decimal.Decimal `json:"totalDeductions"`
	NetPay            decimal.Decimal `json:"netPay"`

	EmployerHealth        decimal.Decimal `json:"employerHealth"`
	EmployerPension       decimal.Decimal `json:"employerPension"`
	RiskInsurance         decimal.Decimal `json:"riskInsurance"`
	CompensationFund      decimal.Decimal `json:"compensationFund"`
	ICBF                  decimal.Decimal `json:"icbf"`
	SENA                  decimal.Decimal `json:"sena"`
	EmployerContributions decimal.Decimal `json:"employerContributions"`
	TotalPayrollCost      decimal.Decimal `json:"totalPayrollCost"`

	Lines    []Line    `json:"lines,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

type RecordStatus string

// Record is the persisted breakdown for one (period, employee) pair.
type Record struct {
	OrganizationID string            `json:"organizationId"`
	PeriodID       string            `json:"periodId"`
	EmployeeID     string            `json:"employeeId"`
	BaseSalary     decimal.Decimal   `json:"baseSalary"`
	WorkedDays     int               `json:"workedDays"`
	Breakdown      Breakdown         `json:"breakdown"`
	Status         RecordStatus      `json:"status"`
	Issues         []apperror.Detail `json:"issues,omitempty"`
	Finalized      bool              `json:"finalized"`
	FinalizedAt    *time.Time        `json:"finalizedAt,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (r Record) Gross() decimal.Decimal      { return r.Breakdown.GrossPay }
func (r Record) Deductions() decimal.Decimal { return r.Breakdown.TotalDeductions }
func (r Record) Net() decimal.Decimal        { return r.Breakdown.NetPay }

// SumRecords totals gross, deductions and net over records.
func SumRecords(records []Record) period.Totals {
	totals := period.Totals{Gross: decimal.Zero, Deductions: decimal.Zero, Net: decimal.Zero}
	for _, rec := range records {
		totals = totals.Add(rec.Gross(), rec.Deductions(), rec.Net())
	}
	return totals
}

// RunRequest selects the employees of a batch calculation. Employees
// without an explicit worked-day count are paid the full period.
type RunRequest struct {
	OrganizationID string
	PeriodID       string
	EmployeeIDs    []string
	WorkedDays     map[string]int
}

type RunResult struct {
	PeriodID string            `json:"periodId"`
	Valid    []Record          `json:"valid"`
	Invalid  []Record          `json:"invalid"`
	Issues   []apperror.Detail `json:"issues,omitempty"`
}
