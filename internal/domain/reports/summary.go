package reports

import (
	"github.com/shopspring/decimal"

	"nomina/internal/domain/payroll"
	"nomina/internal/domain/period"
)

type Earnings struct {
	Regular   decimal.Decimal `json:"regular"`
	Overtime  decimal.Decimal `json:"overtime"`
	Bonuses   decimal.Decimal `json:"bonuses"`
	Transport decimal.Decimal `json:"transportSubsidy"`
}

type Deductions struct {
	Health  decimal.Decimal `json:"health"`
	Pension decimal.Decimal `json:"pension"`
	Other   decimal.Decimal `json:"other"`
}

type EmployerCosts struct {
	Health           decimal.Decimal `json:"health"`
	Pension          decimal.Decimal `json:"pension"`
	RiskInsurance    decimal.Decimal `json:"riskInsurance"`
	CompensationFund decimal.Decimal `json:"compensationFund"`
	ICBF             decimal.Decimal `json:"icbf"`
	SENA             decimal.Decimal `json:"sena"`
	Total            decimal.Decimal `json:"total"`
}

// PeriodSummary aggregates the valid records of a period. Invalid records
// are counted but never summed.
type PeriodSummary struct {
	Period           period.Period   `json:"period"`
	Employees        int             `json:"employees"`
	Valid            int             `json:"valid"`
	Invalid          int             `json:"invalid"`
	Finalized        int             `json:"finalized"`
	Totals           period.Totals   `json:"totals"`
	Earnings         Earnings        `json:"earnings"`
	Deductions       Deductions      `json:"deductions"`
	Employer         EmployerCosts   `json:"employer"`
	TotalPayrollCost decimal.Decimal `json:"totalPayrollCost"`
}

func Summarize(p period.Period, records []payroll.Record) PeriodSummary {
	s := PeriodSummary{
		Period:    p,
		Employees: len(records),
		Totals:    period.Totals{Gross: decimal.Zero, Deductions: decimal.Zero, Net: decimal.Zero},
		Earnings:  Earnings{Regular: decimal.Zero, Overtime: decimal.Zero, Bonuses: decimal.Zero, Transport: decimal.Zero},
		Deductions: Deductions{
			Health: decimal.Zero, Pension: decimal.Zero, Other: decimal.Zero,
		},
		Employer: EmployerCosts{
			Health: decimal.Zero, Pension: decimal.Zero, RiskInsurance: decimal.Zero,
			CompensationFund: decimal.Zero, ICBF: decimal.Zero, SENA: decimal.Zero, Total: decimal.Zero,
		},
		TotalPayrollCost: decimal.Zero,
	}
	for _, rec := range records {
		if rec.Finalized {
			s.Finalized++
		}
		if rec.Status != payroll.RecordStatusValid {
			s.Invalid++
			continue
		}
		s.Valid++
		b := rec.Breakdown
		s.Totals = s.Totals.Add(rec.Gross(), rec.Deductions(), rec.Net())

		s.Earnings.Regular = s.Earnings.Regular.Add(b.RegularPay)
		s.Earnings.Overtime = s.Earnings.Overtime.Add(b.OvertimePay)
		s.Earnings.Bonuses = s.Earnings.Bonuses.Add(b.Bonuses)
		s.Earnings.Transport = s.Earnings.Transport.Add(b.TransportSubsidy)

		s.Deductions.Health = s.Deductions.Health.Add(b.HealthDeduction)
		s.Deductions.Pension = s.Deductions.Pension.Add(b.PensionDeduction)
		s.Deductions.Other = s.Deductions.Other.Add(b.OtherDeductions)

		s.Employer.Health = s.Employer.Health.Add(b.EmployerHealth)
		s.Employer.Pension = s.Employer.Pension.Add(b.EmployerPension)
		s.Employer.RiskInsurance = s.Employer.RiskInsurance.Add(b.RiskInsurance)
		s.Employer.CompensationFund = s.Employer.CompensationFund.Add(b.CompensationFund)
		s.Employer.ICBF = s.Employer.ICBF.Add(b.ICBF)
		s.Employer.SENA = s.Employer.SENA.Add(b.SENA)
		s.Employer.Total = s.Employer.Total.Add(b.EmployerContributions)

		s.TotalPayrollCost = s.TotalPayrollCost.Add(b.TotalPayrollCost)
	}
	return s
}
