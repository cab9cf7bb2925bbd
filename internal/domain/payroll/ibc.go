package payroll

import (
	"github.com/shopspring/decimal"

	"nomina/internal/platform/money"
)

// IBCDayCap is the calendar convention for a month of contributions.
const IBCDayCap = 30

// ResolveIBC returns round(base/30 × min(workedDays, 30) + constitutiveTotal).
// It is the only IBC formula; the calculator and previews both call it.
func ResolveIBC(baseSalary decimal.Decimal, workedDays int, constitutiveTotal decimal.Decimal) decimal.Decimal {
	days := workedDays
	if days > IBCDayCap {
		days = IBCDayCap
	}
	if days < 0 {
		days = 0
	}
	prorated := baseSalary.Mul(decimal.NewFromInt(int64(days))).Div(money.Thirty)
	return money.Round(prorated.Add(constitutiveTotal))
}

// ConstitutiveTotal values every adjustment and sums the ones flagged
// constitutive. Day-based kinds and deductions never count.
func ConstitutiveTotal(adjustments []Adjustment, baseSalary, hourlyDivisor decimal.Decimal, surcharges SurchargeTable) decimal.Decimal {
	total := decimal.Zero
	for _, adj := range adjustments {
		line, ok := valueAdjustment(adj, baseSalary, hourlyDivisor, surcharges)
		if !ok || !line.Constitutive {
			continue
		}
		total = total.Add(line.Amount)
	}
	return total
}

// valueAdjustment prices an earning adjustment. It reports false for kinds
// that carry no earning of their own (days and deductions) and for hours
// with no configured factor.
func valueAdjustment(adj Adjustment, baseSalary, hourlyDivisor decimal.Decimal, surcharges SurchargeTable) (Line, bool) {
	info, ok := LookupKind(adj.Kind)
	if !ok {
		return Line{}, false
	}
	line := Line{AdjustmentID: adj.ID, Kind: adj.Kind, Subtype: adj.Subtype, Constitutive: adj.Constitutive}
	switch info.Category {
	case CategoryHours:
		factor, ok := surcharges.Factor(adj.Kind, adj.Subtype)
		if !ok || hourlyDivisor.IsZero() {
			return Line{}, false
		}
		line.Amount = money.Round(baseSalary.Mul(adj.Hours).Mul(factor).Div(hourlyDivisor))
	case CategoryAmount:
		line.Amount = money.Round(adj.Amount)
	default:
		return Line{}, false
	}
	return line, true
}
