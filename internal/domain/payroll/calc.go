package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nomina/internal/domain/legal"
	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
	"nomina/internal/platform/money"
)

// DefaultDailyDivisors are the monthly-equivalent day counts used to turn a
// monthly salary into a daily rate. Biweekly keeps the 30-day convention.
func DefaultDailyDivisors() map[period.Type]int {
	return map[period.Type]int{
		period.TypeMonthly:  30,
		period.TypeBiweekly: 30,
		period.TypeWeekly:   120,
	}
}

// subsidyShare is the fraction of the monthly transport subsidy a full
// period of each type pays.
var subsidyShare = map[period.Type]int64{
	period.TypeMonthly:  1,
	period.TypeBiweekly: 2,
	period.TypeWeekly:   4,
}

var overtimeWeeklyShare = decimal.RequireFromString("0.25")

type Calculator struct {
	params     *legal.Table
	surcharges SurchargeTable
	divisors   map[period.Type]int
}

type Option func(*Calculator)

func WithSurcharges(table SurchargeTable) Option {
	return func(c *Calculator) { c.surcharges = table }
}

func WithDailyDivisors(divisors map[period.Type]int) Option {
	return func(c *Calculator) { c.divisors = divisors }
}

func NewCalculator(params *legal.Table, opts ...Option) *Calculator {
	c := &Calculator{
		params:     params,
		surcharges: DefaultSurcharges(),
		divisors:   DefaultDailyDivisors(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) Params() *legal.Table { return c.params }

func (c *Calculator) Surcharges() SurchargeTable { return c.surcharges }

// Calculate produces the full pay breakdown of one employee for one period.
// ref must be the period's reference date so that recalculating a historical
// period reproduces the same legal basis.
func (c *Calculator) Calculate(in EmployeeInput, pt period.Type, ref time.Time) (Breakdown, error) {
	set := c.params.Resolve(ref)
	if err := c.validate(in, pt, set); err != nil {
		return Breakdown{}, err
	}

	maxDays := pt.MaxDays()
	hourlyDivisor := set.HourlyDivisor()
	b := Breakdown{
		EmployeeID:     in.EmployeeID,
		PeriodType:     pt,
		ReferenceDate:  ref,
		ParametersFrom: set.EffectiveFrom,
		BaseSalary:     in.BaseSalary,
		WorkedDays:     in.WorkedDays,
		DailyDivisor:   c.divisors[pt],
		HourlyDivisor:  hourlyDivisor,
	}

	absentDays := 0
	overtimeHours := decimal.Zero
	overtime := decimal.Zero
	bonuses := decimal.Zero
	otherDeductions := decimal.Zero
	for _, adj := range in.Adjustments {
		info, _ := LookupKind(adj.Kind)
		switch info.Category {
		case CategoryDays:
			absentDays += adj.Days
			continue
		case CategoryDeduction:
			otherDeductions = otherDeductions.Add(money.Round(adj.Amount))
			continue
		}
		line, ok := valueAdjustment(adj, in.BaseSalary, hourlyDivisor, c.surcharges)
		if !ok {
			continue
		}
		b.Lines = append(b.Lines, line)
		if info.Category == CategoryHours {
			overtime = overtime.Add(line.Amount)
			if adj.Kind == KindOvertime {
				overtimeHours = overtimeHours.Add(adj.Hours)
			}
		} else {
			bonuses = bonuses.Add(line.Amount)
		}
	}

	b.EffectiveDays = in.WorkedDays - absentDays
	if b.EffectiveDays < 0 {
		b.EffectiveDays = 0
	}
	effective := decimal.NewFromInt(int64(b.EffectiveDays))

	b.RegularPay = money.Round(in.BaseSalary.Mul(effective).Div(decimal.NewFromInt(int64(b.DailyDivisor))))
	b.OvertimePay = overtime
	b.Bonuses = bonuses
	b.TransportSubsidy = decimal.Zero
	if set.SubsidyEligible(in.BaseSalary) {
		denominator := decimal.NewFromInt(int64(maxDays) * subsidyShare[pt])
		b.TransportSubsidy = money.Round(set.TransportSubsidy.Mul(effective).Div(denominator))
	}
	b.GrossPay = money.Sum(b.RegularPay, b.OvertimePay, b.Bonuses, b.TransportSubsidy)

	b.ConstitutiveTotal = ConstitutiveTotal(in.Adjustments, in.BaseSalary, hourlyDivisor, c.surcharges)
	b.IBC = ResolveIBC(in.BaseSalary, in.WorkedDays, b.ConstitutiveTotal)
	b.HealthDeduction = money.Pct(b.IBC, set.HealthEmployeePct)
	b.PensionDeduction = money.Pct(b.IBC, set.PensionEmployeePct)
	b.OtherDeductions = otherDeductions
	b.TotalDeductions = money.Sum(b.HealthDeduction, b.PensionDeduction, b.OtherDeductions)
	b.NetPay = b.GrossPay.Sub(b.TotalDeductions)

	employerBase := money.Sum(b.RegularPay, b.OvertimePay, b.Bonuses)
	b.EmployerHealth = money.Pct(employerBase, set.HealthEmployerPct)
	b.EmployerPension = money.Pct(employerBase, set.PensionEmployerPct)
	b.RiskInsurance = money.Pct(employerBase, set.RiskInsurancePct)
	b.CompensationFund = money.Pct(employerBase, set.CompensationFundPct)
	b.ICBF = money.Pct(employerBase, set.ICBFPct)
	b.SENA = money.Pct(employerBase, set.SENAPct)
	b.EmployerContributions = money.Sum(b.EmployerHealth, b.EmployerPension, b.RiskInsurance, b.CompensationFund, b.ICBF, b.SENA)
	b.TotalPayrollCost = b.NetPay.Add(b.EmployerContributions)

	weeklyOvertime := overtimeHours.Mul(decimal.NewFromInt(7)).Div(decimal.NewFromInt(int64(maxDays)))
	limit := decimal.NewFromInt(int64(set.WeeklyHours)).Mul(overtimeWeeklyShare)
	if weeklyOvertime.GreaterThan(limit) {
		b.Warnings = append(b.Warnings, Warning{
			Code:    WarningOvertimeLimit,
			Field:   "adjustments",
			Message: fmt.Sprintf("estimated weekly overtime %s h exceeds %s h", weeklyOvertime.StringFixed(1), limit.StringFixed(1)),
		})
	}
	if !set.SubsidyEligible(in.BaseSalary) {
		b.Warnings = append(b.Warnings, Warning{
			Code:    WarningSubsidyIneligible,
			Field:   "baseSalary",
			Message: "salary above transport subsidy cap",
		})
	}
	if b.NetPay.IsNegative() {
		b.Warnings = append(b.Warnings, Warning{Code: WarningNegativeNet, Field: "netPay", Message: "deductions exceed gross pay"})
	}
	return b, nil
}

// PreviewIBC validates the input like Calculate and returns only the IBC.
func (c *Calculator) PreviewIBC(in EmployeeInput, pt period.Type, ref time.Time) (decimal.Decimal, error) {
	set := c.params.Resolve(ref)
	if err := c.validate(in, pt, set); err != nil {
		return decimal.Zero, err
	}
	total := ConstitutiveTotal(in.Adjustments, in.BaseSalary, set.HourlyDivisor(), c.surcharges)
	return ResolveIBC(in.BaseSalary, in.WorkedDays, total), nil
}

func (c *Calculator) validate(in EmployeeInput, pt period.Type, set legal.Set) error {
	var issues []apperror.Detail
	add := func(field, reason string) {
		issues = append(issues, apperror.Detail{EmployeeID: in.EmployeeID, Field: field, Reason: reason})
	}

	if _, ok := c.divisors[pt]; !ok || !pt.Valid() {
		add("periodType", fmt.Sprintf("unsupported period type %q", pt))
		return apperror.New(apperror.KindInvalidInput, "invalid calculation input", issues...)
	}
	switch {
	case !in.BaseSalary.IsPositive():
		add("baseSalary", "must be greater than zero")
	case in.BaseSalary.LessThan(set.MinimumWage):
		add("baseSalary", fmt.Sprintf("below minimum wage %s", set.MinimumWage.String()))
	}
	if in.WorkedDays < 0 || in.WorkedDays > pt.MaxDays() {
		add("workedDays", fmt.Sprintf("must be between 0 and %d", pt.MaxDays()))
	}

	absentDays := 0
	for i, adj := range in.Adjustments {
		field := fmt.Sprintf("adjustments[%d]", i)
		info, ok := LookupKind(adj.Kind)
		if !ok {
			add(field+".kind", fmt.Sprintf("unknown adjustment kind %q", adj.Kind))
			continue
		}
		if adj.Hours.IsNegative() {
			add(field+".hours", "must not be negative")
		}
		if adj.Days < 0 {
			add(field+".days", "must not be negative")
		}
		if adj.Amount.IsNegative() {
			add(field+".amount", "must not be negative")
		}
		switch info.Category {
		case CategoryHours:
			if _, ok := c.surcharges.Factor(adj.Kind, adj.Subtype); !ok {
				add(field+".subtype", fmt.Sprintf("no factor for %s subtype %q", adj.Kind, adj.Subtype))
			}
		case CategoryDays:
			if adj.Days > 0 {
				absentDays += adj.Days
			}
		}
	}
	if absentDays > in.WorkedDays && in.WorkedDays >= 0 {
		add("adjustments", fmt.Sprintf("%d disability or absence days exceed %d worked days", absentDays, in.WorkedDays))
	}

	if len(issues) > 0 {
		return apperror.New(apperror.KindInvalidInput, "invalid calculation input", issues...)
	}
	return nil
}
