package benefits

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nomina/internal/domain/period"
	"nomina/internal/platform/apperror"
	"nomina/internal/platform/money"
)

var (
	yearDays       = decimal.NewFromInt(360)
	vacationDays   = decimal.NewFromInt(720)
	weeklyRate     = decimal.RequireFromString("0.12").Div(decimal.NewFromInt(52))
	biweeklyRate   = decimal.RequireFromString("0.005")
	monthlyRate    = decimal.RequireFromString("0.01")
	interestByKind = map[Periodicity]decimal.Decimal{
		PeriodicityWeekly:   weeklyRate,
		PeriodicityBiweekly: biweeklyRate,
		PeriodicityMonthly:  monthlyRate,
	}
)

// InferPeriodicity classifies an inclusive date range by its length.
func InferPeriodicity(start, end time.Time) (Periodicity, error) {
	days := period.InclusiveDays(start, end)
	switch {
	case days == 7:
		return PeriodicityWeekly, nil
	case days >= 13 && days <= 16:
		return PeriodicityBiweekly, nil
	case days >= 28 && days <= 31:
		return PeriodicityMonthly, nil
	}
	return "", apperror.Newf(apperror.KindUnsupportedPeriodicity, "no interest rate for a %d-day range", days)
}

// InterestRate returns the severance interest rate for a periodicity.
func InterestRate(p Periodicity) (decimal.Decimal, bool) {
	rate, ok := interestByKind[p]
	return rate, ok
}

// Calculate computes one accrual. monthlySalary and monthlySubsidy are full
// monthly amounts, never period-prorated ones; monthlySubsidy is zero when
// the employee is not entitled to it. severance is required for interest.
func Calculate(kind Kind, monthlySalary, monthlySubsidy decimal.Decimal, start, end time.Time, severance *decimal.Decimal) (Result, error) {
	if end.Before(start) {
		return Result{}, apperror.New(apperror.KindInvalidInput, "invalid accrual range",
			apperror.Detail{Field: "periodEnd", Reason: period.ErrInvalidRange.Error()})
	}
	if !monthlySalary.IsPositive() {
		return Result{}, apperror.New(apperror.KindInvalidInput, "invalid accrual basis",
			apperror.Detail{Field: "monthlySalary", Reason: "must be greater than zero"})
	}

	days := period.InclusiveDays(start, end)
	daysDec := decimal.NewFromInt(int64(days))
	constitutiveBase := monthlySalary.Add(monthlySubsidy)
	result := Result{Kind: kind, Days: days, Rate: decimal.Zero}

	switch kind {
	case KindSeverance, KindServiceBonus:
		result.Amount = money.Round(constitutiveBase.Mul(daysDec).Div(yearDays))
	case KindVacation:
		result.Amount = money.Round(monthlySalary.Mul(daysDec).Div(vacationDays))
	case KindSeveranceInterest:
		periodicity, err := InferPeriodicity(start, end)
		if err != nil {
			return Result{}, err
		}
		if severance == nil {
			return Result{}, apperror.Newf(apperror.KindMissingDependency,
				"severance for %s..%s must be computed before its interest",
				start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		rate, _ := InterestRate(periodicity)
		result.Periodicity = periodicity
		result.Rate = rate
		result.Amount = money.Round(severance.Mul(rate))
	default:
		return Result{}, apperror.Wrap(fmt.Errorf("%w %q", ErrUnknownKind, kind), apperror.KindInvalidInput, "invalid benefit kind")
	}
	return result, nil
}
