// Package money holds the rounding convention shared by every pay line.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places of the currency's smallest unit.
// Colombian pesos are settled in whole units.
var Scale int32 = 0

var (
	Hundred = decimal.NewFromInt(100)
	Thirty  = decimal.NewFromInt(30)
)

// Round applies round-half-up at Scale. decimal.Round rounds half away
// from zero, which is half-up for the non-negative amounts on a pay slip.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Pct multiplies base by a percentage expressed as 4 for 4%, rounding the
// result.
func Pct(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(Hundred))
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
