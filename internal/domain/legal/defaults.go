package legal

import (
	"time"

	"github.com/shopspring/decimal"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func colombia(from time.Time, minimumWage, subsidy int64, weeklyHours int) Set {
	return Set{
		EffectiveFrom:       from,
		MinimumWage:         decimal.NewFromInt(minimumWage),
		TransportSubsidy:    decimal.NewFromInt(subsidy),
		SubsidyCapMultiple:  decimal.NewFromInt(2),
		WeeklyHours:         weeklyHours,
		HealthEmployeePct:   pct("4"),
		PensionEmployeePct:  pct("4"),
		HealthEmployerPct:   pct("8.5"),
		PensionEmployerPct:  pct("12"),
		RiskInsurancePct:    pct("0.522"),
		CompensationFundPct: pct("4"),
		ICBFPct:             pct("3"),
		SENAPct:             pct("2"),
	}
}

// DefaultTable carries the Colombian sets, including the staged reduction
// of the legal workweek (Ley 2101 de 2021).
func DefaultTable() *Table {
	return MustTable(
		colombia(time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), 1160000, 140606, 47),
		colombia(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 1300000, 162000, 47),
		colombia(time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC), 1300000, 162000, 46),
		colombia(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 1423500, 200000, 46),
		colombia(time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC), 1423500, 200000, 44),
	)
}
