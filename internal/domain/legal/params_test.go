package legal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePicksLatestEffectiveOnOrBefore(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		ref       time.Time
		wantFrom  time.Time
		wantHours int
	}{
		{day(2024, time.March, 1), day(2024, time.January, 1), 47},
		{day(2024, time.July, 14), day(2024, time.January, 1), 47},
		{day(2024, time.July, 15), day(2024, time.July, 15), 46},
		{day(2024, time.December, 31), day(2024, time.July, 15), 46},
		{day(2025, time.July, 15), day(2025, time.July, 15), 44},
		{day(2031, time.May, 5), day(2025, time.July, 15), 44},
	}
	for _, c := range cases {
		got := table.Resolve(c.ref)
		assert.True(t, got.EffectiveFrom.Equal(c.wantFrom), "ref %s resolved %s", c.ref.Format(time.DateOnly), got.EffectiveFrom.Format(time.DateOnly))
		assert.Equal(t, c.wantHours, got.WeeklyHours)
	}
}

func TestResolveBeforeFirstSetFallsBackToEarliest(t *testing.T) {
	got := DefaultTable().Resolve(day(1999, time.January, 1))
	assert.True(t, got.EffectiveFrom.Equal(day(2023, time.January, 1)))
	assert.True(t, got.MinimumWage.Equal(decimal.NewFromInt(1160000)))
}

func TestResolveIgnoresTimeOfDay(t *testing.T) {
	table := DefaultTable()
	late := time.Date(2024, time.July, 14, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 47, table.Resolve(late).WeeklyHours)
}

func TestHourlyDivisor(t *testing.T) {
	assert.Equal(t, "199", Set{WeeklyHours: 46}.HourlyDivisor().String())
	assert.Equal(t, "204", Set{WeeklyHours: 47}.HourlyDivisor().String())
	assert.Equal(t, "191", Set{WeeklyHours: 44}.HourlyDivisor().String())
}

func TestSubsidyEligibility(t *testing.T) {
	set := DefaultTable().Resolve(day(2024, time.August, 1))
	assert.True(t, set.SubsidyEligible(decimal.NewFromInt(2600000)))
	assert.False(t, set.SubsidyEligible(decimal.NewFromInt(2600001)))
}

func TestNewTableRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewTable()
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = NewTable(Set{EffectiveFrom: day(2024, 1, 1)}, Set{EffectiveFrom: day(2024, 1, 1)})
	assert.Error(t, err)
}

func TestNewTableSortsInjectedSets(t *testing.T) {
	table := MustTable(
		Set{EffectiveFrom: day(2030, 1, 1), WeeklyHours: 42},
		Set{EffectiveFrom: day(2020, 1, 1), WeeklyHours: 48},
	)
	assert.Equal(t, 48, table.Resolve(day(2025, 1, 1)).WeeklyHours)
	assert.Equal(t, 42, table.Resolve(day(2030, 6, 1)).WeeklyHours)
}

func TestResolveIsSafeForConcurrentUse(t *testing.T) {
	table := DefaultTable()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 46, table.Resolve(day(2024, time.September, 1)).WeeklyHours)
		}()
	}
	wg.Wait()
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	raw := `[{"effectiveFrom":"2026-01-01T00:00:00Z","minimumWage":"1750905","transportSubsidy":"249095","subsidyCapMultiple":"2","weeklyHours":44,
	"healthEmployeePct":"4","pensionEmployeePct":"4","healthEmployerPct":"8.5","pensionEmployerPct":"12","riskInsurancePct":"0.522",
	"compensationFundPct":"4","icbfPct":"3","senaPct":"2"}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	set := table.Resolve(day(2026, time.March, 1))
	assert.True(t, set.MinimumWage.Equal(decimal.NewFromInt(1750905)))
	assert.Equal(t, 44, set.WeeklyHours)
}
