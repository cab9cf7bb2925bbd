package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"81658.29", "81658"},
		{"100.5", "101"},
		{"100.49", "100"},
		{"1299999.9999999999", "1300000"},
	}
	for _, c := range cases {
		got := Round(MustParse(c.in))
		assert.True(t, got.Equal(MustParse(c.want)), "Round(%s) = %s, want %s", c.in, got, c.want)
	}
}

func TestPct(t *testing.T) {
	got := Pct(decimal.NewFromInt(1300000), decimal.NewFromInt(4))
	assert.True(t, got.Equal(decimal.NewFromInt(52000)))

	got = Pct(decimal.NewFromInt(1300000), MustParse("0.522"))
	assert.True(t, got.Equal(decimal.NewFromInt(6786)))
}
