package points

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerPointsToValue(t *testing.T) {
	// GIVEN the default rate of 0.10 per point
	ledger := NewDefaultLedger()

	// THEN conversions round to currency cents
	assert.True(t, ledger.PointsToValue(0).IsZero())
	assert.Equal(t, "10.00", ledger.PointsToValue(100).StringFixed(2))
	assert.Equal(t, "12.50", ledger.PointsToValue(125).StringFixed(2))
	assert.Equal(t, "0.10", ledger.PointsToValue(1).StringFixed(2))

	// AND negative counts clamp to zero
	assert.True(t, ledger.PointsToValue(-50).IsZero())
}

func TestLedgerValueToPoints(t *testing.T) {
	ledger := NewDefaultLedger()

	assert.Equal(t, int64(100), ledger.ValueToPoints(decimal.RequireFromString("10.00")))
	assert.Equal(t, int64(1), ledger.ValueToPoints(decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(0), ledger.ValueToPoints(decimal.RequireFromString("-3")))
	assert.Equal(t, int64(0), ledger.ValueToPoints(decimal.Zero))
}

func TestLedgerRoundTrip(t *testing.T) {
	// GIVEN integer point counts
	ledger := NewDefaultLedger()

	// THEN value->points inverts points->value exactly at the 0.10 rate
	for _, p := range []int64{0, 1, 2, 7, 10, 99, 100, 1234, 9999} {
		got := ledger.ValueToPoints(ledger.PointsToValue(p))
		assert.Equal(t, p, got, "round trip for %d points", p)
	}
}

func TestNewLedgerRejectsNonPositiveRate(t *testing.T) {
	// WHEN constructed with a zero or negative rate
	zero := NewLedger(decimal.Zero)
	neg := NewLedger(decimal.NewFromInt(-1))

	// THEN both fall back to the default rate
	assert.True(t, zero.PointValue().Equal(DefaultPointValue))
	assert.True(t, neg.PointValue().Equal(DefaultPointValue))
}

func TestResolveNoValidatedDeliveries(t *testing.T) {
	table := DefaultTable()

	for _, days := range []int{-10, -1, 0} {
		tier := table.Resolve(days)
		assert.True(t, tier.Multiplier.IsZero(), "days=%d", days)
		assert.Equal(t, "no validated deliveries", tier.Label)
		assert.Nil(t, tier.Band)
	}
}

func TestResolveBandBoundaries(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		days int
		want string
	}{
		{1, "1"}, {4, "1"},
		{5, "1.25"}, {10, "1.25"},
		{11, "1.5"}, {15, "1.5"},
		{16, "1.75"}, {20, "1.75"},
		{21, "2"}, {30, "2"},
	}
	for _, tc := range cases {
		tier := table.Resolve(tc.days)
		assert.True(t, tier.Multiplier.Equal(decimal.RequireFromString(tc.want)),
			"days=%d want %s got %s", tc.days, tc.want, tier.Multiplier)
		require.NotNil(t, tier.Band, "days=%d", tc.days)
	}

	// Every count in the second band resolves to exactly 1.25
	for days := 5; days <= 10; days++ {
		assert.True(t, table.Resolve(days).Multiplier.Equal(decimal.RequireFromString("1.25")), "days=%d", days)
	}
}

func TestResolveAboveLastBand(t *testing.T) {
	// GIVEN counts past the last band's max
	table := DefaultTable()

	// THEN the last band's multiplier still applies with an "above" label
	for _, days := range []int{31, 45, 500} {
		tier := table.Resolve(days)
		assert.True(t, tier.Multiplier.Equal(decimal.RequireFromString("2")), "days=%d", days)
		assert.Equal(t, "above 30 validated deliveries (200%)", tier.Label)
	}
}

func TestResolveGapBelowLastBandFloor(t *testing.T) {
	// GIVEN a table whose only band starts above the probed count
	table := Table{
		{Min: 50, Max: 60, Multiplier: decimal.NewFromInt(3), Label: "fifty to sixty"},
	}

	// WHEN the count is past the listed ranges but under the floor
	tier := table.Resolve(10)

	// THEN no tier applies rather than extrapolating downward
	assert.True(t, tier.Multiplier.IsZero())
	assert.Equal(t, "no multiplier tier configured", tier.Label)
}

func TestResolveEmptyTable(t *testing.T) {
	tier := Table{}.Resolve(7)
	assert.True(t, tier.Multiplier.IsZero())
	assert.Equal(t, "no multiplier tier configured", tier.Label)
}

func TestSummarizeTotalPointsProperty(t *testing.T) {
	// totalPoints = round(basePoints * multiplier) across representative
	// base values and every band boundary.
	calc := NewCalculator(nil, nil)

	bases := []int64{0, 1, 100, 9999}
	boundaries := []int{0, 1, 4, 5, 10, 11, 15, 16, 20, 21, 30, 31}

	for _, base := range bases {
		for _, days := range boundaries {
			s := calc.Summarize(days, base)
			want := RoundPoints(decimal.NewFromInt(base).Mul(calc.Table.Resolve(days).Multiplier))
			assert.Equal(t, want, s.TotalPoints, "base=%d days=%d", base, days)
		}
	}
}

func TestSummarizeFiveValidatedDeliveries(t *testing.T) {
	// GIVEN 5 validated deliveries and 100 accumulated points
	calc := NewCalculator(DefaultTable(), NewDefaultLedger())

	// WHEN summarizing
	s := calc.Summarize(5, 100)

	// THEN the 125% band applies
	assert.Equal(t, int64(100), s.BasePoints)
	assert.True(t, s.Multiplier.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, int64(125), s.TotalPoints)
	assert.Equal(t, "10.00", s.BaseValue.StringFixed(2))
	assert.Equal(t, "12.50", s.TotalValue.StringFixed(2))
}

func TestSummarizeClampsNegativeBase(t *testing.T) {
	calc := NewCalculator(nil, nil)

	s := calc.Summarize(5, -200)

	assert.Equal(t, int64(0), s.BasePoints)
	assert.Equal(t, int64(0), s.TotalPoints)
}
