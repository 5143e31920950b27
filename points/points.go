/*
points.go - Conversion between points and currency

PURPOSE:
  All commissions and sale values in the engine are denominated in an
  integer "points" unit. A single fixed-point rate (the point value)
  converts points to currency for display and reporting. Currency is
  never the source of truth; it is always derived from points.

KEY CONCEPTS:
  1. Point value: currency units per point (default 0.10)
  2. Precision: decimal.Decimal everywhere, no float drift
  3. Totality: conversions never fail, bad input clamps to zero

ROUNDING RULES:
  PointsToValue: 2 decimal places (currency cents)
  ValueToPoints: nearest integer, never negative

SEE ALSO:
  - multiplier.go: band table applied on top of base points
  - commission.go: combines both into a cycle summary
*/
package points

import "github.com/shopspring/decimal"

// DefaultPointValue is the currency value of one point when no rate is
// configured.
var DefaultPointValue = decimal.RequireFromString("0.10")

// Ledger converts between integer points and currency amounts at a
// fixed rate. The zero value is not usable; construct with NewLedger.
type Ledger struct {
	pointValue decimal.Decimal
}

// NewLedger returns a Ledger using the given currency-per-point rate.
// Non-positive rates fall back to DefaultPointValue.
func NewLedger(pointValue decimal.Decimal) *Ledger {
	if pointValue.LessThanOrEqual(decimal.Zero) {
		pointValue = DefaultPointValue
	}
	return &Ledger{pointValue: pointValue.Round(2)}
}

// NewDefaultLedger returns a Ledger at the default rate.
func NewDefaultLedger() *Ledger {
	return NewLedger(DefaultPointValue)
}

// PointValue reports the configured currency value of one point.
func (l *Ledger) PointValue() decimal.Decimal {
	return l.pointValue
}

// PointsToValue converts a point count to currency, rounded to two
// decimal places. Negative counts clamp to zero.
func (l *Ledger) PointsToValue(points int64) decimal.Decimal {
	if points < 0 {
		points = 0
	}
	return decimal.NewFromInt(points).Mul(l.pointValue).Round(2)
}

// ValueToPoints converts a currency amount back to points, rounded to
// the nearest integer. Negative amounts clamp to zero.
func (l *Ledger) ValueToPoints(value decimal.Decimal) int64 {
	if value.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return value.Div(l.pointValue).Round(0).IntPart()
}

// RoundPoints normalizes an arbitrary decimal point quantity to the
// integer unit used everywhere else. Negative values clamp to zero.
func RoundPoints(value decimal.Decimal) int64 {
	if value.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return value.Round(0).IntPart()
}
