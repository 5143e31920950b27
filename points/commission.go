/*
commission.go - Cycle commission summary

PURPOSE:
  Combines an influencer's accumulated sale points with the multiplier
  resolved from their validated-delivery count into the commission
  figures shown on dashboards and frozen into close-time snapshots.

FORMULA:
  basePoints  = accumulated sale points (clamped to >= 0)
  multiplier  = Table.Resolve(validatedDays)
  totalPoints = round(basePoints * multiplier)

  Currency figures are derived from the point figures via the Ledger,
  never computed independently.
*/
package points

import "github.com/shopspring/decimal"

// Summary is the commission result for one influencer in one cycle.
type Summary struct {
	ValidatedDays int             `json:"validated_days"`
	BasePoints    int64           `json:"base_points"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	Label         string          `json:"label"`
	TotalPoints   int64           `json:"total_points"`
	BaseValue     decimal.Decimal `json:"base_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// Calculator produces commission summaries from a multiplier table and
// a point-value ledger.
type Calculator struct {
	Table  Table
	Ledger *Ledger
}

// NewCalculator wires a calculator from its two collaborators. A nil
// ledger gets the default rate; an empty table gets the default bands.
func NewCalculator(table Table, ledger *Ledger) *Calculator {
	if len(table) == 0 {
		table = DefaultTable()
	}
	if ledger == nil {
		ledger = NewDefaultLedger()
	}
	return &Calculator{Table: table, Ledger: ledger}
}

// Summarize computes the commission for the given validated-delivery
// count and accumulated base points. Pure: no storage access.
func (c *Calculator) Summarize(validatedDays int, basePoints int64) Summary {
	if basePoints < 0 {
		basePoints = 0
	}
	tier := c.Table.Resolve(validatedDays)
	total := RoundPoints(decimal.NewFromInt(basePoints).Mul(tier.Multiplier))

	return Summary{
		ValidatedDays: validatedDays,
		BasePoints:    basePoints,
		Multiplier:    tier.Multiplier,
		Label:         tier.Label,
		TotalPoints:   total,
		BaseValue:     c.Ledger.PointsToValue(basePoints),
		TotalValue:    c.Ledger.PointsToValue(total),
	}
}
