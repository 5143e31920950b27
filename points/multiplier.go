/*
multiplier.go - Validated-delivery multiplier bands

PURPOSE:
  Maps the number of validated deliveries an influencer completed in a
  cycle to a commission multiplier. The table is a fixed ascending set
  of inclusive [min,max] ranges; resolution is a pure function over an
  integer count.

EDGE CASES:
  - count <= 0: multiplier 0, "no validated deliveries"
  - count above the last band's max: the last band's multiplier still
    applies, with an "above N" label, but only when the count clears
    that band's min. A gap between the configured bands and infinity is
    not extrapolated past the stated floor.
*/
package points

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band is one inclusive range of validated-delivery counts mapped to a
// commission multiplier.
type Band struct {
	Min        int
	Max        int
	Multiplier decimal.Decimal
	Label      string
}

// Tier is the result of resolving a validated-delivery count against a
// multiplier table.
type Tier struct {
	Multiplier decimal.Decimal
	Label      string
	Band       *Band
}

// Table is an ascending, non-overlapping list of bands.
type Table []Band

// DefaultTable returns the standard commission bands.
func DefaultTable() Table {
	return Table{
		{Min: 1, Max: 4, Multiplier: decimal.RequireFromString("1.00"), Label: "1 to 4 validated deliveries (100%)"},
		{Min: 5, Max: 10, Multiplier: decimal.RequireFromString("1.25"), Label: "5 to 10 validated deliveries (125%)"},
		{Min: 11, Max: 15, Multiplier: decimal.RequireFromString("1.50"), Label: "11 to 15 validated deliveries (150%)"},
		{Min: 16, Max: 20, Multiplier: decimal.RequireFromString("1.75"), Label: "16 to 20 validated deliveries (175%)"},
		{Min: 21, Max: 30, Multiplier: decimal.RequireFromString("2.00"), Label: "21 to 30 validated deliveries (200%)"},
	}
}

// Resolve maps a validated-delivery count to its multiplier tier.
func (t Table) Resolve(validatedDays int) Tier {
	if validatedDays <= 0 {
		return Tier{Multiplier: decimal.Zero, Label: "no validated deliveries"}
	}

	for i := range t {
		if validatedDays >= t[i].Min && validatedDays <= t[i].Max {
			return Tier{Multiplier: t[i].Multiplier, Label: t[i].Label, Band: &t[i]}
		}
	}

	// Past the end of the table: the last band's multiplier holds as
	// long as the count clears that band's floor.
	if len(t) > 0 {
		last := &t[len(t)-1]
		if validatedDays >= last.Min {
			return Tier{
				Multiplier: last.Multiplier,
				Label:      fmt.Sprintf("above %d validated deliveries (%s%%)", last.Max, last.Multiplier.Mul(decimal.NewFromInt(100)).StringFixed(0)),
				Band:       last,
			}
		}
	}

	return Tier{Multiplier: decimal.Zero, Label: "no multiplier tier configured"}
}
