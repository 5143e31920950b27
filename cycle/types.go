/*
types.go - Core domain types for the cycle engine

PURPOSE:
  Shared entities used across the engine: monthly cycles, delivery
  plans, influencers, content scripts, sale records, SKU point rules
  and close-time commission snapshots. Domain packages (sales, api)
  and the sqlite store all speak these types.

KEY CONCEPTS:
  1. Cycle: one calendar-month accounting period, at most one open
  2. Plan: a dated delivery commitment inside a cycle, with a status
     state machine (scheduled -> posted/validated/missed)
  3. Points: integer unit for all sale values (see points package)
  4. Snapshot: per-influencer commission figures frozen at close

DATE HANDLING:
  Plan and sale dates are calendar dates, stored as YYYY-MM-DD and
  normalized to UTC midnight in memory. Month membership checks compare
  year/month only.

SEE ALSO:
  - store.go: persistence interface over these types
  - manager.go, scheduler.go: the workflows mutating them
*/
package cycle

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateOnly is the storage layout for calendar dates.
const DateOnly = "2006-01-02"

// =============================================================================
// STATUSES
// =============================================================================

// CycleStatus is the lifecycle state of a monthly cycle.
type CycleStatus string

const (
	CycleOpen   CycleStatus = "open"
	CycleClosed CycleStatus = "closed"
)

// PlanStatus is the state of one delivery plan.
//
// Transitions: scheduled -> posted | validated | missed,
// posted -> validated. Master rejection resets any state back to
// scheduled, including validated (corrects mistaken approvals).
type PlanStatus string

const (
	PlanScheduled PlanStatus = "scheduled"
	PlanPosted    PlanStatus = "posted"
	PlanValidated PlanStatus = "validated"
	PlanMissed    PlanStatus = "missed"
)

// ValidPlanStatus reports whether s is a known plan status.
func ValidPlanStatus(s PlanStatus) bool {
	switch s {
	case PlanScheduled, PlanPosted, PlanValidated, PlanMissed:
		return true
	}
	return false
}

// =============================================================================
// ENTITIES
// =============================================================================

// MonthlyCycle is one calendar-month accounting period. Unique on
// (year, month); at most one cycle is open at a time.
type MonthlyCycle struct {
	ID        int64
	Year      int
	Month     time.Month
	Status    CycleStatus
	StartDate time.Time
	ClosedAt  *time.Time
	CreatedAt time.Time
}

// Bounds returns the first and last calendar day of the cycle's month.
func (c MonthlyCycle) Bounds() (start, end time.Time) {
	return MonthBounds(c.Year, c.Month)
}

// Contains reports whether the date falls inside the cycle's month.
func (c MonthlyCycle) Contains(date time.Time) bool {
	return date.Year() == c.Year && date.Month() == c.Month
}

// MonthBounds returns the first and last day of a calendar month, both
// at UTC midnight.
func MonthBounds(year int, month time.Month) (start, end time.Time) {
	start = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, -1)
	return start, end
}

// DeliveryPlan is a scheduled content delivery for one date, optionally
// linked to a script. Unique on (cycle, influencer, scheduled date).
type DeliveryPlan struct {
	ID            int64
	CycleID       int64
	InfluencerID  int64
	ScheduledDate time.Time
	ScriptID      *int64
	Notes         string
	Status        PlanStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Influencer is the minimal influencer record the engine needs: the
// coupon code ties sales rows back to their owner. Coupon matching is
// case-insensitive; the unique index enforces it lowercased.
type Influencer struct {
	ID        int64
	Name      string
	Instagram string
	Coupon    string
	CreatedAt time.Time
}

// Script is a content script a plan can reference.
type Script struct {
	ID          int64
	Title       string
	Description string
	CreatedAt   time.Time
}

// SaleItem is one SKU line inside a sale, kept for audit of how the
// sale's point total was computed.
type SaleItem struct {
	SKU           string          `json:"sku"`
	Quantity      decimal.Decimal `json:"quantity"`
	PointsPerUnit decimal.Decimal `json:"points_per_unit"`
	Points        int64           `json:"points"`
}

// SaleRecord is one recorded sale. OrderNumber, when present, is
// globally unique after trimming. Value is derived from Points at the
// configured point rate and never entered directly.
type SaleRecord struct {
	ID           int64
	InfluencerID int64
	OrderNumber  string
	Coupon       string
	Date         time.Time
	Points       int64
	Value        decimal.Decimal
	Items        []SaleItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SkuPointRule maps a SKU (case-insensitive) to points per unit sold.
type SkuPointRule struct {
	ID            int64
	SKU           string
	Description   string
	PointsPerUnit decimal.Decimal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CommissionSnapshot freezes one influencer's commission figures for a
// cycle at close time. Upserted on (cycle, influencer).
type CommissionSnapshot struct {
	ID                  int64
	CycleID             int64
	InfluencerID        int64
	ValidatedDays       int
	Multiplier          decimal.Decimal
	Label               string
	BasePoints          int64
	TotalPoints         int64
	DeliveriesPlanned   int
	DeliveriesCompleted int
	ValidationSummary   map[PlanStatus]int
	CreatedAt           time.Time
}
