/*
store.go - Persistence interface for the cycle engine

PURPOSE:
  Defines the interface between domain logic and the database. The
  sqlite implementation under store/sqlite is the production store;
  tests run the same implementation against ":memory:".

KEY INTERFACES:
  Store:   all reads and single-statement writes
  TxStore: Store plus WithTx for atomic multi-statement operations

TRANSACTION CONTRACT:
  Cycle close, batch plan upsert and bulk sales commit each run inside
  one WithTx call. The store passed to the callback routes every
  statement through the open transaction; a returned error rolls the
  whole operation back.

SEE ALSO:
  - manager.go, scheduler.go: the transactional call sites
  - store/sqlite/sqlite.go: concrete implementation
*/
package cycle

import (
	"context"
	"time"
)

// Store is the full persistence surface of the engine.
type Store interface {
	// Cycles. CreateCycle fails on a (year, month) duplicate;
	// SetCycleStatus flips open/closed and stamps closedAt.
	CreateCycle(ctx context.Context, year int, month time.Month, startDate time.Time) (*MonthlyCycle, error)
	GetCycle(ctx context.Context, id int64) (*MonthlyCycle, error)
	GetCycleByMonth(ctx context.Context, year int, month time.Month) (*MonthlyCycle, error)
	ListOpenCycles(ctx context.Context) ([]MonthlyCycle, error)
	ListCycles(ctx context.Context) ([]MonthlyCycle, error)
	SetCycleStatus(ctx context.Context, id int64, status CycleStatus, closedAt *time.Time) error

	// Plans. CreatePlan fails on a (cycle, influencer, date) duplicate.
	CreatePlan(ctx context.Context, p *DeliveryPlan) (*DeliveryPlan, error)
	GetPlan(ctx context.Context, id int64) (*DeliveryPlan, error)
	GetPlanByDate(ctx context.Context, cycleID, influencerID int64, date time.Time) (*DeliveryPlan, error)
	ListPlans(ctx context.Context, cycleID, influencerID int64) ([]DeliveryPlan, error)
	ListCyclePlans(ctx context.Context, cycleID int64) ([]DeliveryPlan, error)
	ListPlansByStatus(ctx context.Context, cycleID int64, status PlanStatus) ([]DeliveryPlan, error)
	UpdatePlan(ctx context.Context, p *DeliveryPlan) error
	UpdatePlanStatus(ctx context.Context, id int64, status PlanStatus) error
	DeletePlan(ctx context.Context, id int64) error
	DeletePlansByScript(ctx context.Context, cycleID, influencerID, scriptID int64) (int64, error)
	// MarkOverduePlansMissed flips still-scheduled plans dated on or
	// before cutoff to missed. Returns the number of plans swept.
	MarkOverduePlansMissed(ctx context.Context, cycleID int64, cutoff time.Time) (int64, error)

	// Influencers and scripts.
	CreateInfluencer(ctx context.Context, inf *Influencer) (*Influencer, error)
	GetInfluencer(ctx context.Context, id int64) (*Influencer, error)
	GetInfluencerByCoupon(ctx context.Context, coupon string) (*Influencer, error)
	ListInfluencers(ctx context.Context) ([]Influencer, error)
	CreateScript(ctx context.Context, s *Script) (*Script, error)
	GetScript(ctx context.Context, id int64) (*Script, error)
	ListScripts(ctx context.Context) ([]Script, error)

	// Sales. CreateSale fails on a duplicate trimmed order number.
	CreateSale(ctx context.Context, sale *SaleRecord) (*SaleRecord, error)
	GetSale(ctx context.Context, id int64) (*SaleRecord, error)
	UpdateSale(ctx context.Context, sale *SaleRecord) error
	DeleteSale(ctx context.Context, id int64) error
	ListSales(ctx context.Context, influencerID int64) ([]SaleRecord, error)
	SaleOrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	SumSalePoints(ctx context.Context, influencerID int64) (int64, error)
	SumSalePointsInRange(ctx context.Context, influencerID int64, from, to time.Time) (int64, error)

	// SKU point rules, matched case-insensitively.
	UpsertSkuRule(ctx context.Context, rule *SkuPointRule) (*SkuPointRule, error)
	GetSkuRule(ctx context.Context, sku string) (*SkuPointRule, error)
	ListSkuRules(ctx context.Context) ([]SkuPointRule, error)

	// Snapshots, upserted on (cycle, influencer).
	UpsertSnapshot(ctx context.Context, snap *CommissionSnapshot) error
	ListSnapshots(ctx context.Context, cycleID int64) ([]CommissionSnapshot, error)
}

// TxStore is a Store that can run a function atomically.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. The Store handed to fn
	// routes all statements through that transaction. A returned error
	// rolls back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
