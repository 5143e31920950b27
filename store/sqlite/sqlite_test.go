package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func openCycle(t *testing.T, store *sqlite.Store, year int, month time.Month) *cycle.MonthlyCycle {
	t.Helper()
	start, _ := cycle.MonthBounds(year, month)
	c, err := store.CreateCycle(context.Background(), year, month, start)
	require.NoError(t, err)
	return c
}

func addInfluencer(t *testing.T, store *sqlite.Store, name, coupon string) *cycle.Influencer {
	t.Helper()
	inf, err := store.CreateInfluencer(context.Background(), &cycle.Influencer{Name: name, Coupon: coupon})
	require.NoError(t, err)
	return inf
}

// =============================================================================
// CYCLE CONSTRAINTS
// =============================================================================

func TestCreateCycle_MonthIsUnique(t *testing.T) {
	// GIVEN: March 2026 exists
	store := newStore(t)
	openCycle(t, store, 2026, time.March)

	// WHEN: creating March 2026 again
	start, _ := cycle.MonthBounds(2026, time.March)
	_, err := store.CreateCycle(context.Background(), 2026, time.March, start)

	// THEN
	require.Error(t, err)
	assert.True(t, cycle.IsConflict(err))
}

func TestSetCycleStatus_SingleOpenCycleEnforced(t *testing.T) {
	// GIVEN: February closed, March open
	store := newStore(t)
	ctx := context.Background()
	feb := openCycle(t, store, 2026, time.February)
	closedAt := time.Now().UTC()
	require.NoError(t, store.SetCycleStatus(ctx, feb.ID, cycle.CycleClosed, &closedAt))
	openCycle(t, store, 2026, time.March)

	// WHEN: re-opening February while March is still open
	err := store.SetCycleStatus(ctx, feb.ID, cycle.CycleOpen, nil)

	// THEN: the open-cycle index rejects it
	require.Error(t, err)
	assert.True(t, cycle.IsConflict(err))
}

func TestSetCycleStatus_UnknownCycle(t *testing.T) {
	store := newStore(t)
	err := store.SetCycleStatus(context.Background(), 42, cycle.CycleClosed, nil)

	require.Error(t, err)
	assert.True(t, cycle.IsNotFound(err))
	var nf *cycle.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "cycle", nf.Entity)
}

// =============================================================================
// PLAN CONSTRAINTS
// =============================================================================

func TestCreatePlan_OnePlanPerDay(t *testing.T) {
	// GIVEN: a plan on March 5
	store := newStore(t)
	ctx := context.Background()
	c := openCycle(t, store, 2026, time.March)
	inf := addInfluencer(t, store, "Ana", "ANA10")
	date := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

	_, err := store.CreatePlan(ctx, &cycle.DeliveryPlan{
		CycleID: c.ID, InfluencerID: inf.ID, ScheduledDate: date,
	})
	require.NoError(t, err)

	// WHEN: creating a second plan on the same date
	_, err = store.CreatePlan(ctx, &cycle.DeliveryPlan{
		CycleID: c.ID, InfluencerID: inf.ID, ScheduledDate: date,
	})

	// THEN
	require.Error(t, err)
	assert.True(t, cycle.IsConflict(err))

	// AND: another influencer can still use that date
	other := addInfluencer(t, store, "Bia", "BIA10")
	_, err = store.CreatePlan(ctx, &cycle.DeliveryPlan{
		CycleID: c.ID, InfluencerID: other.ID, ScheduledDate: date,
	})
	require.NoError(t, err)
}

func TestMarkOverduePlansMissed_OnlyTouchesScheduled(t *testing.T) {
	// GIVEN: scheduled, posted and validated plans before the cutoff
	store := newStore(t)
	ctx := context.Background()
	c := openCycle(t, store, 2026, time.March)
	inf := addInfluencer(t, store, "Ana", "ANA10")

	statuses := []cycle.PlanStatus{cycle.PlanScheduled, cycle.PlanPosted, cycle.PlanValidated}
	ids := make([]int64, len(statuses))
	for i, st := range statuses {
		p, err := store.CreatePlan(ctx, &cycle.DeliveryPlan{
			CycleID: c.ID, InfluencerID: inf.ID,
			ScheduledDate: time.Date(2026, time.March, 3+i, 0, 0, 0, 0, time.UTC),
			Status:        st,
		})
		require.NoError(t, err)
		ids[i] = p.ID
	}

	// WHEN: sweeping at month end
	_, end := c.Bounds()
	swept, err := store.MarkOverduePlansMissed(ctx, c.ID, end)
	require.NoError(t, err)

	// THEN: only the scheduled plan became missed
	assert.Equal(t, int64(1), swept)
	for i, want := range []cycle.PlanStatus{cycle.PlanMissed, cycle.PlanPosted, cycle.PlanValidated} {
		p, err := store.GetPlan(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, p.Status)
	}
}

// =============================================================================
// INFLUENCER AND SKU LOOKUPS
// =============================================================================

func TestCouponIsCaseInsensitiveAndUnique(t *testing.T) {
	// GIVEN: ANA10 registered
	store := newStore(t)
	ctx := context.Background()
	inf := addInfluencer(t, store, "Ana", "ANA10")

	// WHEN / THEN: lookup ignores case
	found, err := store.GetInfluencerByCoupon(ctx, "ana10")
	require.NoError(t, err)
	assert.Equal(t, inf.ID, found.ID)

	// AND: a different casing cannot be registered twice
	_, err = store.CreateInfluencer(ctx, &cycle.Influencer{Name: "Fake", Coupon: "Ana10"})
	require.Error(t, err)
	assert.True(t, cycle.IsConflict(err))
}

func TestUpsertSkuRule_UpdatesByCaseInsensitiveSku(t *testing.T) {
	// GIVEN: a rule at 10 points
	store := newStore(t)
	ctx := context.Background()
	first, err := store.UpsertSkuRule(ctx, &cycle.SkuPointRule{
		SKU: "GEL-200", PointsPerUnit: decimal.NewFromInt(10), Active: true,
	})
	require.NoError(t, err)

	// WHEN: upserting the lowercase SKU at 12 points
	second, err := store.UpsertSkuRule(ctx, &cycle.SkuPointRule{
		SKU: "gel-200", PointsPerUnit: decimal.NewFromInt(12), Active: true,
	})
	require.NoError(t, err)

	// THEN: same row, new value
	assert.Equal(t, first.ID, second.ID)

	rules, err := store.ListSkuRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].PointsPerUnit.Equal(decimal.NewFromInt(12)))
}

// =============================================================================
// SALES
// =============================================================================

func TestCreateSale_TrimmedOrderNumberIsUnique(t *testing.T) {
	// GIVEN: order #1001 exists
	store := newStore(t)
	ctx := context.Background()
	inf := addInfluencer(t, store, "Ana", "ANA10")
	date := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateSale(ctx, &cycle.SaleRecord{
		InfluencerID: inf.ID, OrderNumber: "#1001", Date: date, Points: 10,
		Value: decimal.RequireFromString("1.00"),
	})
	require.NoError(t, err)

	// WHEN: inserting the same order padded with whitespace
	_, err = store.CreateSale(ctx, &cycle.SaleRecord{
		InfluencerID: inf.ID, OrderNumber: "  #1001 ", Date: date, Points: 5,
		Value: decimal.RequireFromString("0.50"),
	})

	// THEN: the conflict names the order
	require.Error(t, err)
	var dup *cycle.DuplicateOrderError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "#1001", dup.OrderNumber)

	// AND: orderless sales never collide
	for i := 0; i < 2; i++ {
		_, err = store.CreateSale(ctx, &cycle.SaleRecord{
			InfluencerID: inf.ID, Date: date, Points: 1,
			Value: decimal.RequireFromString("0.10"),
		})
		require.NoError(t, err)
	}
}

func TestCreateSale_NegativePointsRejected(t *testing.T) {
	store := newStore(t)
	inf := addInfluencer(t, store, "Ana", "ANA10")

	_, err := store.CreateSale(context.Background(), &cycle.SaleRecord{
		InfluencerID: inf.ID, OrderNumber: "#1001",
		Date:   time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		Points: -5, Value: decimal.Zero,
	})

	require.Error(t, err)
	assert.True(t, cycle.IsValidation(err))
}

func TestSaleItemsRoundTrip(t *testing.T) {
	// GIVEN: a sale with line items
	store := newStore(t)
	ctx := context.Background()
	inf := addInfluencer(t, store, "Ana", "ANA10")

	created, err := store.CreateSale(ctx, &cycle.SaleRecord{
		InfluencerID: inf.ID, OrderNumber: "#2001", Coupon: "ANA10",
		Date:   time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		Points: 45, Value: decimal.RequireFromString("4.50"),
		Items: []cycle.SaleItem{
			{SKU: "GEL-200", Quantity: decimal.NewFromInt(2), PointsPerUnit: decimal.NewFromInt(10), Points: 20},
			{SKU: "KIT-GLOW", Quantity: decimal.NewFromInt(1), PointsPerUnit: decimal.NewFromInt(25), Points: 25},
		},
	})
	require.NoError(t, err)

	// WHEN: reading it back
	got, err := store.GetSale(ctx, created.ID)
	require.NoError(t, err)

	// THEN: items and amounts survive
	require.Len(t, got.Items, 2)
	assert.Equal(t, "GEL-200", got.Items[0].SKU)
	assert.True(t, got.Items[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(45), got.Points)
	assert.Equal(t, "2026-03-05", got.Date.Format(cycle.DateOnly))
}

func TestSumSalePoints(t *testing.T) {
	// GIVEN: two influencers with sales
	store := newStore(t)
	ctx := context.Background()
	ana := addInfluencer(t, store, "Ana", "ANA10")
	bia := addInfluencer(t, store, "Bia", "BIA10")

	for i, pts := range []int64{100, 30} {
		_, err := store.CreateSale(ctx, &cycle.SaleRecord{
			InfluencerID: ana.ID,
			OrderNumber:  []string{"#1", "#2"}[i],
			Date:         time.Date(2026, time.March, 1+i, 0, 0, 0, 0, time.UTC),
			Points:       pts, Value: decimal.Zero,
		})
		require.NoError(t, err)
	}

	// WHEN / THEN
	total, err := store.SumSalePoints(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(130), total)

	total, err = store.SumSalePoints(ctx, bia.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	// AND: the range variant only counts March 1
	inRange, err := store.SumSalePointsInRange(ctx, ana.ID,
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(100), inRange)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestUpsertSnapshot_SecondWriteReplacesTheFirst(t *testing.T) {
	// GIVEN: a snapshot for (cycle, influencer)
	store := newStore(t)
	ctx := context.Background()
	c := openCycle(t, store, 2026, time.March)
	inf := addInfluencer(t, store, "Ana", "ANA10")

	snap := &cycle.CommissionSnapshot{
		CycleID: c.ID, InfluencerID: inf.ID,
		ValidatedDays: 3, Multiplier: decimal.NewFromInt(1), Label: "1 to 4 validated deliveries (100%)",
		BasePoints: 100, TotalPoints: 100,
		DeliveriesPlanned: 4, DeliveriesCompleted: 3,
		ValidationSummary: map[cycle.PlanStatus]int{cycle.PlanValidated: 3, cycle.PlanScheduled: 1},
	}
	require.NoError(t, store.UpsertSnapshot(ctx, snap))

	// WHEN: writing an updated snapshot for the same pair
	snap.ValidatedDays = 5
	snap.Multiplier = decimal.RequireFromString("1.25")
	snap.TotalPoints = 125
	require.NoError(t, store.UpsertSnapshot(ctx, snap))

	// THEN: exactly one row, carrying the latest values
	snaps, err := store.ListSnapshots(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 5, snaps[0].ValidatedDays)
	assert.Equal(t, int64(125), snaps[0].TotalPoints)
	assert.True(t, snaps[0].Multiplier.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, 3, snaps[0].ValidationSummary[cycle.PlanValidated])
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: an empty store
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	// WHEN: the transaction fails after a write
	err := store.WithTx(ctx, func(tx cycle.Store) error {
		if _, err := tx.CreateInfluencer(ctx, &cycle.Influencer{Name: "Ana", Coupon: "ANA10"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: the write was rolled back
	influencers, err := store.ListInfluencers(ctx)
	require.NoError(t, err)
	assert.Empty(t, influencers)
}
