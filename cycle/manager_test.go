package cycle_test

import (
	"context"
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

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, store *sqlite.Store, now time.Time) *cycle.Manager {
	t.Helper()
	m := cycle.NewManager(store, nil, nil)
	m.Now = func() time.Time { return now }
	return m
}

func newTestInfluencer(t *testing.T, store *sqlite.Store, name, coupon string) *cycle.Influencer {
	t.Helper()
	inf, err := store.CreateInfluencer(context.Background(), &cycle.Influencer{
		Name:   name,
		Coupon: coupon,
	})
	require.NoError(t, err)
	return inf
}

func planOn(t *testing.T, store *sqlite.Store, cycleID, influencerID int64, date time.Time, status cycle.PlanStatus) *cycle.DeliveryPlan {
	t.Helper()
	p, err := store.CreatePlan(context.Background(), &cycle.DeliveryPlan{
		CycleID:       cycleID,
		InfluencerID:  influencerID,
		ScheduledDate: date,
		Status:        status,
	})
	require.NoError(t, err)
	return p
}

func saleWorth(t *testing.T, store *sqlite.Store, influencerID int64, order string, pts int64) {
	t.Helper()
	_, err := store.CreateSale(context.Background(), &cycle.SaleRecord{
		InfluencerID: influencerID,
		OrderNumber:  order,
		Date:         time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
		Points:       pts,
		Value:        decimal.NewFromInt(pts).Div(decimal.NewFromInt(10)),
	})
	require.NoError(t, err)
}

var march15 = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

// =============================================================================
// ENSURE CURRENT CYCLE
// =============================================================================

func TestEnsureCurrentCycle_CreatesAndIsIdempotent(t *testing.T) {
	// GIVEN: no cycles exist
	store := newTestStore(t)
	m := newTestManager(t, store, march15)
	ctx := context.Background()

	// WHEN: ensuring the current cycle twice
	first, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)
	second, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)

	// THEN: both calls return the same open cycle for the current month
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2026, first.Year)
	assert.Equal(t, time.March, first.Month)
	assert.Equal(t, cycle.CycleOpen, first.Status)
	assert.Equal(t, "2026-03-01", first.StartDate.Format(cycle.DateOnly))
}

func TestEnsureCurrentCycle_ForceClosesStrayOpenCycle(t *testing.T) {
	// GIVEN: February's cycle was never closed
	store := newTestStore(t)
	feb := newTestManager(t, store, time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	stray, err := feb.EnsureCurrentCycle(ctx)
	require.NoError(t, err)

	// WHEN: ensuring the cycle after the month boundary passed
	m := newTestManager(t, store, march15)
	current, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)

	// THEN: March is open and February got force-closed without snapshots
	assert.Equal(t, time.March, current.Month)

	closed, err := store.GetCycle(ctx, stray.ID)
	require.NoError(t, err)
	assert.Equal(t, cycle.CycleClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	snaps, err := store.ListSnapshots(ctx, stray.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	open, err := store.ListOpenCycles(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, current.ID, open[0].ID)
}

func TestEnsureCurrentCycle_ReopensClosedCurrentMonth(t *testing.T) {
	// GIVEN: the current month's cycle exists but was closed early
	store := newTestStore(t)
	m := newTestManager(t, store, march15)
	ctx := context.Background()

	c, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)
	closedAt := march15
	require.NoError(t, store.SetCycleStatus(ctx, c.ID, cycle.CycleClosed, &closedAt))

	// WHEN: ensuring again within the same month
	reopened, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)

	// THEN: the same row is re-opened rather than duplicated
	assert.Equal(t, c.ID, reopened.ID)
	assert.Equal(t, cycle.CycleOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
}

// =============================================================================
// CLOSE CYCLE
// =============================================================================

func TestCloseCycle_SnapshotsCommissionAndSweeps(t *testing.T) {
	// GIVEN: 5 validated deliveries, one overdue scheduled plan and a
	// 100-point sale
	store := newTestStore(t)
	m := newTestManager(t, store, march15)
	ctx := context.Background()

	c, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)
	inf := newTestInfluencer(t, store, "Ana", "ANA10")

	for day := 2; day <= 6; day++ {
		planOn(t, store, c.ID, inf.ID, time.Date(2026, time.March, day, 0, 0, 0, 0, time.UTC), cycle.PlanValidated)
	}
	overdue := planOn(t, store, c.ID, inf.ID, time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), cycle.PlanScheduled)
	saleWorth(t, store, inf.ID, "#1001", 100)

	// WHEN: closing the cycle
	result, err := m.CloseCycle(ctx, c.ID)
	require.NoError(t, err)

	// THEN: the snapshot freezes the 125% band applied to 100 points
	require.Len(t, result.Summaries, 1)
	snap := result.Summaries[0]
	assert.Equal(t, inf.ID, snap.InfluencerID)
	assert.Equal(t, 5, snap.ValidatedDays)
	assert.True(t, snap.Multiplier.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, int64(100), snap.BasePoints)
	assert.Equal(t, int64(125), snap.TotalPoints)
	assert.Equal(t, 6, snap.DeliveriesPlanned)
	assert.Equal(t, 5, snap.DeliveriesCompleted)

	// AND: the overdue scheduled plan was swept to missed
	assert.Equal(t, int64(1), result.Swept)
	sweptPlan, err := store.GetPlan(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, cycle.PlanMissed, sweptPlan.Status)

	// AND: the cycle is closed
	assert.Equal(t, cycle.CycleClosed, result.Cycle.Status)

	persisted, err := store.ListSnapshots(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, int64(125), persisted[0].TotalPoints)
	assert.Equal(t, 5, persisted[0].ValidationSummary[cycle.PlanValidated])
}

func TestCloseCycle_AlreadyClosedIsConflict(t *testing.T) {
	// GIVEN: a closed cycle
	store := newTestStore(t)
	m := newTestManager(t, store, march15)
	ctx := context.Background()

	c, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)
	inf := newTestInfluencer(t, store, "Bia", "BIA10")
	planOn(t, store, c.ID, inf.ID, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), cycle.PlanValidated)

	_, err = m.CloseCycle(ctx, c.ID)
	require.NoError(t, err)

	// WHEN: closing it again
	_, err = m.CloseCycle(ctx, c.ID)

	// THEN: the close is rejected and history stays frozen
	require.Error(t, err)
	assert.True(t, cycle.IsConflict(err))

	snaps, err := store.ListSnapshots(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestCloseCycle_PostedCountsAsCompletedNotValidated(t *testing.T) {
	// GIVEN: one validated and one posted delivery
	store := newTestStore(t)
	m := newTestManager(t, store, march15)
	ctx := context.Background()

	c, err := m.EnsureCurrentCycle(ctx)
	require.NoError(t, err)
	inf := newTestInfluencer(t, store, "Cris", "CRIS10")
	planOn(t, store, c.ID, inf.ID, time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), cycle.PlanValidated)
	planOn(t, store, c.ID, inf.ID, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), cycle.PlanPosted)

	// WHEN
	result, err := m.CloseCycle(ctx, c.ID)
	require.NoError(t, err)

	// THEN: only the validated one drives the multiplier
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, 1, result.Summaries[0].ValidatedDays)
	assert.Equal(t, 2, result.Summaries[0].DeliveriesCompleted)
}

func TestCloseCycle_UnknownCycle(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store, march15)

	_, err := m.CloseCycle(context.Background(), 999)

	require.Error(t, err)
	assert.True(t, cycle.IsNotFound(err))
}
