/*
manager.go - Monthly cycle lifecycle

PURPOSE:
  Exactly one open cycle should exist at any time, matching the current
  calendar month. The Manager enforces that invariant on read
  (EnsureCurrentCycle) and freezes commission snapshots when a cycle is
  explicitly closed.

CLOSE SEMANTICS:
  CloseCycle runs as ONE transaction:
    1. per influencer: count validated/planned/completed plans
    2. resolve the multiplier band from the validated count
    3. upsert a commission snapshot (base points = accumulated sale
       points, total = round(base * multiplier))
    4. sweep overdue scheduled plans to missed
    5. mark the cycle closed
  Any failure rolls the whole close back, leaving the cycle open.
  Closing an already-closed cycle is a conflict; snapshots are history.

REPAIR PATH:
  EnsureCurrentCycle force-closes stray open cycles from earlier months
  WITHOUT snapshotting. That path repairs consistency after downtime
  across a month boundary; it is not a billing event.
*/
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hidrapink/cycle-engine/points"
)

// Manager owns the monthly cycle lifecycle.
type Manager struct {
	Store      TxStore
	Calculator *points.Calculator
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewManager wires a Manager. A nil calculator gets defaults; a nil
// now func uses time.Now.
func NewManager(store TxStore, calc *points.Calculator, logger *slog.Logger) *Manager {
	if calc == nil {
		calc = points.NewCalculator(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Store: store, Calculator: calc, Logger: logger, Now: time.Now}
}

// CloseResult is the outcome of closing one cycle.
type CloseResult struct {
	Cycle     *MonthlyCycle
	Summaries []CommissionSnapshot
	Swept     int64
}

// EnsureCurrentCycle returns the open cycle for the current calendar
// month, creating or re-opening it as needed. Stray open cycles from
// other months are force-closed in the same transaction so the single
// open cycle invariant holds even after downtime across a month
// boundary.
func (m *Manager) EnsureCurrentCycle(ctx context.Context) (*MonthlyCycle, error) {
	now := m.Now().UTC()
	year, month := now.Year(), now.Month()

	// Fast path: the current month's cycle already exists and is open.
	existing, err := m.Store.GetCycleByMonth(ctx, year, month)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.Status == CycleOpen {
		return existing, nil
	}

	var current *MonthlyCycle
	err = m.Store.WithTx(ctx, func(tx Store) error {
		open, err := tx.ListOpenCycles(ctx)
		if err != nil {
			return err
		}
		closedAt := now
		for i := range open {
			if open[i].Year == year && open[i].Month == month {
				current = &open[i]
				continue
			}
			// Consistency repair: no snapshotting on this path.
			if err := tx.SetCycleStatus(ctx, open[i].ID, CycleClosed, &closedAt); err != nil {
				return err
			}
			m.Logger.Warn("force-closed stray open cycle",
				"cycle_id", open[i].ID, "year", open[i].Year, "month", int(open[i].Month))
		}
		if current != nil {
			return nil
		}

		row, err := tx.GetCycleByMonth(ctx, year, month)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if row != nil {
			// The month's row exists but was closed early: re-open it.
			if err := tx.SetCycleStatus(ctx, row.ID, CycleOpen, nil); err != nil {
				return err
			}
			row.Status = CycleOpen
			row.ClosedAt = nil
			current = row
			return nil
		}

		start, _ := MonthBounds(year, month)
		created, err := tx.CreateCycle(ctx, year, month, start)
		if err != nil {
			return err
		}
		current = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure current cycle: %w", err)
	}
	return current, nil
}

// CloseCycle snapshots commissions for every influencer, sweeps
// overdue plans to missed and marks the cycle closed, all in one
// transaction. Closing a cycle that is already closed is a conflict.
func (m *Manager) CloseCycle(ctx context.Context, cycleID int64) (*CloseResult, error) {
	c, err := m.Store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if c.Status == CycleClosed {
		return nil, &CycleClosedError{CycleID: c.ID, ClosedAt: c.ClosedAt}
	}

	_, end := c.Bounds()
	closedAt := m.Now().UTC()
	result := &CloseResult{}

	err = m.Store.WithTx(ctx, func(tx Store) error {
		plans, err := tx.ListCyclePlans(ctx, c.ID)
		if err != nil {
			return err
		}

		// Group plans per influencer; every influencer with at least
		// one plan in the cycle gets a snapshot.
		byInfluencer := make(map[int64][]DeliveryPlan)
		var order []int64
		for _, p := range plans {
			if _, seen := byInfluencer[p.InfluencerID]; !seen {
				order = append(order, p.InfluencerID)
			}
			byInfluencer[p.InfluencerID] = append(byInfluencer[p.InfluencerID], p)
		}

		for _, infID := range order {
			infPlans := byInfluencer[infID]
			summary := make(map[PlanStatus]int)
			for _, p := range infPlans {
				summary[p.Status]++
			}
			validated := summary[PlanValidated]
			completed := summary[PlanPosted] + summary[PlanValidated]

			basePoints, err := tx.SumSalePoints(ctx, infID)
			if err != nil {
				return err
			}
			commission := m.Calculator.Summarize(validated, basePoints)

			snap := &CommissionSnapshot{
				CycleID:             c.ID,
				InfluencerID:        infID,
				ValidatedDays:       validated,
				Multiplier:          commission.Multiplier,
				Label:               commission.Label,
				BasePoints:          commission.BasePoints,
				TotalPoints:         commission.TotalPoints,
				DeliveriesPlanned:   len(infPlans),
				DeliveriesCompleted: completed,
				ValidationSummary:   summary,
			}
			if err := tx.UpsertSnapshot(ctx, snap); err != nil {
				return fmt.Errorf("snapshot influencer %d: %w", infID, err)
			}
			result.Summaries = append(result.Summaries, *snap)
		}

		swept, err := tx.MarkOverduePlansMissed(ctx, c.ID, end)
		if err != nil {
			return err
		}
		result.Swept = swept

		return tx.SetCycleStatus(ctx, c.ID, CycleClosed, &closedAt)
	})
	if err != nil {
		return nil, err
	}

	c.Status = CycleClosed
	c.ClosedAt = &closedAt
	result.Cycle = c

	m.Logger.Info("cycle closed",
		"cycle_id", c.ID, "year", c.Year, "month", int(c.Month),
		"influencers", len(result.Summaries), "plans_swept", result.Swept)
	return result, nil
}
