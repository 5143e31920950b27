/*
scheduler.go - Delivery plan state machine

PURPOSE:
  Governs an influencer's per-date delivery plans within a cycle:
  batch upsert with move/append semantics, removals, and the
  validation transitions driven by master users.

STATE MACHINE:
  scheduled -> posted | validated | missed
  posted    -> validated
  rejection -> scheduled (from ANY state, including validated)

BATCH UPSERT RULES:
  - dates outside the cycle's month are silently dropped, not errored
  - an entry with a script id and no append flag MOVES the existing
    plan for that script instead of duplicating it
  - an entry with no script id is keyed by date alone (one plan/day)
  - a create landing on an occupied date updates that plan in place

  Changing a plan's date resets its status to scheduled: the delivery
  commitment changed, so any prior validation no longer applies.
*/
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PlanEntry is one item in a batch plan upsert. PlanID targets an
// existing plan; otherwise (Date, ScriptID) create or move one.
type PlanEntry struct {
	PlanID   *int64
	Date     time.Time
	ScriptID *int64
	Notes    string
	Append   bool
}

// Scheduler mutates delivery plans.
type Scheduler struct {
	Store  TxStore
	Logger *slog.Logger
}

func NewScheduler(store TxStore, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Store: store, Logger: logger}
}

// UpsertPlanEntries applies a batch of plan changes for one influencer
// in one cycle atomically: removals first, then entry upserts. Returns
// the influencer's full plan list for the cycle afterwards.
func (s *Scheduler) UpsertPlanEntries(ctx context.Context, cycleID, influencerID int64, entries []PlanEntry, removedPlanIDs []int64, removedScriptIDs []int64) ([]DeliveryPlan, error) {
	c, err := s.Store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if c.Status != CycleOpen {
		return nil, &CycleClosedError{CycleID: c.ID, ClosedAt: c.ClosedAt}
	}
	if _, err := s.Store.GetInfluencer(ctx, influencerID); err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		// Removals are influencer-initiated and only valid while the
		// plan is still scheduled. Anything else is silently skipped.
		for _, id := range removedPlanIDs {
			p, err := tx.GetPlan(ctx, id)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if p.CycleID != c.ID || p.InfluencerID != influencerID {
				return ErrPermission
			}
			if p.Status != PlanScheduled {
				continue
			}
			if err := tx.DeletePlan(ctx, id); err != nil {
				return err
			}
		}
		for _, scriptID := range removedScriptIDs {
			if _, err := tx.DeletePlansByScript(ctx, c.ID, influencerID, scriptID); err != nil {
				return err
			}
		}

		for _, e := range entries {
			if err := s.applyEntry(ctx, tx, c, influencerID, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert plan entries: %w", err)
	}

	return s.Store.ListPlans(ctx, c.ID, influencerID)
}

func (s *Scheduler) applyEntry(ctx context.Context, tx Store, c *MonthlyCycle, influencerID int64, e PlanEntry) error {
	date := e.Date.UTC().Truncate(24 * time.Hour)
	if !c.Contains(date) {
		// Tolerant batch API: out-of-month dates are dropped.
		s.Logger.Debug("dropping out-of-month plan entry",
			"cycle_id", c.ID, "influencer_id", influencerID, "date", date.Format(DateOnly))
		return nil
	}

	if e.PlanID != nil {
		return s.updateExisting(ctx, tx, c, influencerID, *e.PlanID, date, e)
	}

	if e.ScriptID != nil && !e.Append {
		// Move the existing occurrence of this script, if any.
		plans, err := tx.ListPlans(ctx, c.ID, influencerID)
		if err != nil {
			return err
		}
		for i := range plans {
			if plans[i].ScriptID != nil && *plans[i].ScriptID == *e.ScriptID {
				return s.updateExisting(ctx, tx, c, influencerID, plans[i].ID, date, e)
			}
		}
	}

	// One plan per day: a create landing on an occupied date updates
	// that plan instead of violating the date uniqueness invariant.
	existing, err := tx.GetPlanByDate(ctx, c.ID, influencerID, date)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if existing != nil {
		return s.updateExisting(ctx, tx, c, influencerID, existing.ID, date, e)
	}

	_, err = tx.CreatePlan(ctx, &DeliveryPlan{
		CycleID:       c.ID,
		InfluencerID:  influencerID,
		ScheduledDate: date,
		ScriptID:      e.ScriptID,
		Notes:         e.Notes,
		Status:        PlanScheduled,
	})
	return err
}

func (s *Scheduler) updateExisting(ctx context.Context, tx Store, c *MonthlyCycle, influencerID, planID int64, date time.Time, e PlanEntry) error {
	p, err := tx.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if p.CycleID != c.ID || p.InfluencerID != influencerID {
		return ErrPermission
	}

	moved := !p.ScheduledDate.Equal(date)
	p.ScheduledDate = date
	if e.ScriptID != nil {
		p.ScriptID = e.ScriptID
	}
	if e.Notes != "" {
		p.Notes = e.Notes
	}
	if moved {
		p.Status = PlanScheduled
	}
	return tx.UpdatePlan(ctx, p)
}

// Post marks a scheduled plan as posted (the influencer published the
// content; a master still has to validate it).
func (s *Scheduler) Post(ctx context.Context, planID int64) (*DeliveryPlan, error) {
	return s.transition(ctx, planID, func(p *DeliveryPlan) error {
		if p.Status != PlanScheduled {
			return fmt.Errorf("%w: plan %d is %s, only scheduled plans can be posted", ErrConflict, p.ID, p.Status)
		}
		p.Status = PlanPosted
		return nil
	})
}

// Validate approves a delivery. Approving an already-validated plan is
// a conflict, not a silent no-op.
func (s *Scheduler) Validate(ctx context.Context, planID int64) (*DeliveryPlan, error) {
	return s.transition(ctx, planID, func(p *DeliveryPlan) error {
		if p.Status == PlanValidated {
			return fmt.Errorf("plan %d: %w", p.ID, ErrAlreadyValidated)
		}
		p.Status = PlanValidated
		return nil
	})
}

// Reject resets a plan to scheduled from any state. Rejecting a
// validated plan corrects a mistaken approval.
func (s *Scheduler) Reject(ctx context.Context, planID int64) (*DeliveryPlan, error) {
	return s.transition(ctx, planID, func(p *DeliveryPlan) error {
		p.Status = PlanScheduled
		return nil
	})
}

func (s *Scheduler) transition(ctx context.Context, planID int64, apply func(*DeliveryPlan) error) (*DeliveryPlan, error) {
	p, err := s.Store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetCycle(ctx, p.CycleID)
	if err != nil {
		return nil, err
	}
	if c.Status != CycleOpen {
		return nil, &CycleClosedError{CycleID: c.ID, ClosedAt: c.ClosedAt}
	}
	if err := apply(p); err != nil {
		return nil, err
	}
	if err := s.Store.UpdatePlanStatus(ctx, p.ID, p.Status); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPendingValidations returns the cycle's posted plans awaiting a
// master decision.
func (s *Scheduler) ListPendingValidations(ctx context.Context, cycleID int64) ([]DeliveryPlan, error) {
	if _, err := s.Store.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.Store.ListPlansByStatus(ctx, cycleID, PlanPosted)
}
