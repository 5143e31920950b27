package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hidrapink/cycle-engine/cycle"
)

// =============================================================================
// DELIVERY PLANS
// =============================================================================

const planColumns = "id, cycle_id, influencer_id, scheduled_date, script_id, notes, status, created_at, updated_at"

func (s *Store) CreatePlan(ctx context.Context, p *cycle.DeliveryPlan) (*cycle.DeliveryPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPlan(ctx, s.db, p)
}

func (ts *txStore) CreatePlan(ctx context.Context, p *cycle.DeliveryPlan) (*cycle.DeliveryPlan, error) {
	return createPlan(ctx, ts.tx, p)
}

func createPlan(ctx context.Context, q dbtx, p *cycle.DeliveryPlan) (*cycle.DeliveryPlan, error) {
	now := time.Now().UTC()
	status := p.Status
	if status == "" {
		status = cycle.PlanScheduled
	}
	var scriptID sql.NullInt64
	if p.ScriptID != nil {
		scriptID = sql.NullInt64{Int64: *p.ScriptID, Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO plans (cycle_id, influencer_id, scheduled_date, script_id, notes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.CycleID, p.InfluencerID, formatDate(p.ScheduledDate), scriptID,
		p.Notes, string(status), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: plan already exists for influencer %d on %s",
				cycle.ErrConflict, p.InfluencerID, formatDate(p.ScheduledDate))
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getPlan(ctx, q, id)
}

func (s *Store) GetPlan(ctx context.Context, id int64) (*cycle.DeliveryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlan(ctx, s.db, id)
}

func (ts *txStore) GetPlan(ctx context.Context, id int64) (*cycle.DeliveryPlan, error) {
	return getPlan(ctx, ts.tx, id)
}

func getPlan(ctx context.Context, q dbtx, id int64) (*cycle.DeliveryPlan, error) {
	row := q.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = ?", id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "plan", ID: id}
	}
	return p, err
}

func (s *Store) GetPlanByDate(ctx context.Context, cycleID, influencerID int64, date time.Time) (*cycle.DeliveryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlanByDate(ctx, s.db, cycleID, influencerID, date)
}

func (ts *txStore) GetPlanByDate(ctx context.Context, cycleID, influencerID int64, date time.Time) (*cycle.DeliveryPlan, error) {
	return getPlanByDate(ctx, ts.tx, cycleID, influencerID, date)
}

func getPlanByDate(ctx context.Context, q dbtx, cycleID, influencerID int64, date time.Time) (*cycle.DeliveryPlan, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? AND influencer_id = ? AND scheduled_date = ?",
		cycleID, influencerID, formatDate(date))
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "plan", ID: formatDate(date)}
	}
	return p, err
}

func (s *Store) ListPlans(ctx context.Context, cycleID, influencerID int64) ([]cycle.DeliveryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? AND influencer_id = ? ORDER BY scheduled_date",
		cycleID, influencerID)
}

func (ts *txStore) ListPlans(ctx context.Context, cycleID, influencerID int64) ([]cycle.DeliveryPlan, error) {
	return listPlans(ctx, ts.tx,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? AND influencer_id = ? ORDER BY scheduled_date",
		cycleID, influencerID)
}

func (s *Store) ListCyclePlans(ctx context.Context, cycleID int64) ([]cycle.DeliveryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? ORDER BY influencer_id, scheduled_date", cycleID)
}

func (ts *txStore) ListCyclePlans(ctx context.Context, cycleID int64) ([]cycle.DeliveryPlan, error) {
	return listPlans(ctx, ts.tx,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? ORDER BY influencer_id, scheduled_date", cycleID)
}

func (s *Store) ListPlansByStatus(ctx context.Context, cycleID int64, status cycle.PlanStatus) ([]cycle.DeliveryPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? AND status = ? ORDER BY scheduled_date",
		cycleID, string(status))
}

func (ts *txStore) ListPlansByStatus(ctx context.Context, cycleID int64, status cycle.PlanStatus) ([]cycle.DeliveryPlan, error) {
	return listPlans(ctx, ts.tx,
		"SELECT "+planColumns+" FROM plans WHERE cycle_id = ? AND status = ? ORDER BY scheduled_date",
		cycleID, string(status))
}

func listPlans(ctx context.Context, q dbtx, query string, args ...any) ([]cycle.DeliveryPlan, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []cycle.DeliveryPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *Store) UpdatePlan(ctx context.Context, p *cycle.DeliveryPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePlan(ctx, s.db, p)
}

func (ts *txStore) UpdatePlan(ctx context.Context, p *cycle.DeliveryPlan) error {
	return updatePlan(ctx, ts.tx, p)
}

func updatePlan(ctx context.Context, q dbtx, p *cycle.DeliveryPlan) error {
	var scriptID sql.NullInt64
	if p.ScriptID != nil {
		scriptID = sql.NullInt64{Int64: *p.ScriptID, Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		UPDATE plans
		SET scheduled_date = ?, script_id = ?, notes = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		formatDate(p.ScheduledDate), scriptID, p.Notes, string(p.Status),
		formatTime(time.Now().UTC()), p.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: another plan already occupies %s",
				cycle.ErrConflict, formatDate(p.ScheduledDate))
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "plan", ID: p.ID}
	}
	return nil
}

func (s *Store) UpdatePlanStatus(ctx context.Context, id int64, status cycle.PlanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePlanStatus(ctx, s.db, id, status)
}

func (ts *txStore) UpdatePlanStatus(ctx context.Context, id int64, status cycle.PlanStatus) error {
	return updatePlanStatus(ctx, ts.tx, id, status)
}

func updatePlanStatus(ctx context.Context, q dbtx, id int64, status cycle.PlanStatus) error {
	res, err := q.ExecContext(ctx,
		"UPDATE plans SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "plan", ID: id}
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePlan(ctx, s.db, id)
}

func (ts *txStore) DeletePlan(ctx context.Context, id int64) error {
	return deletePlan(ctx, ts.tx, id)
}

func deletePlan(ctx context.Context, q dbtx, id int64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "plan", ID: id}
	}
	return nil
}

func (s *Store) DeletePlansByScript(ctx context.Context, cycleID, influencerID, scriptID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePlansByScript(ctx, s.db, cycleID, influencerID, scriptID)
}

func (ts *txStore) DeletePlansByScript(ctx context.Context, cycleID, influencerID, scriptID int64) (int64, error) {
	return deletePlansByScript(ctx, ts.tx, cycleID, influencerID, scriptID)
}

// deletePlansByScript removes every still-scheduled occurrence of a
// script. Posted/validated/missed occurrences stay: their history is
// part of the cycle's record.
func deletePlansByScript(ctx context.Context, q dbtx, cycleID, influencerID, scriptID int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		"DELETE FROM plans WHERE cycle_id = ? AND influencer_id = ? AND script_id = ? AND status = 'scheduled'",
		cycleID, influencerID, scriptID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkOverduePlansMissed(ctx context.Context, cycleID int64, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markOverduePlansMissed(ctx, s.db, cycleID, cutoff)
}

func (ts *txStore) MarkOverduePlansMissed(ctx context.Context, cycleID int64, cutoff time.Time) (int64, error) {
	return markOverduePlansMissed(ctx, ts.tx, cycleID, cutoff)
}

func markOverduePlansMissed(ctx context.Context, q dbtx, cycleID int64, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE plans SET status = 'missed', updated_at = ?
		WHERE cycle_id = ? AND status = 'scheduled' AND scheduled_date <= ?`,
		formatTime(time.Now().UTC()), cycleID, formatDate(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanPlan(row rowScanner) (*cycle.DeliveryPlan, error) {
	var (
		p         cycle.DeliveryPlan
		date      string
		scriptID  sql.NullInt64
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&p.ID, &p.CycleID, &p.InfluencerID, &date, &scriptID, &p.Notes, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.ScheduledDate = parseDate(date)
	if scriptID.Valid {
		p.ScriptID = &scriptID.Int64
	}
	p.Status = cycle.PlanStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
