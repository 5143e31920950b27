package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hidrapink/cycle-engine/cycle"
)

// =============================================================================
// COMMISSION SNAPSHOTS
// =============================================================================

const snapshotColumns = "id, cycle_id, influencer_id, validated_days, multiplier, label, base_points, total_points, deliveries_planned, deliveries_completed, validation_summary_json, created_at"

// UpsertSnapshot writes the commission snapshot for one influencer in
// one cycle, replacing any earlier row for the same pair. Used only by
// cycle close, so a retried close after a mid-transaction failure
// stays idempotent.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *cycle.CommissionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertSnapshot(ctx, s.db, snap)
}

func (ts *txStore) UpsertSnapshot(ctx context.Context, snap *cycle.CommissionSnapshot) error {
	return upsertSnapshot(ctx, ts.tx, snap)
}

func upsertSnapshot(ctx context.Context, q dbtx, snap *cycle.CommissionSnapshot) error {
	var summary sql.NullString
	if len(snap.ValidationSummary) > 0 {
		b, err := json.Marshal(snap.ValidationSummary)
		if err != nil {
			return err
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO commission_snapshots
			(cycle_id, influencer_id, validated_days, multiplier, label, base_points,
			 total_points, deliveries_planned, deliveries_completed, validation_summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id, influencer_id) DO UPDATE SET
			validated_days = excluded.validated_days,
			multiplier = excluded.multiplier,
			label = excluded.label,
			base_points = excluded.base_points,
			total_points = excluded.total_points,
			deliveries_planned = excluded.deliveries_planned,
			deliveries_completed = excluded.deliveries_completed,
			validation_summary_json = excluded.validation_summary_json,
			created_at = excluded.created_at`,
		snap.CycleID, snap.InfluencerID, snap.ValidatedDays, snap.Multiplier.String(),
		snap.Label, snap.BasePoints, snap.TotalPoints, snap.DeliveriesPlanned,
		snap.DeliveriesCompleted, summary, formatTime(time.Now().UTC()),
	)
	return err
}

func (s *Store) ListSnapshots(ctx context.Context, cycleID int64) ([]cycle.CommissionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSnapshots(ctx, s.db, cycleID)
}

func (ts *txStore) ListSnapshots(ctx context.Context, cycleID int64) ([]cycle.CommissionSnapshot, error) {
	return listSnapshots(ctx, ts.tx, cycleID)
}

func listSnapshots(ctx context.Context, q dbtx, cycleID int64) ([]cycle.CommissionSnapshot, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM commission_snapshots WHERE cycle_id = ? ORDER BY influencer_id", cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []cycle.CommissionSnapshot
	for rows.Next() {
		var (
			snap       cycle.CommissionSnapshot
			multiplier string
			summary    sql.NullString
			createdAt  string
		)
		err := rows.Scan(&snap.ID, &snap.CycleID, &snap.InfluencerID, &snap.ValidatedDays,
			&multiplier, &snap.Label, &snap.BasePoints, &snap.TotalPoints,
			&snap.DeliveriesPlanned, &snap.DeliveriesCompleted, &summary, &createdAt)
		if err != nil {
			return nil, err
		}
		snap.Multiplier, _ = decimal.NewFromString(multiplier)
		if summary.Valid && summary.String != "" {
			json.Unmarshal([]byte(summary.String), &snap.ValidationSummary)
		}
		snap.CreatedAt = parseTime(createdAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
