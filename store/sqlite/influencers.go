package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hidrapink/cycle-engine/cycle"
)

// =============================================================================
// INFLUENCERS
// =============================================================================

const influencerColumns = "id, name, instagram, coupon, created_at"

func (s *Store) CreateInfluencer(ctx context.Context, inf *cycle.Influencer) (*cycle.Influencer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createInfluencer(ctx, s.db, inf)
}

func (ts *txStore) CreateInfluencer(ctx context.Context, inf *cycle.Influencer) (*cycle.Influencer, error) {
	return createInfluencer(ctx, ts.tx, inf)
}

func createInfluencer(ctx context.Context, q dbtx, inf *cycle.Influencer) (*cycle.Influencer, error) {
	coupon := strings.TrimSpace(inf.Coupon)
	if coupon == "" {
		return nil, &cycle.ValidationError{Field: "coupon", Message: "is required"}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO influencers (name, instagram, coupon, created_at)
		VALUES (?, ?, ?, ?)`,
		inf.Name, inf.Instagram, coupon, formatTime(time.Now().UTC()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: coupon %q already in use", cycle.ErrConflict, coupon)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getInfluencer(ctx, q, id)
}

func (s *Store) GetInfluencer(ctx context.Context, id int64) (*cycle.Influencer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInfluencer(ctx, s.db, id)
}

func (ts *txStore) GetInfluencer(ctx context.Context, id int64) (*cycle.Influencer, error) {
	return getInfluencer(ctx, ts.tx, id)
}

func getInfluencer(ctx context.Context, q dbtx, id int64) (*cycle.Influencer, error) {
	row := q.QueryRowContext(ctx, "SELECT "+influencerColumns+" FROM influencers WHERE id = ?", id)
	inf, err := scanInfluencer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "influencer", ID: id}
	}
	return inf, err
}

func (s *Store) GetInfluencerByCoupon(ctx context.Context, coupon string) (*cycle.Influencer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInfluencerByCoupon(ctx, s.db, coupon)
}

func (ts *txStore) GetInfluencerByCoupon(ctx context.Context, coupon string) (*cycle.Influencer, error) {
	return getInfluencerByCoupon(ctx, ts.tx, coupon)
}

func getInfluencerByCoupon(ctx context.Context, q dbtx, coupon string) (*cycle.Influencer, error) {
	coupon = strings.TrimSpace(coupon)
	row := q.QueryRowContext(ctx,
		"SELECT "+influencerColumns+" FROM influencers WHERE LOWER(coupon) = LOWER(?)", coupon)
	inf, err := scanInfluencer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "influencer", ID: coupon}
	}
	return inf, err
}

func (s *Store) ListInfluencers(ctx context.Context) ([]cycle.Influencer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInfluencers(ctx, s.db)
}

func (ts *txStore) ListInfluencers(ctx context.Context) ([]cycle.Influencer, error) {
	return listInfluencers(ctx, ts.tx)
}

func listInfluencers(ctx context.Context, q dbtx) ([]cycle.Influencer, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+influencerColumns+" FROM influencers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var influencers []cycle.Influencer
	for rows.Next() {
		inf, err := scanInfluencer(rows)
		if err != nil {
			return nil, err
		}
		influencers = append(influencers, *inf)
	}
	return influencers, rows.Err()
}

func scanInfluencer(row rowScanner) (*cycle.Influencer, error) {
	var (
		inf       cycle.Influencer
		createdAt string
	)
	if err := row.Scan(&inf.ID, &inf.Name, &inf.Instagram, &inf.Coupon, &createdAt); err != nil {
		return nil, err
	}
	inf.CreatedAt = parseTime(createdAt)
	return &inf, nil
}

// =============================================================================
// SCRIPTS
// =============================================================================

func (s *Store) CreateScript(ctx context.Context, sc *cycle.Script) (*cycle.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createScript(ctx, s.db, sc)
}

func (ts *txStore) CreateScript(ctx context.Context, sc *cycle.Script) (*cycle.Script, error) {
	return createScript(ctx, ts.tx, sc)
}

func createScript(ctx context.Context, q dbtx, sc *cycle.Script) (*cycle.Script, error) {
	if strings.TrimSpace(sc.Title) == "" {
		return nil, &cycle.ValidationError{Field: "title", Message: "is required"}
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO scripts (title, description, created_at) VALUES (?, ?, ?)",
		sc.Title, sc.Description, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getScript(ctx, q, id)
}

func (s *Store) GetScript(ctx context.Context, id int64) (*cycle.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getScript(ctx, s.db, id)
}

func (ts *txStore) GetScript(ctx context.Context, id int64) (*cycle.Script, error) {
	return getScript(ctx, ts.tx, id)
}

func getScript(ctx context.Context, q dbtx, id int64) (*cycle.Script, error) {
	var (
		sc        cycle.Script
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, title, description, created_at FROM scripts WHERE id = ?", id,
	).Scan(&sc.ID, &sc.Title, &sc.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "script", ID: id}
	}
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = parseTime(createdAt)
	return &sc, nil
}

func (s *Store) ListScripts(ctx context.Context) ([]cycle.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listScripts(ctx, s.db)
}

func (ts *txStore) ListScripts(ctx context.Context) ([]cycle.Script, error) {
	return listScripts(ctx, ts.tx)
}

func listScripts(ctx context.Context, q dbtx) ([]cycle.Script, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, title, description, created_at FROM scripts ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []cycle.Script
	for rows.Next() {
		var (
			sc        cycle.Script
			createdAt string
		)
		if err := rows.Scan(&sc.ID, &sc.Title, &sc.Description, &createdAt); err != nil {
			return nil, err
		}
		sc.CreatedAt = parseTime(createdAt)
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}
