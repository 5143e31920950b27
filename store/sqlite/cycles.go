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
// CYCLES
// =============================================================================

const cycleColumns = "id, year, month, status, start_date, closed_at, created_at"

func (s *Store) CreateCycle(ctx context.Context, year int, month time.Month, startDate time.Time) (*cycle.MonthlyCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCycle(ctx, s.db, year, month, startDate)
}

func (ts *txStore) CreateCycle(ctx context.Context, year int, month time.Month, startDate time.Time) (*cycle.MonthlyCycle, error) {
	return createCycle(ctx, ts.tx, year, month, startDate)
}

func createCycle(ctx context.Context, q dbtx, year int, month time.Month, startDate time.Time) (*cycle.MonthlyCycle, error) {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO cycles (year, month, status, start_date, created_at)
		VALUES (?, ?, 'open', ?, ?)`,
		year, int(month), formatDate(startDate), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: cycle for %04d-%02d already exists", cycle.ErrConflict, year, int(month))
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getCycle(ctx, q, id)
}

func (s *Store) GetCycle(ctx context.Context, id int64) (*cycle.MonthlyCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCycle(ctx, s.db, id)
}

func (ts *txStore) GetCycle(ctx context.Context, id int64) (*cycle.MonthlyCycle, error) {
	return getCycle(ctx, ts.tx, id)
}

func getCycle(ctx context.Context, q dbtx, id int64) (*cycle.MonthlyCycle, error) {
	row := q.QueryRowContext(ctx, "SELECT "+cycleColumns+" FROM cycles WHERE id = ?", id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "cycle", ID: id}
	}
	return c, err
}

func (s *Store) GetCycleByMonth(ctx context.Context, year int, month time.Month) (*cycle.MonthlyCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCycleByMonth(ctx, s.db, year, month)
}

func (ts *txStore) GetCycleByMonth(ctx context.Context, year int, month time.Month) (*cycle.MonthlyCycle, error) {
	return getCycleByMonth(ctx, ts.tx, year, month)
}

func getCycleByMonth(ctx context.Context, q dbtx, year int, month time.Month) (*cycle.MonthlyCycle, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+cycleColumns+" FROM cycles WHERE year = ? AND month = ?", year, int(month))
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "cycle", ID: fmt.Sprintf("%04d-%02d", year, int(month))}
	}
	return c, err
}

func (s *Store) ListOpenCycles(ctx context.Context) ([]cycle.MonthlyCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCycles(ctx, s.db, "SELECT "+cycleColumns+" FROM cycles WHERE status = 'open' ORDER BY year, month")
}

func (ts *txStore) ListOpenCycles(ctx context.Context) ([]cycle.MonthlyCycle, error) {
	return listCycles(ctx, ts.tx, "SELECT "+cycleColumns+" FROM cycles WHERE status = 'open' ORDER BY year, month")
}

func (s *Store) ListCycles(ctx context.Context) ([]cycle.MonthlyCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCycles(ctx, s.db, "SELECT "+cycleColumns+" FROM cycles ORDER BY year DESC, month DESC")
}

func (ts *txStore) ListCycles(ctx context.Context) ([]cycle.MonthlyCycle, error) {
	return listCycles(ctx, ts.tx, "SELECT "+cycleColumns+" FROM cycles ORDER BY year DESC, month DESC")
}

func listCycles(ctx context.Context, q dbtx, query string, args ...any) ([]cycle.MonthlyCycle, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []cycle.MonthlyCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

func (s *Store) SetCycleStatus(ctx context.Context, id int64, status cycle.CycleStatus, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setCycleStatus(ctx, s.db, id, status, closedAt)
}

func (ts *txStore) SetCycleStatus(ctx context.Context, id int64, status cycle.CycleStatus, closedAt *time.Time) error {
	return setCycleStatus(ctx, ts.tx, id, status, closedAt)
}

func setCycleStatus(ctx context.Context, q dbtx, id int64, status cycle.CycleStatus, closedAt *time.Time) error {
	var closed sql.NullString
	if closedAt != nil {
		closed = sql.NullString{String: formatTime(*closedAt), Valid: true}
	}
	res, err := q.ExecContext(ctx,
		"UPDATE cycles SET status = ?, closed_at = ? WHERE id = ?",
		string(status), closed, id,
	)
	if err != nil {
		// SQLite names the column ("cycles.status"), not the index, in the
		// constraint message; the partial index is the only UNIQUE on it.
		if isUniqueConstraintError(err) && (isIndexError(err, "idx_cycles_single_open") || isIndexError(err, "cycles.status")) {
			return fmt.Errorf("%w: another cycle is already open", cycle.ErrConflict)
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "cycle", ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*cycle.MonthlyCycle, error) {
	var (
		c         cycle.MonthlyCycle
		month     int
		status    string
		startDate string
		closedAt  sql.NullString
		createdAt string
	)
	err := row.Scan(&c.ID, &c.Year, &month, &status, &startDate, &closedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Month = time.Month(month)
	c.Status = cycle.CycleStatus(status)
	c.StartDate = parseDate(startDate)
	c.CreatedAt = parseTime(createdAt)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		c.ClosedAt = &t
	}
	return &c, nil
}
