/*
Package sqlite provides the SQLite-backed implementation of cycle.Store.

PURPOSE:
  One store for everything the engine persists: monthly cycles,
  delivery plans, influencers, scripts, sales, SKU point rules and
  commission snapshots.

INTERFACES IMPLEMENTED:
  cycle.Store:   all reads and single-statement writes
  cycle.TxStore: WithTx for atomic multi-statement operations

KEY TABLES:
  cycles:               one row per calendar month, unique (year, month)
  plans:                unique (cycle_id, influencer_id, scheduled_date)
  influencers:          unique LOWER(coupon)
  sales:                unique order_number (when present, trimmed)
  sku_rules:            unique LOWER(sku)
  commission_snapshots: unique (cycle_id, influencer_id), upserted

INVARIANT INDEXES:
  idx_cycles_single_open enforces at most one open cycle at the
  database level; the unique plan and order-number indexes back the
  engine's deduplication checks, so races between check and insert
  still surface as conflicts rather than duplicate rows.

CONCURRENCY:
  sync.RWMutex for in-process serialization. WithTx holds the write
  lock for the whole transaction, and the store handed to the callback
  routes every statement through the open *sql.Tx, never back through
  the locked parent.

WAL MODE:
  Opened with WAL so readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/cycles.db")
  defer store.Close()

SEE ALSO:
  - cycle/store.go: interface definitions
  - cycle/manager.go, cycle/scheduler.go: transactional call sites
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hidrapink/cycle-engine/cycle"
)

// Store implements cycle.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ cycle.TxStore = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Monthly cycles: one row per calendar month
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
		start_date TEXT NOT NULL,
		closed_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (year, month)
	);

	-- CRITICAL: at most one cycle may be open at any time
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_single_open
		ON cycles(status) WHERE status = 'open';

	CREATE TABLE IF NOT EXISTS influencers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		instagram TEXT NOT NULL DEFAULT '',
		coupon TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Coupon resolution is case-insensitive
	CREATE UNIQUE INDEX IF NOT EXISTS idx_influencers_coupon
		ON influencers(LOWER(coupon));

	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Delivery plans: one per influencer per date within a cycle
	CREATE TABLE IF NOT EXISTS plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL REFERENCES cycles(id),
		influencer_id INTEGER NOT NULL REFERENCES influencers(id) ON DELETE CASCADE,
		scheduled_date TEXT NOT NULL,
		script_id INTEGER REFERENCES scripts(id) ON DELETE SET NULL,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'scheduled'
			CHECK (status IN ('scheduled', 'posted', 'validated', 'missed')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (cycle_id, influencer_id, scheduled_date)
	);

	CREATE INDEX IF NOT EXISTS idx_plans_cycle_status
		ON plans(cycle_id, status);
	CREATE INDEX IF NOT EXISTS idx_plans_influencer
		ON plans(influencer_id);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		influencer_id INTEGER NOT NULL REFERENCES influencers(id) ON DELETE CASCADE,
		order_number TEXT,
		coupon TEXT NOT NULL DEFAULT '',
		sale_date TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points >= 0),
		value TEXT NOT NULL,
		items_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Order numbers are globally unique when present
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_order_number
		ON sales(order_number) WHERE order_number IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_sales_influencer_date
		ON sales(influencer_id, sale_date);

	CREATE TABLE IF NOT EXISTS sku_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		points_per_unit TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sku_rules_sku
		ON sku_rules(LOWER(sku));

	-- Close-time commission snapshots, upserted per (cycle, influencer)
	CREATE TABLE IF NOT EXISTS commission_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id INTEGER NOT NULL REFERENCES cycles(id),
		influencer_id INTEGER NOT NULL REFERENCES influencers(id) ON DELETE CASCADE,
		validated_days INTEGER NOT NULL,
		multiplier TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		base_points INTEGER NOT NULL,
		total_points INTEGER NOT NULL,
		deliveries_planned INTEGER NOT NULL,
		deliveries_completed INTEGER NOT NULL,
		validation_summary_json TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (cycle_id, influencer_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (cycle.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store cycle.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", cycle.ErrTransactionFailed, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", cycle.ErrTransactionFailed, err)
	}
	return nil
}

// txStore routes every statement through an open transaction. The
// parent's write lock is already held, so no further locking here.
type txStore struct {
	tx *sql.Tx
}

var _ cycle.Store = (*txStore)(nil)

// dbtx is the common surface of *sql.DB and *sql.Tx that the query
// helpers run against.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) string {
	return t.UTC().Format(cycle.DateOnly)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(cycle.DateOnly, s)
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isIndexError(err error, substr string) bool {
	return err != nil && strings.Contains(err.Error(), substr)
}
