package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hidrapink/cycle-engine/cycle"
)

// =============================================================================
// SKU POINT RULES
// =============================================================================

const skuColumns = "id, sku, description, points_per_unit, active, created_at, updated_at"

// UpsertSkuRule creates or updates the rule for a SKU, matched
// case-insensitively. The stored SKU keeps the caller's casing.
func (s *Store) UpsertSkuRule(ctx context.Context, rule *cycle.SkuPointRule) (*cycle.SkuPointRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertSkuRule(ctx, s.db, rule)
}

func (ts *txStore) UpsertSkuRule(ctx context.Context, rule *cycle.SkuPointRule) (*cycle.SkuPointRule, error) {
	return upsertSkuRule(ctx, ts.tx, rule)
}

func upsertSkuRule(ctx context.Context, q dbtx, rule *cycle.SkuPointRule) (*cycle.SkuPointRule, error) {
	sku := strings.TrimSpace(rule.SKU)
	if sku == "" {
		return nil, &cycle.ValidationError{Field: "sku", Message: "is required"}
	}
	if rule.PointsPerUnit.IsNegative() {
		return nil, &cycle.ValidationError{Field: "points_per_unit", Message: "must not be negative"}
	}

	now := formatTime(time.Now().UTC())
	existing, err := getSkuRule(ctx, q, sku)
	if err != nil && !cycle.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		_, err = q.ExecContext(ctx, `
			UPDATE sku_rules
			SET sku = ?, description = ?, points_per_unit = ?, active = ?, updated_at = ?
			WHERE id = ?`,
			sku, rule.Description, rule.PointsPerUnit.String(), boolToInt(rule.Active), now, existing.ID,
		)
		if err != nil {
			return nil, err
		}
		return getSkuRule(ctx, q, sku)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO sku_rules (sku, description, points_per_unit, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sku, rule.Description, rule.PointsPerUnit.String(), boolToInt(rule.Active), now, now,
	)
	if err != nil {
		return nil, err
	}
	return getSkuRule(ctx, q, sku)
}

func (s *Store) GetSkuRule(ctx context.Context, sku string) (*cycle.SkuPointRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSkuRule(ctx, s.db, sku)
}

func (ts *txStore) GetSkuRule(ctx context.Context, sku string) (*cycle.SkuPointRule, error) {
	return getSkuRule(ctx, ts.tx, sku)
}

func getSkuRule(ctx context.Context, q dbtx, sku string) (*cycle.SkuPointRule, error) {
	sku = strings.TrimSpace(sku)
	row := q.QueryRowContext(ctx,
		"SELECT "+skuColumns+" FROM sku_rules WHERE LOWER(sku) = LOWER(?)", sku)
	rule, err := scanSkuRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "sku rule", ID: sku}
	}
	return rule, err
}

func (s *Store) ListSkuRules(ctx context.Context) ([]cycle.SkuPointRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSkuRules(ctx, s.db)
}

func (ts *txStore) ListSkuRules(ctx context.Context) ([]cycle.SkuPointRule, error) {
	return listSkuRules(ctx, ts.tx)
}

func listSkuRules(ctx context.Context, q dbtx) ([]cycle.SkuPointRule, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+skuColumns+" FROM sku_rules ORDER BY sku")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []cycle.SkuPointRule
	for rows.Next() {
		rule, err := scanSkuRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func scanSkuRule(row rowScanner) (*cycle.SkuPointRule, error) {
	var (
		rule      cycle.SkuPointRule
		perUnit   string
		active    int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rule.ID, &rule.SKU, &rule.Description, &perUnit, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rule.PointsPerUnit, _ = decimal.NewFromString(perUnit)
	rule.Active = active != 0
	rule.CreatedAt = parseTime(createdAt)
	rule.UpdatedAt = parseTime(updatedAt)
	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
