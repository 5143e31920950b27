package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hidrapink/cycle-engine/cycle"
)

// =============================================================================
// SALES
// =============================================================================

const saleColumns = "id, influencer_id, order_number, coupon, sale_date, points, value, items_json, created_at, updated_at"

func (s *Store) CreateSale(ctx context.Context, sale *cycle.SaleRecord) (*cycle.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSale(ctx, s.db, sale)
}

func (ts *txStore) CreateSale(ctx context.Context, sale *cycle.SaleRecord) (*cycle.SaleRecord, error) {
	return createSale(ctx, ts.tx, sale)
}

func createSale(ctx context.Context, q dbtx, sale *cycle.SaleRecord) (*cycle.SaleRecord, error) {
	if sale.Points < 0 {
		return nil, &cycle.ValidationError{Field: "points", Message: "must not be negative"}
	}
	order := strings.TrimSpace(sale.OrderNumber)
	items, err := marshalItems(sale.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO sales (influencer_id, order_number, coupon, sale_date, points, value, items_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.InfluencerID, nullString(order), sale.Coupon, formatDate(sale.Date),
		sale.Points, sale.Value.String(), items, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &cycle.DuplicateOrderError{OrderNumber: order}
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getSale(ctx, q, id)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*cycle.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSale(ctx, s.db, id)
}

func (ts *txStore) GetSale(ctx context.Context, id int64) (*cycle.SaleRecord, error) {
	return getSale(ctx, ts.tx, id)
}

func getSale(ctx context.Context, q dbtx, id int64) (*cycle.SaleRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+saleColumns+" FROM sales WHERE id = ?", id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &cycle.NotFoundError{Entity: "sale", ID: id}
	}
	return sale, err
}

func (s *Store) UpdateSale(ctx context.Context, sale *cycle.SaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSale(ctx, s.db, sale)
}

func (ts *txStore) UpdateSale(ctx context.Context, sale *cycle.SaleRecord) error {
	return updateSale(ctx, ts.tx, sale)
}

func updateSale(ctx context.Context, q dbtx, sale *cycle.SaleRecord) error {
	if sale.Points < 0 {
		return &cycle.ValidationError{Field: "points", Message: "must not be negative"}
	}
	order := strings.TrimSpace(sale.OrderNumber)
	items, err := marshalItems(sale.Items)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE sales
		SET influencer_id = ?, order_number = ?, coupon = ?, sale_date = ?, points = ?, value = ?, items_json = ?, updated_at = ?
		WHERE id = ?`,
		sale.InfluencerID, nullString(order), sale.Coupon, formatDate(sale.Date),
		sale.Points, sale.Value.String(), items, formatTime(time.Now().UTC()), sale.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &cycle.DuplicateOrderError{OrderNumber: order}
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "sale", ID: sale.ID}
	}
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSale(ctx, s.db, id)
}

func (ts *txStore) DeleteSale(ctx context.Context, id int64) error {
	return deleteSale(ctx, ts.tx, id)
}

func deleteSale(ctx context.Context, q dbtx, id int64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM sales WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &cycle.NotFoundError{Entity: "sale", ID: id}
	}
	return nil
}

// ListSales returns sales newest first. influencerID 0 means all
// influencers.
func (s *Store) ListSales(ctx context.Context, influencerID int64) ([]cycle.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSales(ctx, s.db, influencerID)
}

func (ts *txStore) ListSales(ctx context.Context, influencerID int64) ([]cycle.SaleRecord, error) {
	return listSales(ctx, ts.tx, influencerID)
}

func listSales(ctx context.Context, q dbtx, influencerID int64) ([]cycle.SaleRecord, error) {
	query := "SELECT " + saleColumns + " FROM sales"
	var args []any
	if influencerID != 0 {
		query += " WHERE influencer_id = ?"
		args = append(args, influencerID)
	}
	query += " ORDER BY sale_date DESC, id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []cycle.SaleRecord
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func (s *Store) SaleOrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return saleOrderNumberExists(ctx, s.db, orderNumber)
}

func (ts *txStore) SaleOrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	return saleOrderNumberExists(ctx, ts.tx, orderNumber)
}

func saleOrderNumberExists(ctx context.Context, q dbtx, orderNumber string) (bool, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return false, nil
	}
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sales WHERE order_number = ?", orderNumber,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) SumSalePoints(ctx context.Context, influencerID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumSalePoints(ctx, s.db,
		"SELECT COALESCE(SUM(points), 0) FROM sales WHERE influencer_id = ?", influencerID)
}

func (ts *txStore) SumSalePoints(ctx context.Context, influencerID int64) (int64, error) {
	return sumSalePoints(ctx, ts.tx,
		"SELECT COALESCE(SUM(points), 0) FROM sales WHERE influencer_id = ?", influencerID)
}

func (s *Store) SumSalePointsInRange(ctx context.Context, influencerID int64, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumSalePoints(ctx, s.db,
		"SELECT COALESCE(SUM(points), 0) FROM sales WHERE influencer_id = ? AND sale_date >= ? AND sale_date <= ?",
		influencerID, formatDate(from), formatDate(to))
}

func (ts *txStore) SumSalePointsInRange(ctx context.Context, influencerID int64, from, to time.Time) (int64, error) {
	return sumSalePoints(ctx, ts.tx,
		"SELECT COALESCE(SUM(points), 0) FROM sales WHERE influencer_id = ? AND sale_date >= ? AND sale_date <= ?",
		influencerID, formatDate(from), formatDate(to))
}

func sumSalePoints(ctx context.Context, q dbtx, query string, args ...any) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

func marshalItems(items []cycle.SaleItem) (sql.NullString, error) {
	if len(items) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanSale(row rowScanner) (*cycle.SaleRecord, error) {
	var (
		sale      cycle.SaleRecord
		order     sql.NullString
		date      string
		value     string
		itemsJSON sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&sale.ID, &sale.InfluencerID, &order, &sale.Coupon, &date,
		&sale.Points, &value, &itemsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sale.OrderNumber = order.String
	sale.Date = parseDate(date)
	sale.Value, _ = decimal.NewFromString(value)
	if itemsJSON.Valid && itemsJSON.String != "" {
		json.Unmarshal([]byte(itemsJSON.String), &sale.Items)
	}
	sale.CreatedAt = parseTime(createdAt)
	sale.UpdatedAt = parseTime(updatedAt)
	return &sale, nil
}
