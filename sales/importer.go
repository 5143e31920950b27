/*
importer.go - Bulk sales input analysis

PURPOSE:
  Turns raw pasted text into validated sale candidates with a per-row
  error report. Two input formats are supported, chosen ONCE per batch
  from the first line's normalized header:

  1. Order export (e-commerce): columns for order id, paid-at
     timestamp, discount code, line-item quantity and line-item SKU.
     Physical rows sharing an order id collapse into one sale whose
     points are the sum of quantity x points-per-unit over the SKU
     rules. The earliest non-empty paid-at and coupon in the group win.

  2. Manual table: order / coupon / date / points columns, delimiter
     re-detected per line, optional header row recognized by an
     order-number alias.

VALIDATION CONTRACT:
  Every check on a row runs even after the first failure, so the
  report lists ALL of a row's problems. Duplicate order numbers inside
  the batch are flagged on every occurrence, and order numbers already
  persisted are flagged too. A row is importable only with zero errors
  and a resolved influencer.
*/
package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/points"
)

// Format identifies which parser handled a batch.
type Format string

const (
	FormatOrderExport Format = "order_export"
	FormatManual      Format = "manual"
)

// Row is the analysis result for one logical sale candidate.
type Row struct {
	Line           int              `json:"line"`
	OrderNumber    string           `json:"order_number"`
	Coupon         string           `json:"coupon"`
	RawDate        string           `json:"raw_date"`
	Date           *time.Time       `json:"date,omitempty"`
	Points         int64            `json:"points"`
	Value          decimal.Decimal  `json:"value"`
	Items          []cycle.SaleItem `json:"items,omitempty"`
	InfluencerID   int64            `json:"influencer_id,omitempty"`
	InfluencerName string           `json:"influencer_name,omitempty"`
	Errors         []string         `json:"errors"`
}

// Valid reports whether the row can be inserted.
func (r Row) Valid() bool {
	return len(r.Errors) == 0 && r.InfluencerID != 0
}

// Summary aggregates the importable rows of a batch.
type Summary struct {
	ValidCount  int             `json:"valid_count"`
	ErrorCount  int             `json:"error_count"`
	TotalCount  int             `json:"total_count"`
	TotalPoints int64           `json:"total_points"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// Analysis is the full preview result for a batch.
type Analysis struct {
	Format    Format  `json:"format"`
	Rows      []Row   `json:"rows"`
	Summary   Summary `json:"summary"`
	HasErrors bool    `json:"has_errors"`
}

// rawEntry is one logical sale before validation.
type rawEntry struct {
	line        int
	orderNumber string
	coupon      string
	rawDate     string
	rawPoints   string // manual format only
	items       []rawItem
}

type rawItem struct {
	sku         string
	rawQuantity string
}

// Importer analyzes raw batches against the current store state.
type Importer struct {
	Ledger *points.Ledger
}

func NewImporter(ledger *points.Ledger) *Importer {
	if ledger == nil {
		ledger = points.NewDefaultLedger()
	}
	return &Importer{Ledger: ledger}
}

// Analyze parses and validates a raw batch. It only reads from the
// store; nothing is written. The store may be a transactional store so
// a commit can re-validate against a consistent view.
func (im *Importer) Analyze(ctx context.Context, store cycle.Store, rawText string) (*Analysis, error) {
	text := strings.TrimSpace(stripBOM(rawText))
	if text == "" {
		return nil, &cycle.ValidationError{Field: "text", Message: "paste the sales data to import"}
	}

	format := FormatManual
	entries, isExport := parseOrderExport(text)
	if isExport {
		format = FormatOrderExport
	} else {
		entries = parseManual(text)
	}
	if len(entries) == 0 {
		return nil, &cycle.ValidationError{Field: "text", Message: "no sales found in the provided data"}
	}

	analysis := &Analysis{Format: format, Summary: Summary{TotalValue: decimal.Zero}}
	for _, e := range entries {
		analysis.Rows = append(analysis.Rows, im.validateEntry(ctx, store, e))
	}

	flagBatchDuplicates(analysis.Rows)

	for _, row := range analysis.Rows {
		analysis.Summary.TotalCount++
		if row.Valid() {
			analysis.Summary.ValidCount++
			analysis.Summary.TotalPoints += row.Points
		} else {
			analysis.Summary.ErrorCount++
			analysis.HasErrors = true
		}
	}
	analysis.Summary.TotalValue = im.Ledger.PointsToValue(analysis.Summary.TotalPoints)
	return analysis, nil
}

// validateEntry runs every check on one entry, collecting all errors
// instead of stopping at the first.
func (im *Importer) validateEntry(ctx context.Context, store cycle.Store, e rawEntry) Row {
	row := Row{
		Line:        e.line,
		OrderNumber: strings.TrimSpace(e.orderNumber),
		Coupon:      strings.TrimSpace(e.coupon),
		RawDate:     e.rawDate,
		Value:       decimal.Zero,
	}

	if row.OrderNumber == "" {
		row.Errors = append(row.Errors, "order number is required")
	} else {
		exists, err := store.SaleOrderNumberExists(ctx, row.OrderNumber)
		if err != nil {
			row.Errors = append(row.Errors, "could not check existing orders")
		} else if exists {
			row.Errors = append(row.Errors, "order number already registered")
		}
	}

	if date, err := ParseDate(e.rawDate); err != nil {
		row.Errors = append(row.Errors, err.Error())
	} else {
		row.Date = &date
	}

	if row.Coupon == "" {
		row.Errors = append(row.Errors, "coupon is required")
	} else {
		inf, err := store.GetInfluencerByCoupon(ctx, row.Coupon)
		switch {
		case cycle.IsNotFound(err):
			row.Errors = append(row.Errors, fmt.Sprintf("coupon %q is not registered", row.Coupon))
		case err != nil:
			row.Errors = append(row.Errors, "could not resolve coupon")
		default:
			row.InfluencerID = inf.ID
			row.InfluencerName = inf.Name
		}
	}

	if len(e.items) > 0 {
		row.Points, row.Items = im.computeItemPoints(ctx, store, e.items, &row.Errors)
	} else {
		row.Points = parsePointsField(e.rawPoints, &row.Errors)
	}
	row.Value = im.Ledger.PointsToValue(row.Points)

	return row
}

// computeItemPoints resolves every SKU line independently: one unknown
// SKU does not hide a bad quantity on the next line.
func (im *Importer) computeItemPoints(ctx context.Context, store cycle.Store, items []rawItem, errs *[]string) (int64, []cycle.SaleItem) {
	var (
		total    decimal.Decimal
		resolved []cycle.SaleItem
	)
	for _, item := range items {
		sku := strings.TrimSpace(item.sku)
		if sku == "" {
			*errs = append(*errs, "line item without SKU")
			continue
		}

		qty, err := parseDecimal(item.rawQuantity)
		if err != nil || !qty.IsPositive() {
			*errs = append(*errs, fmt.Sprintf("invalid quantity for SKU %q", sku))
		}

		rule, err := store.GetSkuRule(ctx, sku)
		switch {
		case cycle.IsNotFound(err):
			*errs = append(*errs, fmt.Sprintf("no point rule for SKU %q", sku))
			continue
		case err != nil:
			*errs = append(*errs, fmt.Sprintf("could not resolve SKU %q", sku))
			continue
		case !rule.Active:
			*errs = append(*errs, fmt.Sprintf("point rule for SKU %q is inactive", sku))
			continue
		case rule.PointsPerUnit.IsNegative():
			*errs = append(*errs, fmt.Sprintf("point rule for SKU %q has a negative value", sku))
			continue
		}
		if !qty.IsPositive() {
			continue
		}

		linePoints := qty.Mul(rule.PointsPerUnit)
		total = total.Add(linePoints)
		resolved = append(resolved, cycle.SaleItem{
			SKU:           rule.SKU,
			Quantity:      qty,
			PointsPerUnit: rule.PointsPerUnit,
			Points:        points.RoundPoints(linePoints),
		})
	}
	return points.RoundPoints(total), resolved
}

func parsePointsField(raw string, errs *[]string) int64 {
	if strings.TrimSpace(raw) == "" {
		*errs = append(*errs, "points value is required")
		return 0
	}
	d, err := parseDecimal(raw)
	if err != nil {
		*errs = append(*errs, "invalid points value")
		return 0
	}
	if d.IsNegative() {
		*errs = append(*errs, "points must not be negative")
		return 0
	}
	return points.RoundPoints(d)
}

// flagBatchDuplicates marks EVERY occurrence of a repeated order
// number, not just the second one, so the user sees the whole cluster.
func flagBatchDuplicates(rows []Row) {
	counts := make(map[string]int)
	for i := range rows {
		if rows[i].OrderNumber != "" {
			counts[rows[i].OrderNumber]++
		}
	}
	for i := range rows {
		if rows[i].OrderNumber != "" && counts[rows[i].OrderNumber] > 1 {
			rows[i].Errors = append(rows[i].Errors, "order number repeated in imported data")
		}
	}
}

// =============================================================================
// FORMAT PARSERS
// =============================================================================

// exportRequiredHeaders are the normalized header tokens that identify
// an order export. All must be present on the first line.
var exportRequiredHeaders = []string{"name", "paidat", "discountcode", "lineitemquantity", "lineitemsku"}

// parseOrderExport recognizes and parses the structured export format.
// Returns (nil, false) when the header does not match, so the caller
// falls back to the manual parser.
func parseOrderExport(text string) ([]rawEntry, bool) {
	headerLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		headerLine = text[:i]
	}
	normalizedLine := normalizeHeader(headerLine)
	for _, h := range exportRequiredHeaders {
		if !strings.Contains(normalizedLine, h) {
			return nil, false
		}
	}

	delimiter := detectDelimiter(headerLine)
	if delimiter == 0 {
		delimiter = ','
	}
	rows := parseRows(scrubControl(text), delimiter)
	if len(rows) < 2 {
		return nil, true
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = normalizeHeader(cell)
	}
	resolve := func(aliases ...string) int {
		for _, alias := range aliases {
			for i, cell := range header {
				if cell == alias {
					return i
				}
			}
		}
		return -1
	}

	orderIdx := resolve("name", "order", "ordernumber", "pedido")
	paidAtIdx := resolve("paidat", "datapagamento")
	couponIdx := resolve("discountcode", "cupom", "coupon")
	qtyIdx := resolve("lineitemquantity", "quantity", "quantidade", "qtd")
	skuIdx := resolve("lineitemsku", "sku")
	if orderIdx < 0 || qtyIdx < 0 || skuIdx < 0 {
		return nil, true
	}

	cellAt := func(cells []string, idx int) string {
		if idx < 0 || idx >= len(cells) {
			return ""
		}
		return cells[idx]
	}

	// Group physical rows into logical orders. Order of first
	// appearance is preserved for the report.
	byOrder := make(map[string]*rawEntry)
	var entries []*rawEntry
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		cells := rows[rowIdx]
		if !hasData(cells) {
			continue
		}
		line := rowIdx + 1
		order := cellAt(cells, orderIdx)
		paidAt := cellAt(cells, paidAtIdx)
		coupon := cellAt(cells, couponIdx)
		item := rawItem{sku: cellAt(cells, skuIdx), rawQuantity: cellAt(cells, qtyIdx)}

		key := strings.TrimSpace(order)
		entry, seen := byOrder[key]
		if !seen || key == "" {
			entry = &rawEntry{line: line, orderNumber: order, coupon: coupon, rawDate: paidAt}
			entries = append(entries, entry)
			if key != "" {
				byOrder[key] = entry
			}
		} else {
			// Earliest non-empty paid-at and coupon win for the group.
			if entry.rawDate == "" {
				entry.rawDate = paidAt
			}
			if entry.coupon == "" {
				entry.coupon = coupon
			}
		}
		if item.sku != "" || item.rawQuantity != "" {
			entry.items = append(entry.items, item)
		}
	}

	out := make([]rawEntry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	return out, true
}

// manualColumnAliases map normalized header tokens to the four manual
// columns.
var manualColumnAliases = map[string][]string{
	"order":  {"pedido", "numero", "ordem", "ordernumber", "numeropedido", "order"},
	"coupon": {"cupom", "coupon"},
	"date":   {"data", "date"},
	"points": {"pontos", "points", "pts"},
}

// parseManual reads the simple order/coupon/date/points table. The
// delimiter is re-detected on every line; a header row is only
// recognized when it carries an order-number alias.
func parseManual(text string) []rawEntry {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	indexes := map[string]int{"order": 0, "coupon": 1, "date": 2, "points": 3}
	var (
		delimiter   rune
		dataStarted bool
		entries     []rawEntry
	)

	for lineNumber, originalLine := range lines {
		line := strings.TrimSpace(scrubControl(stripBOM(originalLine)))
		if line == "" {
			continue
		}

		if !dataStarted {
			if d := detectDelimiter(line); d != 0 {
				delimiter = d
			}
			tokens := splitLine(line, delimiter)
			if mapHeaderTokens(tokens, indexes) {
				dataStarted = true
				continue
			}
			dataStarted = true
		}

		if d := detectDelimiter(line); d != 0 {
			delimiter = d
		}
		cells := splitLine(line, delimiter)
		cellAt := func(key string) string {
			idx := indexes[key]
			if idx < 0 || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		entries = append(entries, rawEntry{
			line:        lineNumber + 1,
			orderNumber: cellAt("order"),
			coupon:      cellAt("coupon"),
			rawDate:     cellAt("date"),
			rawPoints:   cellAt("points"),
		})
	}
	return entries
}

// mapHeaderTokens rewires the column indexes when the line looks like
// a header. The signal is an order-number alias in any cell.
func mapHeaderTokens(tokens []string, indexes map[string]int) bool {
	normalized := make([]string, len(tokens))
	for i, t := range tokens {
		normalized[i] = normalizeHeader(t)
	}

	isHeader := false
	for _, t := range normalized {
		if strings.Contains(t, "pedido") || strings.Contains(t, "ordernumber") || t == "order" {
			isHeader = true
			break
		}
	}
	if !isHeader {
		return false
	}

	for i, token := range normalized {
		for key, aliases := range manualColumnAliases {
			for _, alias := range aliases {
				if token == alias {
					indexes[key] = i
				}
			}
		}
	}
	return true
}

func hasData(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return false
}
