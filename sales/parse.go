/*
parse.go - Low-level parsing for pasted sales data

PURPOSE:
  The bulk import accepts text pasted straight out of spreadsheets or
  e-commerce exports: BOM-prefixed, mixed delimiters, quoted cells with
  embedded newlines, Brazilian decimal commas, DD/MM/YYYY dates. These
  helpers normalize all of that before the importer applies business
  rules.

WHY NOT encoding/csv:
  The input is not a CSV file. The delimiter is re-detected per line
  (users paste tab-separated rows under a comma header), rows are
  ragged, and each cell must be BOM/control scrubbed individually so
  per-row error reports point at the right value. encoding/csv commits
  to one delimiter per reader and fails the whole stream on a bad row.
*/
package sales

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// stripBOM removes a UTF-8 byte order mark prefix.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

// scrubControl drops ASCII control characters that spreadsheet copies
// smuggle into cells. Tabs survive: they may be the delimiter.
func scrubControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// normalizeHeader folds a header cell to bare lowercase alphanumerics:
// "Lineitem SKU", "lineitem_sku" and "Lineitem sku " all become
// "lineitemsku". Diacritics are stripped so "Número" matches "numero".
func normalizeHeader(s string) string {
	s = strings.ToLower(stripBOM(s))
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// detectDelimiter picks the delimiter for a line by presence, in
// priority order: tab, semicolon, comma. Returns 0 when none is found.
func detectDelimiter(line string) rune {
	if strings.ContainsRune(line, '\t') {
		return '\t'
	}
	if strings.ContainsRune(line, ';') {
		return ';'
	}
	if strings.ContainsRune(line, ',') {
		return ','
	}
	return 0
}

// splitLine splits one line on the delimiter, honoring double-quoted
// cells with "" escapes. Cells come back BOM-stripped and trimmed.
func splitLine(line string, delimiter rune) []string {
	if delimiter == 0 {
		return trimCells(strings.Fields(line))
	}

	var (
		cells   []string
		current strings.Builder
		quoted  bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			if quoted && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				quoted = !quoted
			}
		case !quoted && r == delimiter:
			cells = append(cells, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	cells = append(cells, current.String())
	return trimCells(cells)
}

// parseRows splits a whole body into rows of cells, honoring quoted
// cells that span line breaks (multi-line product titles in exports).
func parseRows(text string, delimiter rune) [][]string {
	var (
		rows    [][]string
		row     []string
		current strings.Builder
		quoted  bool
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			if quoted && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				quoted = !quoted
			}
		case !quoted && r == delimiter:
			row = append(row, current.String())
			current.Reset()
		case !quoted && (r == '\n' || r == '\r'):
			if r == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			row = append(row, current.String())
			rows = append(rows, trimCells(row))
			row = nil
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if len(row) > 0 || current.Len() > 0 {
		row = append(row, current.String())
		rows = append(rows, trimCells(row))
	}
	return rows
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(stripBOM(c))
	}
	return out
}

// ParseDate accepts DD/MM/YYYY (or DD-MM-YYYY) with an optional HH:MM
// suffix, two-digit years as 20xx, and ISO-prefixed timestamps from
// structured exports. The calendar is fully reconstructed: 31/04/2024
// is rejected, not silently rolled over. Exported so manual sale entry
// applies the exact same rules as the bulk path.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(stripBOM(value))
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("sale date is required")
	}

	// ISO prefix: "2024-03-05 14:22:00 -0300" and friends.
	if t, ok := parseISOPrefix(trimmed); ok {
		return t, nil
	}

	datePart := trimmed
	if i := strings.IndexByte(trimmed, ' '); i >= 0 {
		datePart = trimmed[:i]
		rest := strings.TrimSpace(trimmed[i+1:])
		if rest != "" && !validClock(rest) {
			return time.Time{}, fmt.Errorf("invalid date %q, use DD/MM/YYYY", value)
		}
	}

	sep := "/"
	if !strings.Contains(datePart, "/") && strings.Contains(datePart, "-") {
		sep = "-"
	}
	parts := strings.Split(datePart, sep)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid date %q, use DD/MM/YYYY", value)
	}

	day, okD := parseIntField(parts[0], 1, 31)
	month, okM := parseIntField(parts[1], 1, 12)
	year, okY := parseIntField(parts[2], 0, 9999)
	if okY && year < 100 {
		year += 2000
	}
	if !okD || !okM || !okY || year < 1900 {
		return time.Time{}, fmt.Errorf("invalid date %q, use DD/MM/YYYY", value)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %q, use DD/MM/YYYY", value)
	}
	return t, nil
}

func parseISOPrefix(s string) (time.Time, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func validClock(s string) bool {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return false
	}
	_, okH := parseIntField(parts[0], 0, 23)
	_, okM := parseIntField(parts[1], 0, 59)
	return okH && okM
}

func parseIntField(s string, min, max int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < min || n > max {
		return 0, false
	}
	return n, true
}

// parseDecimal reads a number in either Brazilian or plain notation:
// "1.234,56" and "1234.56" both work. Empty input is zero.
func parseDecimal(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(stripBOM(value))
	if trimmed == "" {
		return decimal.Zero, nil
	}
	normalized := strings.ReplaceAll(trimmed, " ", "")
	if strings.Contains(normalized, ".") && strings.Contains(normalized, ",") {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.Replace(normalized, ",", ".", 1)
	} else if strings.Contains(normalized, ",") {
		normalized = strings.Replace(normalized, ",", ".", 1)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", value)
	}
	return d, nil
}

// BoolValue is the result of parsing a loosely-typed boolean flag.
// Unrecognized input is reported as such, never silently defaulted.
type BoolValue int

const (
	BoolUnknown BoolValue = iota
	BoolFalse
	BoolTrue
)

var (
	truthyValues = map[string]bool{
		"1": true, "true": true, "on": true, "yes": true, "y": true,
		"sim": true, "s": true,
	}
	falsyValues = map[string]bool{
		"0": true, "false": true, "off": true, "no": true, "n": true,
		"nao": true, "não": true,
	}
)

// ParseBool maps string synonyms for true/false to a tri-state value.
func ParseBool(value string) BoolValue {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return BoolUnknown
	}
	folded := normalizeHeader(normalized)
	if truthyValues[normalized] || truthyValues[folded] {
		return BoolTrue
	}
	if falsyValues[normalized] || falsyValues[folded] {
		return BoolFalse
	}
	return BoolUnknown
}
