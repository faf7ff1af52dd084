package csvio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// ImportHeader lists the required columns of a bulk import sheet.
var ImportHeader = []string{"Event Name", "Category", "Section", "Quantity", "Price", "Platform", "Date"}

var importDateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ImportRow is one well-formed line of an import sheet.
type ImportRow struct {
	Line      int
	EventName string
	Category  string
	Section   string
	Quantity  int
	Price     decimal.Decimal
	Platform  domain.Platform
	Date      time.Time
}

// RowError explains why a line was skipped.
type RowError struct {
	Line   int    `json:"line"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// ImportSheet is the parsed content of an import sheet. Total counts every
// non-blank data line, so Total == len(Rows) + len(Issues).
type ImportSheet struct {
	Rows   []ImportRow
	Issues []RowError
	Total  int
}

// ParseImport reads an import sheet. Malformed lines are reported in Issues
// and never abort the parse; only an unreadable file or header is an error.
func ParseImport(r io.Reader, loc *time.Location) (ImportSheet, error) {
	if loc == nil {
		loc = time.UTC
	}
	var sheet ImportSheet
	cr, err := newReader(r)
	if err != nil {
		return sheet, err
	}
	cols, err := readHeader(cr, ImportHeader)
	if err != nil {
		return sheet, err
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line := lineOf(cr, record, err)
		if err != nil {
			sheet.Total++
			sheet.Issues = append(sheet.Issues, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if blank(record) {
			continue
		}
		sheet.Total++
		row, issue := parseImportRow(line, record, cols, loc)
		if issue != nil {
			sheet.Issues = append(sheet.Issues, *issue)
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

func parseImportRow(line int, record []string, cols map[string]int, loc *time.Location) (ImportRow, *RowError) {
	bad := func(name, value, reason string) (ImportRow, *RowError) {
		return ImportRow{}, &RowError{Line: line, Field: name, Value: value, Reason: reason}
	}

	row := ImportRow{
		Line:      line,
		EventName: field(record, cols, "Event Name"),
		Category:  field(record, cols, "Category"),
		Section:   field(record, cols, "Section"),
	}
	if row.EventName == "" {
		return bad("Event Name", "", "required")
	}

	qty := field(record, cols, "Quantity")
	n, err := strconv.Atoi(qty)
	if err != nil {
		return bad("Quantity", qty, "not a whole number")
	}
	if n < 1 {
		return bad("Quantity", qty, "must be at least 1")
	}
	row.Quantity = n

	price := strings.TrimLeft(strings.ReplaceAll(field(record, cols, "Price"), ",", ""), "£$€")
	row.Price, err = decimal.NewFromString(price)
	if err != nil {
		return bad("Price", price, "not a number")
	}
	if row.Price.IsNegative() {
		return bad("Price", price, "must not be negative")
	}

	platform := field(record, cols, "Platform")
	p, ok := domain.ParsePlatform(platform)
	if !ok {
		return bad("Platform", platform, "required")
	}
	row.Platform = p

	date := field(record, cols, "Date")
	row.Date, ok = parseDate(date, loc)
	if !ok {
		return bad("Date", date, "unrecognised date")
	}
	return row, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
