package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// ExportHeader is the column order of a sales export.
var ExportHeader = []string{"#", "Platform", "Event", "Section", "Qty", "Price", "Total", "Date"}

// WriteSales writes sales in the given order. Dates are rendered in loc
// (UTC when nil).
func WriteSales(w io.Writer, sales []domain.Sale, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("csvio: write header: %w", err)
	}
	for i, s := range sales {
		record := []string{
			strconv.Itoa(i + 1),
			s.Platform.ShortCode(),
			s.EventName,
			s.Section,
			strconv.Itoa(s.Quantity),
			money(s.TicketPrice),
			money(s.Revenue()),
			s.SoldAt.In(loc).Format(DateLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csvio: write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvio: flush: %w", err)
	}
	return nil
}

// money renders two decimals unless that would lose precision.
func money(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	if decimal.RequireFromString(fixed).Equal(d) {
		return fixed
	}
	return d.String()
}

// ExportRow is one parsed line of a sales export.
type ExportRow struct {
	Index    int
	Platform domain.Platform
	Event    string
	Section  string
	Quantity int
	Price    decimal.Decimal
	Total    decimal.Decimal
	Date     time.Time
}

// ParseExport reads a file produced by WriteSales.
func ParseExport(r io.Reader, loc *time.Location) ([]ExportRow, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr, err := newReader(r)
	if err != nil {
		return nil, err
	}
	cols, err := readHeader(cr, ExportHeader)
	if err != nil {
		return nil, err
	}

	var rows []ExportRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line := lineOf(cr, record, err)
		if err != nil {
			return nil, fmt.Errorf("csvio: line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		row := ExportRow{
			Event:   field(record, cols, "Event"),
			Section: field(record, cols, "Section"),
		}
		if row.Index, err = strconv.Atoi(field(record, cols, "#")); err != nil {
			return nil, fmt.Errorf("csvio: line %d: index: %w", line, err)
		}
		row.Platform, _ = domain.ParsePlatform(field(record, cols, "Platform"))
		if row.Quantity, err = strconv.Atoi(field(record, cols, "Qty")); err != nil {
			return nil, fmt.Errorf("csvio: line %d: qty: %w", line, err)
		}
		if row.Price, err = decimal.NewFromString(field(record, cols, "Price")); err != nil {
			return nil, fmt.Errorf("csvio: line %d: price: %w", line, err)
		}
		if row.Total, err = decimal.NewFromString(field(record, cols, "Total")); err != nil {
			return nil, fmt.Errorf("csvio: line %d: total: %w", line, err)
		}
		if row.Date, err = time.ParseInLocation(DateLayout, field(record, cols, "Date"), loc); err != nil {
			return nil, fmt.Errorf("csvio: line %d: date: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
