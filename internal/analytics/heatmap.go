package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// HeatCell aggregates sales for one weekday and hour of day.
type HeatCell struct {
	Weekday    time.Weekday    `json:"weekday"`
	Hour       int             `json:"hour"`
	Revenue    decimal.Decimal `json:"revenue"`
	Units      int             `json:"units"`
	OrderCount int             `json:"order_count"`
}

// Heatmap returns 7×24 cells, Sunday 00:00 first, hours varying fastest.
// Times are bucketed in loc (UTC when nil).
func Heatmap(sales []domain.Sale, loc *time.Location) []HeatCell {
	if loc == nil {
		loc = time.UTC
	}
	cells := make([]HeatCell, 7*24)
	for i := range cells {
		cells[i].Weekday = time.Weekday(i / 24)
		cells[i].Hour = i % 24
	}
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		t := s.SoldAt.In(loc)
		c := &cells[int(t.Weekday())*24+t.Hour()]
		c.Revenue = c.Revenue.Add(s.Revenue())
		c.Units += s.Quantity
		c.OrderCount++
	}
	return cells
}

// Peak returns the busiest cell by revenue, or false when every cell is
// empty.
func Peak(cells []HeatCell) (HeatCell, bool) {
	var best HeatCell
	found := false
	for _, c := range cells {
		if c.OrderCount == 0 {
			continue
		}
		if !found || c.Revenue.GreaterThan(best.Revenue) {
			best = c
			found = true
		}
	}
	return best, found
}
