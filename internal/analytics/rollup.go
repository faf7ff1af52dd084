package analytics

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// UnattachedKey groups sales that reference no event.
const UnattachedKey = "unattached"

// EventRollup aggregates the sales of one event.
type EventRollup struct {
	EventID    string          `json:"event_id"`
	EventName  string          `json:"event_name"`
	Revenue    decimal.Decimal `json:"revenue"`
	Units      int             `json:"units"`
	OrderCount int             `json:"order_count"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
}

// RollupByEvent groups sales by event id. Sales without an event are kept
// under UnattachedKey.
func RollupByEvent(sales []domain.Sale) map[string]EventRollup {
	out := make(map[string]EventRollup)
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		key := s.EventID
		if key == "" {
			key = UnattachedKey
		}
		r, ok := out[key]
		if !ok {
			r = EventRollup{EventID: key, EventName: s.EventName}
			if key == UnattachedKey {
				r.EventName = "Unattached"
			}
		}
		r.Revenue = r.Revenue.Add(s.Revenue())
		r.Units += s.Quantity
		r.OrderCount++
		out[key] = r
	}
	for k, r := range out {
		r.AvgPrice = AvgPrice(r.Revenue, r.Units)
		out[k] = r
	}
	return out
}

// AvgPrice is revenue / units rounded to cents, or zero when units is zero.
func AvgPrice(revenue decimal.Decimal, units int) decimal.Decimal {
	return exactAvg(revenue, units).Round(2)
}

func exactAvg(revenue decimal.Decimal, units int) decimal.Decimal {
	if units <= 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(int64(units)))
}

// RankBy selects the leaderboard ordering.
type RankBy string

const (
	RankByRevenue RankBy = "revenue"
	RankByUnits   RankBy = "units"
	RankByOrders  RankBy = "orders"
)

// RankEvents orders rollups into a leaderboard. Ties fall back to revenue,
// then event id, so the order is deterministic. limit <= 0 keeps all.
func RankEvents(rollups map[string]EventRollup, by RankBy, limit int) []EventRollup {
	out := make([]EventRollup, 0, len(rollups))
	for _, r := range rollups {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b EventRollup) int {
		var c int
		switch by {
		case RankByUnits:
			c = cmp.Compare(b.Units, a.Units)
		case RankByOrders:
			c = cmp.Compare(b.OrderCount, a.OrderCount)
		}
		if c != 0 {
			return c
		}
		if c = b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
