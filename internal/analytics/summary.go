package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Summary is the headline block of a dashboard view.
type Summary struct {
	Revenue       decimal.Decimal `json:"revenue"`
	Units         int             `json:"units"`
	OrderCount    int             `json:"order_count"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	EventCount    int             `json:"event_count"`
	PlatformCount int             `json:"platform_count"`
	Unattached    int             `json:"unattached"`
	FirstSoldAt   *time.Time      `json:"first_sold_at,omitempty"`
	LastSoldAt    *time.Time      `json:"last_sold_at,omitempty"`

	WindowDays       int         `json:"window_days"`
	Window           WindowStats `json:"window"`
	RevenueChangePct float64     `json:"revenue_change_pct"`
	UnitsChangePct   float64     `json:"units_change_pct"`
	Margin           Margin      `json:"margin"`
}

// Summarize computes totals plus the week-over-week comparison as of now.
func Summarize(sales []domain.Sale, now time.Time, rules RiskRules, model CostModel) Summary {
	sum := Summary{WindowDays: rules.window()}
	events := make(map[string]struct{})
	platforms := make(map[domain.Platform]struct{})

	var first, last time.Time
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		sum.Revenue = sum.Revenue.Add(s.Revenue())
		sum.Units += s.Quantity
		sum.OrderCount++
		if s.EventID == "" {
			sum.Unattached++
		} else {
			events[s.EventID] = struct{}{}
		}
		platforms[canonicalPlatform(s.Platform)] = struct{}{}
		if first.IsZero() || s.SoldAt.Before(first) {
			first = s.SoldAt
		}
		if s.SoldAt.After(last) {
			last = s.SoldAt
		}
	}
	sum.AvgPrice = AvgPrice(sum.Revenue, sum.Units)
	sum.EventCount = len(events)
	sum.PlatformCount = len(platforms)
	if sum.OrderCount > 0 {
		sum.FirstSoldAt = &first
		sum.LastSoldAt = &last
	}

	sum.Window = CompareWindows(sales, now, rules)
	sum.RevenueChangePct = round2(PercentChange(
		sum.Window.RevenueRecent.InexactFloat64(),
		sum.Window.RevenuePrior.InexactFloat64(),
	))
	sum.UnitsChangePct = round2(sum.Window.UnitsChange())
	sum.Margin = EstimateMargin(sales, model)
	return sum
}
