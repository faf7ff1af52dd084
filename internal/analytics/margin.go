package analytics

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// PlatformCost is the assumed acquisition cost factor and marketplace fee
// rate for a platform. Both are fractions of the ticket price.
type PlatformCost struct {
	CostFactor decimal.Decimal `json:"cost_factor"`
	FeeRate    decimal.Decimal `json:"fee_rate"`
}

// CostModel holds the per-platform assumptions behind margin estimates.
// These are configured assumptions, not measured costs.
type CostModel struct {
	Default   PlatformCost                     `json:"default"`
	Platforms map[domain.Platform]PlatformCost `json:"platforms"`
}

// DefaultCostModel returns the built-in assumptions.
func DefaultCostModel() CostModel {
	pc := func(cost, fee string) PlatformCost {
		return PlatformCost{
			CostFactor: decimal.RequireFromString(cost),
			FeeRate:    decimal.RequireFromString(fee),
		}
	}
	return CostModel{
		Default: pc("0.80", "0.10"),
		Platforms: map[domain.Platform]PlatformCost{
			domain.PlatformLiveFootballTickets: pc("0.80", "0.10"),
			domain.PlatformTixstock:            pc("0.80", "0.08"),
			domain.PlatformFanpass:             pc("0.82", "0.12"),
			domain.PlatformLiveTicketGroup:     pc("0.78", "0.10"),
		},
	}
}

// For returns the assumptions for p, falling back to the default.
func (m CostModel) For(p domain.Platform) PlatformCost {
	if c, ok := m.Platforms[canonicalPlatform(p)]; ok {
		return c
	}
	return m.Default
}

// Margin is an estimated profit breakdown.
type Margin struct {
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Fees      decimal.Decimal `json:"fees"`
	Profit    decimal.Decimal `json:"profit"`
	MarginPct float64         `json:"margin_pct"`
}

func (m *Margin) add(s domain.Sale, c PlatformCost) {
	rev := s.Revenue()
	m.Revenue = m.Revenue.Add(rev)
	m.Cost = m.Cost.Add(rev.Mul(c.CostFactor))
	m.Fees = m.Fees.Add(rev.Mul(c.FeeRate))
}

func (m *Margin) finish() {
	m.Profit = m.Revenue.Sub(m.Cost).Sub(m.Fees)
	m.MarginPct = percentOf(m.Profit, m.Revenue)
}

// EstimateMargin applies the cost model to every sale.
func EstimateMargin(sales []domain.Sale, model CostModel) Margin {
	var m Margin
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		m.add(s, model.For(s.Platform))
	}
	m.finish()
	return m
}

// PlatformMargin is the margin estimate of one platform.
type PlatformMargin struct {
	Platform domain.Platform `json:"platform"`
	Label    string          `json:"label"`
	Margin
}

// MarginByPlatform estimates margin per platform, most profitable first.
func MarginByPlatform(sales []domain.Sale, model CostModel) []PlatformMargin {
	acc := make(map[domain.Platform]*Margin)
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		p := canonicalPlatform(s.Platform)
		m, ok := acc[p]
		if !ok {
			m = &Margin{}
			acc[p] = m
		}
		m.add(s, model.For(p))
	}
	out := make([]PlatformMargin, 0, len(acc))
	for p, m := range acc {
		m.finish()
		out = append(out, PlatformMargin{Platform: p, Label: p.Label(), Margin: *m})
	}
	slices.SortFunc(out, func(a, b PlatformMargin) int {
		if c := b.Profit.Cmp(a.Profit); c != 0 {
			return c
		}
		return cmp.Compare(a.Platform, b.Platform)
	})
	return out
}

// EventMargin is the margin estimate of one event.
type EventMargin struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Margin
}

// MarginByEvent estimates margin per event, most profitable first.
// Unattached sales group under UnattachedKey.
func MarginByEvent(sales []domain.Sale, model CostModel) []EventMargin {
	acc := make(map[string]*EventMargin)
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		key := s.EventID
		if key == "" {
			key = UnattachedKey
		}
		m, ok := acc[key]
		if !ok {
			m = &EventMargin{EventID: key, EventName: s.EventName}
			acc[key] = m
		}
		m.add(s, model.For(s.Platform))
	}
	out := make([]EventMargin, 0, len(acc))
	for _, m := range acc {
		m.finish()
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b EventMargin) int {
		if c := b.Profit.Cmp(a.Profit); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	return out
}
