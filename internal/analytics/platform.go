package analytics

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// PlatformSplit aggregates the sales of one marketplace.
type PlatformSplit struct {
	Platform   domain.Platform `json:"platform"`
	Label      string          `json:"label"`
	Revenue    decimal.Decimal `json:"revenue"`
	Units      int             `json:"units"`
	OrderCount int             `json:"order_count"`
	Share      float64         `json:"share"`
}

// SplitByPlatform returns one entry per platform present in sales, largest
// revenue first. Share is the percentage of total revenue.
func SplitByPlatform(sales []domain.Sale) []PlatformSplit {
	byPlatform := make(map[domain.Platform]*PlatformSplit)
	total := decimal.Zero
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		p := canonicalPlatform(s.Platform)
		ps, ok := byPlatform[p]
		if !ok {
			ps = &PlatformSplit{Platform: p, Label: p.Label()}
			byPlatform[p] = ps
		}
		rev := s.Revenue()
		ps.Revenue = ps.Revenue.Add(rev)
		ps.Units += s.Quantity
		ps.OrderCount++
		total = total.Add(rev)
	}

	out := make([]PlatformSplit, 0, len(byPlatform))
	for _, ps := range byPlatform {
		ps.Share = percentOf(ps.Revenue, total)
		out = append(out, *ps)
	}
	slices.SortFunc(out, func(a, b PlatformSplit) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Platform, b.Platform)
	})
	return out
}

func canonicalPlatform(p domain.Platform) domain.Platform {
	if c, ok := domain.ParsePlatform(string(p)); ok {
		return c
	}
	return "unknown"
}

// percentOf returns part/whole × 100, or zero for a zero whole.
func percentOf(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
