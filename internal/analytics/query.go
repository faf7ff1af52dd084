package analytics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Filter selects sales from an in-memory collection. Zero fields match
// everything. The date range is half-open: From <= soldAt < To.
type Filter struct {
	Platforms []domain.Platform
	Section   string
	MinQty    int
	MaxQty    int
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	From      *time.Time
	To        *time.Time
	Search    string
	EventID   string
}

// Match reports whether s passes every predicate.
func (f Filter) Match(s domain.Sale) bool {
	if len(f.Platforms) > 0 {
		p := canonicalPlatform(s.Platform)
		if !slices.ContainsFunc(f.Platforms, func(want domain.Platform) bool {
			return canonicalPlatform(want) == p
		}) {
			return false
		}
	}
	if f.Section != "" && !containsFold(s.Section, f.Section) {
		return false
	}
	if f.MinQty > 0 && s.Quantity < f.MinQty {
		return false
	}
	if f.MaxQty > 0 && s.Quantity > f.MaxQty {
		return false
	}
	if f.MinPrice != nil && s.TicketPrice.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && s.TicketPrice.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.From != nil && s.SoldAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.SoldAt.Before(*f.To) {
		return false
	}
	if f.EventID != "" && s.EventID != f.EventID {
		return false
	}
	if f.Search != "" && !containsFold(s.EventName, f.Search) && !containsFold(s.Section, f.Search) {
		return false
	}
	return true
}

// FilterSales returns the matching sales in their original order.
func FilterSales(sales []domain.Sale, f Filter) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

// SortField names a sortable sale attribute.
type SortField string

const (
	SortSoldAt   SortField = "sold_at"
	SortPrice    SortField = "price"
	SortQuantity SortField = "quantity"
	SortTotal    SortField = "total"
	SortPlatform SortField = "platform"
	SortEvent    SortField = "event"
	SortSection  SortField = "section"
)

var sortFields = map[string]SortField{
	"sold_at": SortSoldAt, "date": SortSoldAt,
	"price": SortPrice, "ticket_price": SortPrice,
	"quantity": SortQuantity, "qty": SortQuantity,
	"total": SortTotal, "revenue": SortTotal,
	"platform": SortPlatform,
	"event":    SortEvent, "event_name": SortEvent,
	"section": SortSection,
}

// SortKey is one level of a multi-key sort.
type SortKey struct {
	Field SortField `json:"field"`
	Desc  bool      `json:"desc"`
}

// ParseSort parses "field:dir,field:dir". The direction defaults to asc.
func ParseSort(spec string) ([]SortKey, error) {
	var keys []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		field, ok := sortFields[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("analytics: unknown sort field %q", name)
		}
		key := SortKey{Field: field}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			key.Desc = true
		default:
			return nil, fmt.Errorf("analytics: unknown sort direction %q", dir)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func compareField(a, b domain.Sale, f SortField) int {
	switch f {
	case SortSoldAt:
		return a.SoldAt.Compare(b.SoldAt)
	case SortPrice:
		return a.TicketPrice.Cmp(b.TicketPrice)
	case SortQuantity:
		return cmp.Compare(a.Quantity, b.Quantity)
	case SortTotal:
		return a.Revenue().Cmp(b.Revenue())
	case SortPlatform:
		return cmp.Compare(canonicalPlatform(a.Platform), canonicalPlatform(b.Platform))
	case SortEvent:
		return cmp.Compare(strings.ToLower(a.EventName), strings.ToLower(b.EventName))
	case SortSection:
		return cmp.Compare(strings.ToLower(a.Section), strings.ToLower(b.Section))
	}
	return 0
}

// SortSales returns a stably sorted copy. Sales equal on every key keep
// their input order, so pages stay put across re-renders.
func SortSales(sales []domain.Sale, keys []SortKey) []domain.Sale {
	out := slices.Clone(sales)
	if len(keys) == 0 {
		return out
	}
	slices.SortStableFunc(out, func(a, b domain.Sale) int {
		for _, k := range keys {
			c := compareField(a, b, k.Field)
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

// Page is one slice of a paginated collection.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate returns the 1-based page of items. A page past the end is empty;
// a page below 1 is treated as 1; size < 1 returns everything as one page.
func Paginate[T any](items []T, page, size int) Page[T] {
	total := len(items)
	if size < 1 {
		size = max(total, 1)
	}
	if page < 1 {
		page = 1
	}
	pages := (total + size - 1) / size
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return Page[T]{
		Items:      append([]T{}, items[start:end]...),
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: pages,
	}
}
