package analytics

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// PercentChange returns (curr-prev)/prev × 100. A zero baseline reports 100
// when curr is positive and 0 otherwise, so the result is always finite.
func PercentChange(curr, prev float64) float64 {
	if prev == 0 {
		if curr > 0 {
			return 100
		}
		return 0
	}
	v := (curr - prev) * 100 / prev
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RiskLevel classifies an accumulated risk score.
type RiskLevel string

const (
	RiskHealthy RiskLevel = "healthy"
	RiskWatch   RiskLevel = "watch"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
)

// Classify maps a score onto a level: >=4 high, 2-3 medium, 1 watch,
// anything lower healthy.
func Classify(score int) RiskLevel {
	switch {
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	case score == 1:
		return RiskWatch
	default:
		return RiskHealthy
	}
}

// RiskRules parameterises the trailing windows and thresholds.
type RiskRules struct {
	WindowDays      int
	ImminentDays    int
	BigDropPct      float64 // units drop strictly above this scores BigDropPoints
	SmallDropPct    float64 // units drop in [SmallDropPct, BigDropPct] scores SmallDropPoints
	PriceDropPct    float64
	BigDropPoints   int
	SmallDropPoints int
	PriceDropPoints int
	StalledPoints   int
	ImminentPoints  int
	ImminentMinSold int // imminent events selling fewer units than this score
}

// DefaultRiskRules returns the standard week-over-week rule set.
func DefaultRiskRules() RiskRules {
	return RiskRules{
		WindowDays:      7,
		ImminentDays:    14,
		BigDropPct:      30,
		SmallDropPct:    15,
		PriceDropPct:    10,
		BigDropPoints:   3,
		SmallDropPoints: 1,
		PriceDropPoints: 2,
		StalledPoints:   2,
		ImminentPoints:  3,
		ImminentMinSold: 2,
	}
}

// WindowStats compares a trailing window with the one before it.
type WindowStats struct {
	UnitsRecent    int             `json:"units_recent"`
	UnitsPrior     int             `json:"units_prior"`
	RevenueRecent  decimal.Decimal `json:"revenue_recent"`
	RevenuePrior   decimal.Decimal `json:"revenue_prior"`
	AvgPriceRecent decimal.Decimal `json:"avg_price_recent"`
	AvgPricePrior  decimal.Decimal `json:"avg_price_prior"`
	RevenueTotal   decimal.Decimal `json:"revenue_total"`
	UnitsTotal     int             `json:"units_total"`
}

// UnitsChange is the percent change of units between the windows.
func (w WindowStats) UnitsChange() float64 {
	return PercentChange(float64(w.UnitsRecent), float64(w.UnitsPrior))
}

// PriceChange is the percent change of the average price between windows.
// It uses the unrounded averages; AvgPriceRecent and AvgPricePrior are
// rounded for display.
func (w WindowStats) PriceChange() float64 {
	return PercentChange(
		exactAvg(w.RevenueRecent, w.UnitsRecent).InexactFloat64(),
		exactAvg(w.RevenuePrior, w.UnitsPrior).InexactFloat64(),
	)
}

// EventRisk is the scored risk of one event.
type EventRisk struct {
	EventID   string     `json:"event_id"`
	EventName string     `json:"event_name"`
	EventDate *time.Time `json:"event_date,omitempty"`
	WindowStats
	UnitsChangePct float64   `json:"units_change_pct"`
	PriceChangePct float64   `json:"price_change_pct"`
	Score          int       `json:"score"`
	Level          RiskLevel `json:"level"`
	Reasons        []string  `json:"reasons"`
}

// Windows returns the bounds of the recent [now-w, now) and prior
// [now-2w, now-w) windows.
func (r RiskRules) Windows(now time.Time) (recentStart, priorStart time.Time) {
	w := time.Duration(r.window()) * 24 * time.Hour
	return now.Add(-w), now.Add(-2 * w)
}

func (r RiskRules) window() int {
	if r.WindowDays <= 0 {
		return 7
	}
	return r.WindowDays
}

// CompareWindows computes window statistics over sales for the given now.
func CompareWindows(sales []domain.Sale, now time.Time, rules RiskRules) WindowStats {
	recentStart, priorStart := rules.Windows(now)
	var w WindowStats
	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		rev := s.Revenue()
		w.RevenueTotal = w.RevenueTotal.Add(rev)
		w.UnitsTotal += s.Quantity
		switch {
		case !s.SoldAt.Before(recentStart) && s.SoldAt.Before(now):
			w.UnitsRecent += s.Quantity
			w.RevenueRecent = w.RevenueRecent.Add(rev)
		case !s.SoldAt.Before(priorStart) && s.SoldAt.Before(recentStart):
			w.UnitsPrior += s.Quantity
			w.RevenuePrior = w.RevenuePrior.Add(rev)
		}
	}
	w.AvgPriceRecent = AvgPrice(w.RevenueRecent, w.UnitsRecent)
	w.AvgPricePrior = AvgPrice(w.RevenuePrior, w.UnitsPrior)
	return w
}

// Score applies the additive rules to one event's window statistics. The
// reasons are returned in rule order.
func (r RiskRules) Score(w WindowStats, eventDate *time.Time, now time.Time) (int, []string) {
	score := 0
	reasons := []string{}

	if w.UnitsPrior > 0 {
		drop := -w.UnitsChange()
		switch {
		case drop > r.BigDropPct:
			score += r.BigDropPoints
			reasons = append(reasons, fmt.Sprintf("units down %.0f%% week over week (%d -> %d)", drop, w.UnitsPrior, w.UnitsRecent))
		case drop >= r.SmallDropPct:
			score += r.SmallDropPoints
			reasons = append(reasons, fmt.Sprintf("units down %.0f%% week over week (%d -> %d)", drop, w.UnitsPrior, w.UnitsRecent))
		}
	}

	// An empty recent window averages 0, a 100% drop.
	if exactAvg(w.RevenuePrior, w.UnitsPrior).IsPositive() {
		if drop := -w.PriceChange(); drop > r.PriceDropPct {
			score += r.PriceDropPoints
			reasons = append(reasons, fmt.Sprintf("average price down %.0f%% (%s -> %s)",
				drop, w.AvgPricePrior.StringFixed(2), w.AvgPriceRecent.StringFixed(2)))
		}
	}

	if w.UnitsRecent == 0 && w.RevenueTotal.IsPositive() {
		score += r.StalledPoints
		reasons = append(reasons, fmt.Sprintf("no sales in the last %d days", r.window()))
	}

	if eventDate != nil && !eventDate.Before(now) {
		horizon := now.Add(time.Duration(r.ImminentDays) * 24 * time.Hour)
		if !eventDate.After(horizon) && w.UnitsRecent < r.ImminentMinSold {
			days := int(eventDate.Sub(now).Hours() / 24)
			score += r.ImminentPoints
			reasons = append(reasons, fmt.Sprintf("event in %d days with %d units sold this week", days, w.UnitsRecent))
		}
	}
	return score, reasons
}

// ScoreRisk scores every event that appears in events or sales. Unattached
// sales are not scored. Results are ordered by score, then event name.
func ScoreRisk(sales []domain.Sale, events []domain.Event, now time.Time, rules RiskRules) []EventRisk {
	type entry struct {
		name  string
		date  *time.Time
		sales []domain.Sale
	}
	byEvent := make(map[string]*entry)
	for _, e := range events {
		byEvent[e.ID] = &entry{name: e.Name, date: e.EventDate}
	}
	for _, s := range sales {
		if s.EventID == "" {
			continue
		}
		en, ok := byEvent[s.EventID]
		if !ok {
			en = &entry{name: s.EventName, date: s.EventDate}
			byEvent[s.EventID] = en
		}
		en.sales = append(en.sales, s)
	}

	out := make([]EventRisk, 0, len(byEvent))
	for id, en := range byEvent {
		w := CompareWindows(en.sales, now, rules)
		score, reasons := rules.Score(w, en.date, now)
		out = append(out, EventRisk{
			EventID:        id,
			EventName:      en.name,
			EventDate:      en.date,
			WindowStats:    w,
			UnitsChangePct: round2(w.UnitsChange()),
			PriceChangePct: round2(w.PriceChange()),
			Score:          score,
			Level:          Classify(score),
			Reasons:        reasons,
		})
	}
	slices.SortFunc(out, func(a, b EventRisk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EventName, b.EventName); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	return out
}

// Flagged filters risks down to those at or above min.
func Flagged(risks []EventRisk, min RiskLevel) []EventRisk {
	rank := map[RiskLevel]int{RiskHealthy: 0, RiskWatch: 1, RiskMedium: 2, RiskHigh: 3}
	out := make([]EventRisk, 0, len(risks))
	for _, r := range risks {
		if rank[r.Level] >= rank[min] {
			out = append(out, r)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
