package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Trend is the direction of week-over-week unit sales.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// flatBand is the +/- percent change still reported as flat.
const flatBand = 5.0

// EventVelocity is the selling pace of one event.
type EventVelocity struct {
	EventID       string     `json:"event_id"`
	EventName     string     `json:"event_name"`
	EventDate     *time.Time `json:"event_date,omitempty"`
	UnitsRecent   int        `json:"units_recent"`
	UnitsPrior    int        `json:"units_prior"`
	UnitsPerDay   float64    `json:"units_per_day"`
	ChangePct     float64    `json:"change_pct"`
	Trend         Trend      `json:"trend"`
	DaysSinceLast int        `json:"days_since_last"`
	LastSoldAt    *time.Time `json:"last_sold_at,omitempty"`
	DaysToEvent   *int       `json:"days_to_event,omitempty"`
}

// VelocityByEvent measures units per day over the recent window for every
// event with sales, fastest first.
func VelocityByEvent(sales []domain.Sale, now time.Time, rules RiskRules) []EventVelocity {
	grouped := make(map[string][]domain.Sale)
	for _, s := range sales {
		if s.EventID == "" || !Valid(s) {
			continue
		}
		grouped[s.EventID] = append(grouped[s.EventID], s)
	}

	days := float64(rules.window())
	out := make([]EventVelocity, 0, len(grouped))
	for id, group := range grouped {
		w := CompareWindows(group, now, rules)
		v := EventVelocity{
			EventID:     id,
			EventName:   group[0].EventName,
			EventDate:   group[0].EventDate,
			UnitsRecent: w.UnitsRecent,
			UnitsPrior:  w.UnitsPrior,
			UnitsPerDay: round2(float64(w.UnitsRecent) / days),
			ChangePct:   round2(w.UnitsChange()),
		}
		switch {
		case v.ChangePct > flatBand:
			v.Trend = TrendUp
		case v.ChangePct < -flatBand:
			v.Trend = TrendDown
		default:
			v.Trend = TrendFlat
		}

		var last time.Time
		for _, s := range group {
			if s.SoldAt.After(last) && !s.SoldAt.After(now) {
				last = s.SoldAt
			}
		}
		if !last.IsZero() {
			v.LastSoldAt = &last
			v.DaysSinceLast = int(now.Sub(last).Hours() / 24)
		}
		if v.EventDate != nil {
			d := int(v.EventDate.Sub(now).Hours() / 24)
			v.DaysToEvent = &d
		}
		out = append(out, v)
	}

	slices.SortFunc(out, func(a, b EventVelocity) int {
		if c := cmp.Compare(b.UnitsPerDay, a.UnitsPerDay); c != 0 {
			return c
		}
		if c := cmp.Compare(b.UnitsPrior, a.UnitsPrior); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	return out
}
