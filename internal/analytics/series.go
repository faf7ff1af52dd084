package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

const dayLayout = "2006-01-02"

// DayBucket aggregates one calendar day.
type DayBucket struct {
	Date       time.Time       `json:"-"`
	Day        string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	Units      int             `json:"units"`
	OrderCount int             `json:"order_count"`
}

// BucketByDay returns one bucket per calendar day in [start, end] inclusive,
// in order, with zero-filled days. Day boundaries are taken in loc (UTC when
// nil). An end before start yields an empty series.
// SpanDays counts the calendar days in [start, end] inclusive in loc. It is
// zero when end falls on an earlier day than start.
func SpanDays(start, end time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	first := startOfDay(start, loc)
	last := startOfDay(end, loc)
	if last.Before(first) {
		return 0
	}
	// Civil dates in UTC have no DST gaps. Unix seconds avoid the ~292 year
	// limit of time.Duration.
	a := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	return int((b.Unix()-a.Unix())/86400) + 1
}

func BucketByDay(sales []domain.Sale, start, end time.Time, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.UTC
	}
	first := startOfDay(start, loc)
	last := startOfDay(end, loc)
	if last.Before(first) {
		return []DayBucket{}
	}

	var out []DayBucket
	index := make(map[string]int)
	for i := 0; ; i++ {
		d := time.Date(first.Year(), first.Month(), first.Day()+i, 0, 0, 0, 0, loc)
		if d.After(last) {
			break
		}
		key := d.Format(dayLayout)
		index[key] = len(out)
		out = append(out, DayBucket{Date: d, Day: key})
	}

	for _, s := range sales {
		if !Valid(s) {
			continue
		}
		i, ok := index[s.SoldAt.In(loc).Format(dayLayout)]
		if !ok {
			continue
		}
		out[i].Revenue = out[i].Revenue.Add(s.Revenue())
		out[i].Units += s.Quantity
		out[i].OrderCount++
	}
	return out
}

// DaysBetween counts whole calendar days from start to end in loc.
func DaysBetween(start, end time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	a := startOfDay(start, loc)
	b := startOfDay(end, loc)
	// Calendar arithmetic in UTC avoids DST-length days.
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
