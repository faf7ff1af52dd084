package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one parsed field of a 5-field cron expression.
type cronField struct {
	wildcard bool
	values   map[int]bool
}

func (f cronField) matches(val int) bool {
	return f.wildcard || f.values[val]
}

// parseCronField parses "*", "5", "1,15", "1-5", "*/15" and "10-50/10",
// checking every value against [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		rng, stepText, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepText)
			if err != nil || s < 1 {
				return cronField{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = s
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q: %w", part, err)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q: %w", part, err)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			from, to = v, v
			if hasStep {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("cron field %q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}

type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime follows the classic cron rule: when both day fields are
// restricted, either may match.
func (c parsedCron) matchesTime(t time.Time) bool {
	if !c.minute.matches(t.Minute()) || !c.hour.matches(t.Hour()) || !c.month.matches(int(t.Month())) {
		return false
	}
	dom := c.dayOfMonth.matches(t.Day())
	dow := c.dayOfWeek.matches(int(t.Weekday()))
	if !c.dayOfMonth.wildcard && !c.dayOfWeek.wildcard {
		return dom || dow
	}
	return dom && dow
}

// parseCron parses "minute hour day-of-month month day-of-week". Sunday is
// 0; 7 is accepted as Sunday too.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		c   parsedCron
		err error
	)
	if c.minute, err = parseCronField(fields[0], 0, 59); err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	if c.hour, err = parseCronField(fields[1], 0, 23); err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	if c.dayOfMonth, err = parseCronField(fields[2], 1, 31); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	if c.month, err = parseCronField(fields[3], 1, 12); err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	if c.dayOfWeek, err = parseCronField(fields[4], 0, 7); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}
	if c.dayOfWeek.values[7] {
		c.dayOfWeek.values[0] = true
	}
	return c, nil
}

// nextCronTime returns the first minute after 'after' matching cronExpr,
// evaluated in after's location. It searches up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}

// ValidateCron reports whether expr is a usable 5-field cron expression.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}
