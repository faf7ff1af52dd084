// Package handler implements the REST endpoints of the dashboard API.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathParam extracts a named path parameter using Go 1.22+ routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// envelope wraps every view response so the dashboard can show the view
// status next to the data it belongs to.
type envelope struct {
	View      string            `json:"view"`
	Status    domain.ViewStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	Seq       uint64            `json:"seq"`
	FetchedAt *time.Time        `json:"fetched_at,omitempty"`
	Skipped   int               `json:"skipped"`
	Data      any               `json:"data"`
}

func envelopeOf(st domain.ViewState, data any) envelope {
	e := envelope{View: st.View.Name, Status: st.Status, Error: st.Error, Data: data}
	if st.Snapshot != nil {
		e.Seq = st.Snapshot.Seq
		at := st.Snapshot.FetchedAt
		e.FetchedAt = &at
		e.Skipped = st.Snapshot.Skipped
	}
	return e
}

// queryError is a bad query parameter, reported as 400.
type queryError struct {
	param string
	value string
	err   error
}

func (e *queryError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.param, e.value, e.err)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &queryError{param: name, value: v, err: fmt.Errorf("want a non-negative integer")}
	}
	return n, nil
}

func decimalParam(r *http.Request, name string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, &queryError{param: name, value: v, err: err}
	}
	return &d, nil
}

// timeParam accepts RFC 3339 or a calendar date in loc. With endOfDay a
// date means the end of that day, so date ranges include their last day.
func timeParam(r *http.Request, name string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return nil, &queryError{param: name, value: v, err: fmt.Errorf("want yyyy-mm-dd or RFC 3339")}
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// listParam reads a parameter given as repeated keys, a comma list, or both.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseFilter reads the sale filter shared by the sales and export
// endpoints. The date range is half-open; a date-only "to" includes that
// whole day.
func parseFilter(r *http.Request, loc *time.Location) (analytics.Filter, error) {
	q := r.URL.Query()
	f := analytics.Filter{
		Section: strings.TrimSpace(q.Get("section")),
		Search:  strings.TrimSpace(q.Get("q")),
		EventID: strings.TrimSpace(q.Get("event_id")),
	}
	for _, p := range listParam(r, "platform") {
		if platform, ok := domain.ParsePlatform(p); ok {
			f.Platforms = append(f.Platforms, platform)
		}
	}

	var err error
	if f.MinQty, err = intParam(r, "min_qty", 0); err != nil {
		return f, err
	}
	if f.MaxQty, err = intParam(r, "max_qty", 0); err != nil {
		return f, err
	}
	if f.MinPrice, err = decimalParam(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = decimalParam(r, "max_price"); err != nil {
		return f, err
	}
	if f.From, err = timeParam(r, "from", loc, false); err != nil {
		return f, err
	}
	if f.To, err = timeParam(r, "to", loc, true); err != nil {
		return f, err
	}
	return f, nil
}

func parseSort(r *http.Request) ([]analytics.SortKey, error) {
	v := r.URL.Query().Get("sort")
	keys, err := analytics.ParseSort(v)
	if err != nil {
		return nil, &queryError{param: "sort", value: v, err: err}
	}
	return keys, nil
}
