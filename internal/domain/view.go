package domain

import "time"

// SaleFilter constrains which sales a view loads from the store.
type SaleFilter struct {
	CategoryKeyword string     `json:"category_keyword,omitempty" toml:"category"`
	EventIDs        []string   `json:"event_ids,omitempty" toml:"event_ids"`
	Since           *time.Time `json:"since,omitempty" toml:"-"`
	Until           *time.Time `json:"until,omitempty" toml:"-"`
	Days            int        `json:"days,omitempty" toml:"days"`
	Desc            bool       `json:"desc,omitempty" toml:"desc"`
	Limit           int        `json:"limit,omitempty" toml:"limit"`
}

// View is a named dashboard page backed by one snapshot.
type View struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Filter SaleFilter `json:"filter"`
}

// Snapshot is the result of one fetch cycle. A newer snapshot replaces an
// older one wholesale.
type Snapshot struct {
	View      string    `json:"view"`
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetched_at"`
	Sales     []Sale    `json:"sales"`
	Events    []Event   `json:"events"`
	Skipped   int       `json:"skipped"`
}

// Empty reports whether the snapshot holds no sales.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Sales) == 0
}

// ViewStatus is the lifecycle state shown next to a view.
type ViewStatus string

const (
	ViewStatusLoading ViewStatus = "loading"
	ViewStatusReady   ViewStatus = "ready"
	ViewStatusEmpty   ViewStatus = "empty"
	ViewStatusStale   ViewStatus = "stale"
	ViewStatusError   ViewStatus = "error"
)

// ViewState is the latest state of a view. It is replaced as a whole.
type ViewState struct {
	View      View       `json:"view"`
	Status    ViewStatus `json:"status"`
	Snapshot  *Snapshot  `json:"snapshot,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChangeOp is the kind of row change reported by the store.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent is a push notification that some row changed. Only the table
// matters; the payload is never trusted beyond that.
type ChangeEvent struct {
	Table string    `json:"table"`
	Op    ChangeOp  `json:"op"`
	ID    string    `json:"id,omitempty"`
	At    time.Time `json:"at"`
}

// AffectsAnalytics reports whether the change touches a relation the
// aggregation reads.
func (c ChangeEvent) AffectsAnalytics() bool {
	switch c.Table {
	case "sales", "events", "categories":
		return true
	}
	return false
}
