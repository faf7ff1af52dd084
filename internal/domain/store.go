package domain

import (
	"context"
	"time"
)

// SaleQuery is the read contract against the sales relation.
type SaleQuery struct {
	EventIDs []string
	Since    *time.Time
	Until    *time.Time
	Desc     bool
	Limit    int
}

// SaleStore persists sales.
type SaleStore interface {
	List(ctx context.Context, q SaleQuery) ([]SaleRow, error)
	Insert(ctx context.Context, sale NewSale) (string, error)
	InsertBatch(ctx context.Context, sales []NewSale) (int64, error)
}

// EventStore reads fixtures.
type EventStore interface {
	ListByCategories(ctx context.Context, categoryIDs []string) ([]Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
}

// CategoryStore reads the category tree.
type CategoryStore interface {
	ListAll(ctx context.Context) ([]Category, error)
	MatchName(ctx context.Context, keyword string) ([]Category, error)
}

// HealthStore persists the operational self-monitoring tables.
type HealthStore interface {
	UpsertStatus(ctx context.Context, h ServiceHealth) error
	ListStatus(ctx context.Context) ([]ServiceHealth, error)
	AppendLog(ctx context.Context, entry HealthLog) error
	RecentLogs(ctx context.Context, limit int) ([]HealthLog, error)
}
