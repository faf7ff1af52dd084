package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a single resale transaction joined with its optional event and
// category. It is immutable for the lifetime of one snapshot.
type Sale struct {
	ID          string          `json:"id"`
	SoldAt      time.Time       `json:"sold_at"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	Quantity    int             `json:"quantity"`
	Platform    Platform        `json:"platform"`
	Section     string          `json:"section,omitempty"`
	EventID     string          `json:"event_id,omitempty"`
	Notes       string          `json:"notes,omitempty"`

	// Joined from events / categories. Empty when the join is null.
	EventName    string     `json:"event_name,omitempty"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	Venue        string     `json:"venue,omitempty"`
	CategoryID   string     `json:"category_id,omitempty"`
	CategoryName string     `json:"category_name,omitempty"`
	Round        string     `json:"round,omitempty"`
}

// Revenue returns ticketPrice × quantity. It is never stored.
func (s Sale) Revenue() decimal.Decimal {
	return s.TicketPrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Attached reports whether the sale references an event.
func (s Sale) Attached() bool {
	return s.EventID != ""
}

// Validate checks the quantity and price invariants.
func (s Sale) Validate() error {
	if s.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d < 1", ErrInvalidSale, s.Quantity)
	}
	if s.TicketPrice.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidSale, s.TicketPrice)
	}
	return nil
}

// SaleRow is a raw sales row as read from the store, with the event and
// category joins flattened. Every column is nullable.
type SaleRow struct {
	ID           *string
	EventID      *string
	Section      *string
	Quantity     *int64
	TicketPrice  *string // numeric as text, parsed during normalisation
	Platform     *string
	SoldAt       *time.Time
	Notes        *string
	EventName    *string
	EventDate    *time.Time
	Venue        *string
	EventRound   *string
	CategoryID   *string
	CategoryName *string
}

// NewSale is the write-side shape of a sale.
type NewSale struct {
	EventID     string          `json:"event_id"`
	Section     string          `json:"section,omitempty"`
	Quantity    int             `json:"quantity"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	Platform    Platform        `json:"platform"`
	SoldAt      time.Time       `json:"sold_at"`
	Notes       string          `json:"notes,omitempty"`
}

// Validate rejects sales that would break the store invariants.
func (n NewSale) Validate() error {
	if strings.TrimSpace(n.EventID) == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidSale)
	}
	if n.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d < 1", ErrInvalidSale, n.Quantity)
	}
	if n.TicketPrice.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidSale, n.TicketPrice)
	}
	if n.Platform == "" {
		return fmt.Errorf("%w: missing platform", ErrInvalidSale)
	}
	if n.SoldAt.IsZero() {
		return fmt.Errorf("%w: missing sold_at", ErrInvalidSale)
	}
	return nil
}
