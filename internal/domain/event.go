package domain

import "time"

// Event is a single fixture, conventionally named "Home vs Away".
type Event struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CategoryID string     `json:"category_id,omitempty"`
	EventDate  *time.Time `json:"event_date,omitempty"`
	Venue      string     `json:"venue,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Round      string     `json:"round,omitempty"`
}

// Category groups events. ParentID is empty for roots.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}
