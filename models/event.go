package models

import (
	"time"
)

type Event struct {
	ID        string     `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Venue     *string    `json:"venue,omitempty" db:"venue"`
	StartsAt  *time.Time `json:"starts_at,omitempty" db:"starts_at"`
	CreatedBy *string    `json:"created_by,omitempty" db:"created_by"`
}

// TicketStats counts issued and checked-in tickets for an event.
type TicketStats struct {
	Total     int `json:"total"`
	Validated int `json:"validated"`
}

type GateDetail struct {
	Event *Event      `json:"event"`
	Stats TicketStats `json:"stats"`
	Tally Tally       `json:"tally"`
}
