package models

import (
	"time"
)

// Ticket is one issued entry pass. The consumption flag only ever moves
// from false to true.
type Ticket struct {
	ID           string     `json:"id" db:"id"`
	EventID      string     `json:"event_id" db:"event_id"`
	TicketCode   string     `json:"ticket_code" db:"ticket_code"`
	AttendeeName string     `json:"attendee_name" db:"attendee_name"`
	TierName     *string    `json:"tier_name,omitempty" db:"tier_name"`
	Validated    bool       `json:"validated" db:"validated"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Tier returns the tier name, falling back to "General" like the box office does.
func (t *Ticket) Tier() string {
	if t.TierName == nil || *t.TierName == "" {
		return "General"
	}
	return *t.TierName
}

// ArchivedTicket is a soft-deleted ticket kept for restore.
type ArchivedTicket struct {
	Ticket
	DeletedAt    time.Time `json:"deleted_at" db:"deleted_at"`
	DeletedBy    string    `json:"deleted_by" db:"deleted_by"`
	DeleteReason *string   `json:"delete_reason,omitempty" db:"delete_reason"`
}

type SoftDeleteTicketRequest struct {
	Reason string `json:"reason"`
}
