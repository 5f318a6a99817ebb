// Package store holds the typed contracts for the ticket, door staff and
// event tables, with a PostgreSQL implementation and an in-memory one.
package store

import (
	"context"
	"errors"
	"time"

	"ticketgate-backend/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Tickets interface {
	// FindTicketByCode returns the live (not soft-deleted) ticket with code.
	FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	// MarkCheckedIn flips validated to true only if it is still false.
	// It reports false without error when the condition did not hold.
	MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error)
	TicketStats(ctx context.Context, eventID string) (models.TicketStats, error)
	ListCheckins(ctx context.Context, eventID string) ([]models.Ticket, error)
	SoftDeleteTicket(ctx context.Context, ticketID, deletedBy, reason string, at time.Time) error
	RestoreTicket(ctx context.Context, ticketID string) error
	ListArchivedTickets(ctx context.Context) ([]models.ArchivedTicket, error)
	// DeleteArchivedTicket removes an archived ticket for good. Live tickets
	// are not found.
	DeleteArchivedTicket(ctx context.Context, ticketID string) error
	// PurgeArchivedTickets removes tickets archived before the cutoff and
	// returns their ids.
	PurgeArchivedTickets(ctx context.Context, before time.Time) ([]string, error)
}

type Staff interface {
	// FindStaffCredential matches email case-insensitively and only returns
	// active credentials that expire after now. An empty eventID matches any event.
	FindStaffCredential(ctx context.Context, email, code, eventID string, now time.Time) (*models.StaffCredential, error)
	GetStaffCredential(ctx context.Context, id string) (*models.StaffCredential, error)
	TouchStaffCredential(ctx context.Context, id string, at time.Time) error
	CreateStaffCredential(ctx context.Context, cred *models.StaffCredential) (*models.StaffCredential, error)
	ListStaffCredentials(ctx context.Context, eventID string) ([]models.StaffCredential, error)
	SetStaffCredentialActive(ctx context.Context, id string, active bool) error
	DeleteStaffCredential(ctx context.Context, id string) error
}

type Events interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type Audit interface {
	RecordAudit(ctx context.Context, entry *models.AuditLog) error
	// ListAuditLogs returns the newest entries first.
	ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// Store is everything the HTTP layer needs.
type Store interface {
	Tickets
	Staff
	Events
	Audit
	Ping(ctx context.Context) error
}
