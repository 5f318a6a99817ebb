// Package checkin decides gate check-in outcomes and keeps the recent
// outcome feed for one gate device.
package checkin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketgate-backend/models"
	"ticketgate-backend/store"
)

// DefaultWriteTimeout bounds the conditional check-in write once it has
// been detached from the caller.
const DefaultWriteTimeout = 10 * time.Second

// TicketStore is the slice of the ticket table the validator touches.
type TicketStore interface {
	FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

type Validator struct {
	tickets      TicketStore
	logger       *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration
}

type Option func(*Validator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.writeTimeout = d
		}
	}
}

func NewValidator(tickets TicketStore, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		tickets:      tickets,
		logger:       logger,
		now:          time.Now,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate classifies one scanned code for the gate of eventID and, when the
// ticket is unused, consumes it. The order of checks is fixed: unknown code,
// other event, already consumed, then the conditional write. Business
// outcomes are returned as statuses; only store faults produce ScanError,
// and a fault never consumes the ticket.
func (v *Validator) Validate(ctx context.Context, eventID, code string) models.ScanOutcome {
	code = strings.TrimSpace(code)
	outcome := models.ScanOutcome{
		ID:         uuid.NewString(),
		TicketCode: code,
	}
	finish := func(status models.ScanStatus, message string) models.ScanOutcome {
		outcome.Status = status
		outcome.Message = message
		outcome.Timestamp = v.now()
		return outcome
	}

	if code == "" {
		return finish(models.ScanInvalid, "Empty ticket code")
	}

	ticket, err := v.tickets.FindTicketByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		v.logger.Info("ticket not found", "event_id", eventID, "code", code)
		return finish(models.ScanInvalid, "Ticket not found in system")
	}
	if err != nil {
		v.logger.Error("ticket lookup failed", "event_id", eventID, "code", code, "error", err)
		return finish(models.ScanError, "Failed to validate ticket")
	}

	outcome.AttendeeName = ticket.AttendeeName

	if ticket.EventID != eventID {
		v.logger.Info("ticket presented at wrong gate", "event_id", eventID, "ticket_event_id", ticket.EventID, "code", code)
		return finish(models.ScanWrongEvent, "This ticket is for a different event")
	}

	if ticket.Validated {
		return finish(models.ScanAlreadyUsed, ticket.AttendeeName+" has already entered")
	}

	// The write outlives the caller: a device that navigates away mid-scan
	// must not leave the attendee half checked in.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.writeTimeout)
	defer cancel()

	consumed, err := v.tickets.MarkCheckedIn(writeCtx, ticket.ID, v.now())
	if err != nil {
		v.logger.Error("check-in write failed", "event_id", eventID, "ticket_id", ticket.ID, "error", err)
		return finish(models.ScanError, "Failed to validate ticket")
	}
	if !consumed {
		// The ticket changed between lookup and write: either another gate
		// consumed it or an admin archived it.
		if _, err := v.tickets.FindTicketByCode(writeCtx, code); errors.Is(err, store.ErrNotFound) {
			v.logger.Info("ticket archived during check-in", "event_id", eventID, "ticket_id", ticket.ID)
			return finish(models.ScanInvalid, "Ticket not found in system")
		} else if err != nil {
			v.logger.Error("ticket re-read failed", "event_id", eventID, "ticket_id", ticket.ID, "error", err)
			return finish(models.ScanError, "Failed to validate ticket")
		}
		v.logger.Info("check-in lost to concurrent scan", "event_id", eventID, "ticket_id", ticket.ID)
		return finish(models.ScanAlreadyUsed, ticket.AttendeeName+" has already entered")
	}

	outcome.TierName = ticket.Tier()
	v.logger.Info("ticket checked in", "event_id", eventID, "ticket_id", ticket.ID, "tier", outcome.TierName)
	return finish(models.ScanValid, ticket.AttendeeName+" - "+outcome.TierName)
}
