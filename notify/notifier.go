package notify

import (
	"context"

	"ticketgate-backend/models"
)

// Publisher announces gate activity to the rest of the platform.
type Publisher interface {
	TicketValidated(ctx context.Context, eventID string, outcome models.ScanOutcome) error
	StaffLogin(ctx context.Context, cred *models.StaffCredential) error
}

// Mailer delivers door staff access codes.
type Mailer interface {
	SendStaffAccess(ctx context.Context, cred *models.StaffCredential, eventTitle string) error
}

// Notifier combines a publisher and a mailer. Either may be Discard.
type Notifier struct {
	Publisher
	Mailer
}

// New returns a Notifier, substituting Discard for nil parts.
func New(p Publisher, m Mailer) Notifier {
	if p == nil {
		p = Discard{}
	}
	if m == nil {
		m = Discard{}
	}
	return Notifier{Publisher: p, Mailer: m}
}
