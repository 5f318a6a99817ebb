package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailersend/mailersend-go"

	"ticketgate-backend/models"
)

// MailerSend emails door staff their access code.
type MailerSend struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

func NewMailerSend(apiKey, fromName, fromEmail string, logger *slog.Logger) *MailerSend {
	return &MailerSend{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

func (m *MailerSend) SendStaffAccess(ctx context.Context, cred *models.StaffCredential, eventTitle string) error {
	from := mailersend.From{
		Name:  m.fromName,
		Email: m.fromEmail,
	}

	recipient := mailersend.Recipient{Email: cred.Email}
	if cred.Name != nil {
		recipient.Name = *cred.Name
	}

	message := m.client.Email.NewMessage()
	message.SetFrom(from)
	message.SetRecipients([]mailersend.Recipient{recipient})
	message.SetSubject("Your door staff access for " + eventTitle)
	message.SetText(staffAccessText(cred, eventTitle))

	res, err := m.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send staff access email: %w", err)
	}

	m.logger.Info("staff access email sent", "staff_id", cred.ID, "message_id", res.Header.Get("X-Message-Id"))
	return nil
}

func staffAccessText(cred *models.StaffCredential, eventTitle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been added as door staff for %s.\n\n", eventTitle)
	fmt.Fprintf(&b, "Email: %s\n", cred.Email)
	fmt.Fprintf(&b, "Access code: %s\n", cred.AccessCode)
	fmt.Fprintf(&b, "Valid until: %s\n\n", cred.ExpiresAt.Format("Jan 2, 2006 3:04 PM MST"))
	b.WriteString("Sign in on the staff portal to open the gate scanner.\n")
	return b.String()
}
