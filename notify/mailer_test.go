package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ticketgate-backend/models"
)

func TestStaffAccessText(t *testing.T) {
	cred := &models.StaffCredential{
		Email:      "a@b.com",
		AccessCode: "482913",
		ExpiresAt:  time.Date(2026, 10, 22, 18, 0, 0, 0, time.UTC),
	}

	text := staffAccessText(cred, "Launch Night")
	assert.Contains(t, text, "Launch Night")
	assert.Contains(t, text, "Access code: 482913")
	assert.Contains(t, text, "Oct 22, 2026")
}

func TestNewTicketValidatedMessage(t *testing.T) {
	at := time.Unix(1792000000, 0)
	msg := NewTicketValidatedMessage("E1", models.ScanOutcome{
		TicketCode:   "ABC123-XYZ789",
		AttendeeName: "Ada",
		TierName:     "VIP",
		Source:       models.SourceCamera,
		Timestamp:    at,
	})

	assert.Equal(t, TicketValidatedMessage{
		EventID:      "E1",
		TicketCode:   "ABC123-XYZ789",
		AttendeeName: "Ada",
		TierName:     "VIP",
		Source:       "camera",
		CheckedInAt:  1792000000,
	}, msg)
}
