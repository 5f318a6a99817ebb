package models

import (
	"time"
)

// ScanStatus is the classified result of one validation attempt.
type ScanStatus string

const (
	ScanValid       ScanStatus = "valid"
	ScanInvalid     ScanStatus = "invalid"
	ScanAlreadyUsed ScanStatus = "already-used"
	ScanWrongEvent  ScanStatus = "wrong-event"
	ScanError       ScanStatus = "error"
)

// Scan sources
const (
	SourceCamera = "camera"
	SourceManual = "manual"
)

type ScanOutcome struct {
	ID           string     `json:"id"`
	TicketCode   string     `json:"ticket_code"`
	Status       ScanStatus `json:"status"`
	AttendeeName string     `json:"attendee_name,omitempty"`
	TierName     string     `json:"tier_name,omitempty"`
	Source       string     `json:"source,omitempty"`
	Message      string     `json:"message,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ScanRequest carries a code typed in by the operator, or one decoded on
// the device itself when Source is "camera".
type ScanRequest struct {
	Code   string `json:"code"`
	Source string `json:"source"`
}

// Tally is the running operator progress counter for one gate session.
type Tally struct {
	Scans int `json:"scans"`
	Valid int `json:"valid"`
}
