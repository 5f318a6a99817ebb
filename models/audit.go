package models

import (
	"time"
)

// Audit actions recorded for admin changes to tickets.
const (
	AuditSoftDelete      = "SOFT_DELETE"
	AuditRestore         = "RESTORE"
	AuditPermanentDelete = "PERMANENT_DELETE"
)

// AuditUserSystem marks entries written by background jobs.
const AuditUserSystem = "system"

type AuditLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	TableName string    `json:"table_name" db:"table_name"`
	RecordID  string    `json:"record_id" db:"record_id"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type BulkArchiveRequest struct {
	TicketIDs []string `json:"ticket_ids" binding:"required,min=1"`
	Reason    string   `json:"reason" binding:"required"`
}
