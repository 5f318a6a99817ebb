package models

import (
	"time"
)

// StaffCredential is a time-boxed door staff login bound to one event.
type StaffCredential struct {
	ID         string     `json:"id" db:"id"`
	EventID    string     `json:"event_id" db:"event_id"`
	Email      string     `json:"email" db:"user_email"`
	AccessCode string     `json:"access_code" db:"access_code"`
	Name       *string    `json:"name,omitempty" db:"name"`
	Phone      *string    `json:"phone,omitempty" db:"phone"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UsageCount int        `json:"usage_count" db:"usage_count"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the credential may open a gate at now.
func (s *StaffCredential) Usable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type StaffLoginRequest struct {
	Email   string `json:"email" binding:"required"`
	Code    string `json:"code" binding:"required"`
	EventID string `json:"event_id"`
}

type StaffLoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateStaffRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	// ValidFor overrides the default access window, e.g. "48h".
	ValidFor string `json:"valid_for"`
}

type SetStaffActiveRequest struct {
	IsActive bool `json:"is_active"`
}
