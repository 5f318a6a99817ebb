package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ticketgate-backend/access"
	"ticketgate-backend/gate"
	"ticketgate-backend/models"
	"ticketgate-backend/store"
)

// DefaultStaffValidity is how long a new door staff credential lasts.
const DefaultStaffValidity = 7 * 24 * time.Hour

// StaffNotifier announces staff logins and mails access codes. Both are
// best effort.
type StaffNotifier interface {
	StaffLogin(ctx context.Context, cred *models.StaffCredential) error
	SendStaffAccess(ctx context.Context, cred *models.StaffCredential, eventTitle string) error
}

// StaffHandler covers door staff login and the admin staff manager.
type StaffHandler struct {
	store    store.Store
	gate     *access.Gate
	registry *gate.Registry
	notifier StaffNotifier
	logger   *slog.Logger
}

func NewStaffHandler(st store.Store, g *access.Gate, registry *gate.Registry, notifier StaffNotifier, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{store: st, gate: g, registry: registry, notifier: notifier, logger: logger}
}

// Login exchanges email + access code for a session bound to one event.
func (h *StaffHandler) Login(c *gin.Context) {
	var req models.StaffLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, token, err := h.gate.LoginStaff(c, req.Email, req.Code, req.EventID)
	if err != nil {
		if errors.Is(err, access.ErrDenied) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials or expired access"})
			return
		}
		h.logger.Error("staff login failed", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		return
	}

	cred := &models.StaffCredential{ID: session.CredentialID, EventID: session.EventID, Email: session.Email}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.notifier.StaffLogin(ctx, cred); err != nil {
			h.logger.Warn("failed to publish staff login", "staff_id", cred.ID, "error", err)
		}
	}()

	c.JSON(http.StatusOK, models.StaffLoginResponse{
		Token:     token,
		SessionID: session.ID,
		EventID:   session.EventID,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout ends the device session and closes its gates.
func (h *StaffHandler) Logout(c *gin.Context) {
	s := sessionFrom(c)
	h.gate.Logout(s)
	h.registry.CloseSession(s.ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *StaffHandler) ListStaff(c *gin.Context) {
	eventID := c.Param("id")

	staff, err := h.store.ListStaffCredentials(c, eventID)
	if err != nil {
		h.logger.Error("failed to list staff", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, staff)
}

// CreateStaff adds a door staff credential for the event. A PIN is
// generated when none is given, and the code is emailed to the staff member.
func (h *StaffHandler) CreateStaff(c *gin.Context) {
	eventID := c.Param("id")

	var req models.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.store.GetEvent(c, eventID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	validFor := DefaultStaffValidity
	if req.ValidFor != "" {
		validFor, err = time.ParseDuration(req.ValidFor)
		if err != nil || validFor <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid valid_for duration"})
			return
		}
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		if code, err = access.GenerateAccessCode(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate access code"})
			return
		}
	}

	cred, err := h.store.CreateStaffCredential(c, &models.StaffCredential{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		AccessCode: code,
		Name:       nilIfEmpty(req.Name),
		Phone:      nilIfEmpty(req.Phone),
		IsActive:   true,
		ExpiresAt:  time.Now().Add(validFor),
	})
	if err != nil {
		h.logger.Error("failed to create staff", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create staff access"})
		return
	}

	h.logger.Info("door staff added", "event_id", eventID, "staff_id", cred.ID)

	sent := *cred
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.notifier.SendStaffAccess(ctx, &sent, event.Title); err != nil {
			h.logger.Warn("failed to email staff access", "staff_id", sent.ID, "error", err)
		}
	}()

	c.JSON(http.StatusCreated, cred)
}

func (h *StaffHandler) SetStaffActive(c *gin.Context) {
	staffID := c.Param("staffId")

	var req models.SetStaffActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.store.SetStaffCredentialActive(c, staffID, req.IsActive)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Staff member not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update staff access"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_active": req.IsActive})
}

func (h *StaffHandler) DeleteStaff(c *gin.Context) {
	staffID := c.Param("staffId")

	err := h.store.DeleteStaffCredential(c, staffID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Staff member not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove staff access"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
