package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ticketgate-backend/models"
	"ticketgate-backend/store"
)

// ArchiveRetention is how long a soft-deleted ticket can be restored.
const ArchiveRetention = 7 * 24 * time.Hour

// AuditLogLimit caps one page of the audit log.
const AuditLogLimit = 100

// EventHandler serves the admin views of an event's tickets.
type EventHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewEventHandler(st store.Store, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: st, logger: logger}
}

// GetCheckins lists checked-in tickets, most recent first.
func (h *EventHandler) GetCheckins(c *gin.Context) {
	eventID := c.Param("id")

	if _, err := h.store.GetEvent(c, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	checkins, err := h.store.ListCheckins(c, eventID)
	if err != nil {
		h.logger.Error("failed to list check-ins", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	stats, err := h.store.TicketStats(c, eventID)
	if err != nil {
		h.logger.Error("failed to count tickets", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"checkins": checkins,
		"stats":    stats,
	})
}

// actor names the admin behind the request in audit entries.
func actor(c *gin.Context) string {
	s := sessionFrom(c)
	if s.Email != "" {
		return s.Email
	}
	return s.Subject
}

// audit records an admin action. The action itself already happened, so a
// failure here is only logged.
func (h *EventHandler) audit(c *gin.Context, action, ticketID string) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		UserID:    actor(c),
		Action:    action,
		TableName: "tickets",
		RecordID:  ticketID,
		CreatedAt: time.Now(),
	}
	if ip := c.ClientIP(); ip != "" {
		entry.IPAddress = &ip
	}
	if err := h.store.RecordAudit(c, entry); err != nil {
		h.logger.Warn("failed to record audit entry", "action", action, "ticket_id", ticketID, "error", err)
	}
}

// SoftDeleteTicket archives a ticket. Archived tickets cannot be scanned in
// and are purged after ArchiveRetention.
func (h *EventHandler) SoftDeleteTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	var req models.SoftDeleteTicketRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	by := actor(c)
	err := h.store.SoftDeleteTicket(c, ticketID, by, req.Reason, time.Now())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to archive ticket", "ticket_id", ticketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive ticket"})
		return
	}

	h.audit(c, models.AuditSoftDelete, ticketID)
	h.logger.Info("ticket archived", "ticket_id", ticketID, "by", by)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket archived"})
}

// BulkArchiveTickets archives several tickets under one required reason.
// Each ticket succeeds or fails on its own.
func (h *EventHandler) BulkArchiveTickets(c *gin.Context) {
	var req models.BulkArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide a reason for deletion"})
		return
	}

	by := actor(c)
	now := time.Now()
	archived := []string{}
	failed := []string{}
	for _, id := range req.TicketIDs {
		if err := h.store.SoftDeleteTicket(c, id, by, reason, now); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.logger.Error("failed to archive ticket", "ticket_id", id, "error", err)
			}
			failed = append(failed, id)
			continue
		}
		h.audit(c, models.AuditSoftDelete, id)
		archived = append(archived, id)
	}

	h.logger.Info("tickets archived", "count", len(archived), "failed", len(failed), "by", by)
	c.JSON(http.StatusOK, gin.H{
		"success":  len(failed) == 0,
		"archived": archived,
		"failed":   failed,
	})
}

func (h *EventHandler) RestoreTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	err := h.store.RestoreTicket(c, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archived ticket not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to restore ticket", "ticket_id", ticketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore ticket"})
		return
	}

	h.audit(c, models.AuditRestore, ticketID)
	h.logger.Info("ticket restored", "ticket_id", ticketID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket restored"})
}

// DeleteArchivedTicket removes an archived ticket for good. It cannot be
// undone.
func (h *EventHandler) DeleteArchivedTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	err := h.store.DeleteArchivedTicket(c, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archived ticket not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to delete ticket", "ticket_id", ticketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ticket"})
		return
	}

	h.audit(c, models.AuditPermanentDelete, ticketID)
	h.logger.Info("ticket permanently deleted", "ticket_id", ticketID, "by", actor(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket permanently deleted"})
}

func (h *EventHandler) GetArchivedTickets(c *gin.Context) {
	archived, err := h.store.ListArchivedTickets(c)
	if err != nil {
		h.logger.Error("failed to list archived tickets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	type entry struct {
		models.ArchivedTicket
		PurgeAt time.Time `json:"purge_at"`
	}
	out := make([]entry, 0, len(archived))
	for _, a := range archived {
		out = append(out, entry{ArchivedTicket: a, PurgeAt: a.DeletedAt.Add(ArchiveRetention)})
	}
	c.JSON(http.StatusOK, out)
}

// GetAuditLogs lists the most recent admin actions, newest first.
func (h *EventHandler) GetAuditLogs(c *gin.Context) {
	limit := AuditLogLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	logs, err := h.store.ListAuditLogs(c, limit)
	if err != nil {
		h.logger.Error("failed to list audit logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
