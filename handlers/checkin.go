package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketgate-backend/gate"
	"ticketgate-backend/models"
	"ticketgate-backend/scanner"
	"ticketgate-backend/store"
)

// CheckinHandler serves the gate device: scans, camera control and the
// outcome feed. Routes sit behind RequireSession and RequireGate.
type CheckinHandler struct {
	store    store.Store
	registry *gate.Registry
	logger   *slog.Logger
}

func NewCheckinHandler(st store.Store, registry *gate.Registry, logger *slog.Logger) *CheckinHandler {
	return &CheckinHandler{store: st, registry: registry, logger: logger}
}

func (h *CheckinHandler) session(c *gin.Context) *gate.Session {
	return h.registry.Open(sessionFrom(c).ID, c.Param("id"))
}

// GetGate returns the event shown on the gate header with its counts.
func (h *CheckinHandler) GetGate(c *gin.Context) {
	eventID := c.Param("id")

	event, err := h.store.GetEvent(c, eventID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load event", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats, err := h.store.TicketStats(c, eventID)
	if err != nil {
		h.logger.Error("failed to count tickets", "event_id", eventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, models.GateDetail{
		Event: event,
		Stats: stats,
		Tally: h.session(c).Tally(),
	})
}

// Scan validates one code. Business outcomes are 200 with a status; the
// request only fails when the body is malformed.
func (h *CheckinHandler) Scan(c *gin.Context) {
	var req models.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := h.session(c).Submit(c, req.Code, req.Source)
	c.JSON(http.StatusOK, outcome)
}

// PushFrame accepts one camera frame as multipart field "frame".
func (h *CheckinHandler) PushFrame(c *gin.Context) {
	file, err := c.FormFile("frame")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing frame"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable frame"})
		return
	}
	defer f.Close()

	img, err := scanner.ReadFrame(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch err := h.session(c).PushFrame(c.PostForm("device"), img); {
	case errors.Is(err, gate.ErrUnknownDevice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scanner.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Scanner is not running"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusAccepted)
	}
}

func (h *CheckinHandler) StartScanner(c *gin.Context) {
	var req struct {
		Device string `json:"device"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	s := h.session(c)
	if err := s.StartScanner(req.Device); err != nil {
		deviceFault(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *CheckinHandler) StopScanner(c *gin.Context) {
	s := h.session(c)
	s.StopScanner()
	c.JSON(http.StatusOK, s.State())
}

func (h *CheckinHandler) SwitchCamera(c *gin.Context) {
	s := h.session(c)
	if _, err := s.SwitchCamera(); err != nil {
		deviceFault(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *CheckinHandler) SetTorch(c *gin.Context) {
	var req struct {
		On bool `json:"on"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := h.session(c)
	err := s.SetTorch(req.On)
	if errors.Is(err, scanner.ErrNotRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "Scanner is not running"})
		return
	}
	if err != nil {
		deviceFault(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *CheckinHandler) SetCues(c *gin.Context) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := h.session(c)
	s.SetMuted(req.Muted)
	c.JSON(http.StatusOK, s.State())
}

// Feed returns the recent outcomes, newest first, and the running tally.
func (h *CheckinHandler) Feed(c *gin.Context) {
	s := h.session(c)
	c.JSON(http.StatusOK, gin.H{
		"outcomes": s.Recent(),
		"tally":    s.Tally(),
		"scanner":  s.State(),
	})
}

// Stream pushes outcomes, cues and camera faults as server-sent events
// until the client goes away or the session closes.
func (h *CheckinHandler) Stream(c *gin.Context) {
	updates, cancel := h.session(c).Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			name := "outcome"
			if u.Fault != "" {
				name = "fault"
			}
			c.SSEvent(name, u)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
