package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ticketgate-backend/access"
)

// Routes mounts the API on router.
func Routes(router *gin.Engine, g *access.Gate, checkins *CheckinHandler, events *EventHandler, staff *StaffHandler, ping func(context.Context) error) {
	router.GET("/health", func(c *gin.Context) {
		if err := ping(c); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "Database connection failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	api.POST("/staff/login", staff.Login)

	authed := api.Group("", RequireSession(g))
	{
		authed.POST("/session/logout", staff.Logout)

		gates := authed.Group("/gates/:id", RequireGate(g))
		gates.GET("", checkins.GetGate)
		gates.POST("/scan", checkins.Scan)
		gates.POST("/frames", checkins.PushFrame)
		gates.POST("/scanner/start", checkins.StartScanner)
		gates.POST("/scanner/stop", checkins.StopScanner)
		gates.POST("/scanner/switch", checkins.SwitchCamera)
		gates.POST("/scanner/torch", checkins.SetTorch)
		gates.PUT("/cues", checkins.SetCues)
		gates.GET("/feed", checkins.Feed)
		gates.GET("/stream", checkins.Stream)
	}

	admin := authed.Group("", RequireAdmin())
	{
		admin.GET("/events/:id/staff", staff.ListStaff)
		admin.POST("/events/:id/staff", staff.CreateStaff)
		admin.PUT("/staff/:staffId/active", staff.SetStaffActive)
		admin.DELETE("/staff/:staffId", staff.DeleteStaff)

		admin.GET("/events/:id/checkins", events.GetCheckins)
		admin.GET("/tickets/archived", events.GetArchivedTickets)
		admin.DELETE("/tickets/archived/:ticketId", events.DeleteArchivedTicket)
		admin.POST("/tickets/archive", events.BulkArchiveTickets)
		admin.DELETE("/tickets/:ticketId", events.SoftDeleteTicket)
		admin.POST("/tickets/:ticketId/restore", events.RestoreTicket)
		admin.GET("/audit-logs", events.GetAuditLogs)
	}
}
