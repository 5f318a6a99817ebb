package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketgate-backend/access"
	"ticketgate-backend/scanner"
)

const sessionKey = "device_session"

// RequireSession resolves the bearer token into a device session and
// rejects the request when there is none.
func RequireSession(gate *access.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := gate.Identify(c, c.GetHeader("Authorization"))
		if err != nil {
			abortAccess(c, err)
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireAdmin lets only identity provider sessions through.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// RequireGate checks the session may operate the gate of the :id event.
func RequireGate(gate *access.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Authorize(c, sessionFrom(c), c.Param("id")); err != nil {
			abortAccess(c, err)
			return
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *access.DeviceSession {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*access.DeviceSession)
	return s
}

func abortAccess(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, access.ErrExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Your access has expired"})
	case errors.Is(err, access.ErrWrongEvent):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Your access is limited to a different event"})
	case errors.Is(err, access.ErrDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify access"})
	}
}

// deviceFault reports a camera problem with the hint shown to the operator.
func deviceFault(c *gin.Context, err error) {
	status := http.StatusConflict
	if errors.Is(err, scanner.ErrTorchUnsupported) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error(), "hint": scanner.Hint(err)})
}
