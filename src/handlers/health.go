package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/khabaroff/shop-admin-console/src/storage"
)

var startTime = time.Now()

// Version is the console version reported by /info
var Version = "dev"

// SessionStater is the part of the session health checks look at
type SessionStater interface {
	State() models.SessionState
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store   storage.Backend
	session SessionStater
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store storage.Backend, session SessionStater) *HealthHandler {
	return &HealthHandler{
		store:   store,
		session: session,
	}
}

// HandleHealth returns health status with a session store check
func (hh *HealthHandler) HandleHealth(c *gin.Context) {
	start := time.Now()
	err := hh.store.Health(c.Request.Context())
	latency := time.Since(start)

	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":        "unhealthy",
			"session_store": "unavailable",
			"error":         err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"session_store": "connected",
		"store_latency": latency.String(),
		"session":       hh.session.State(),
		"uptime":        time.Since(startTime).String(),
	})
}

// HandleInfo returns service information
func (hh *HealthHandler) HandleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "shop-admin-console",
		"version": Version,
		"status":  "running",
		"session": hh.session.State(),
		"uptime":  time.Since(startTime).String(),
	})
}

// HandleReady returns readiness status (for load balancers)
func (hh *HealthHandler) HandleReady(c *gin.Context) {
	if err := hh.store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ready": false,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready": true,
	})
}
