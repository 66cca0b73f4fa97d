package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/services"
)

// NotificationHandler exposes the notification cache to the console
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// HandleList serves GET /console/api/notifications
func (h *NotificationHandler) HandleList(c *gin.Context) {
	c.JSON(http.StatusOK, h.notifications.Snapshot())
}

// HandleRefresh serves POST /console/api/notifications/refresh
func (h *NotificationHandler) HandleRefresh(c *gin.Context) {
	err := h.notifications.Refresh(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.notifications.Snapshot())
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, apiclient.ErrUnauthorized):
		sessionEnded(c, "Your session has expired")
	default:
		// The cache is still served; it just was not refreshed
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "refresh_failed",
			"message": "Failed to refresh notifications",
			"feed":    h.notifications.Snapshot(),
		})
	}
}

// HandleMarkRead serves PATCH /console/api/notifications/:id/read
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	err := h.notifications.MarkAsRead(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Notification not found",
		})
		return
	}
	h.respondMark(c, err)
}

// HandleMarkAllRead serves PATCH /console/api/notifications/read-all
func (h *NotificationHandler) HandleMarkAllRead(c *gin.Context) {
	h.respondMark(c, h.notifications.MarkAllAsRead(c.Request.Context()))
}

// respondMark reports the optimistic result. The local change stands even
// when the backend did not confirm it.
func (h *NotificationHandler) respondMark(c *gin.Context, err error) {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		sessionEnded(c, "Your session has expired")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"confirmed": err == nil,
		"feed":      h.notifications.Snapshot(),
	})
}

// HandleOpen serves GET /console/notifications/:id/open: mark read, then
// go where the notification points
func (h *NotificationHandler) HandleOpen(c *gin.Context) {
	path, err := h.notifications.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.String(http.StatusNotFound, "notification not found")
		return
	}
	c.Redirect(http.StatusSeeOther, path)
}

// HandleInteraction serves POST /console/api/interaction
func (h *NotificationHandler) HandleInteraction(c *gin.Context) {
	h.notifications.Interact()
	c.Status(http.StatusNoContent)
}
