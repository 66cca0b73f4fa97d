package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/khabaroff/shop-admin-console/src/services"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/rs/zerolog"
)

// ConsoleHandler serves the guarded console shell and session endpoints
type ConsoleHandler struct {
	session       *services.SessionService
	notifications *services.NotificationService
	pages         *templates.PageConfig
	logger        zerolog.Logger
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(session *services.SessionService, notifications *services.NotificationService, pages *templates.PageConfig) *ConsoleHandler {
	return &ConsoleHandler{
		session:       session,
		notifications: notifications,
		pages:         pages,
		logger:        logging.NewLogger("console_handler"),
	}
}

// ChangePasswordRequest is the body of PUT /console/api/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// HandleShell serves GET / and the section pages notifications open
func (h *ConsoleHandler) HandleShell(c *gin.Context) {
	html, err := templates.RenderConsole(templates.ConsoleData{
		Brand:   h.pages.Branding.Name,
		Section: strings.Trim(c.FullPath(), "/"),
		Admin:   middleware.GetAdmin(c),
		Feed:    h.notifications.Snapshot(),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to render console")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// HandleSession serves GET /console/api/session
func (h *ConsoleHandler) HandleSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// HandleProfile serves GET /console/api/profile. A profile that cannot be
// read ends the session.
func (h *ConsoleHandler) HandleProfile(c *gin.Context) {
	admin, err := h.session.FetchProfile(c.Request.Context())
	if err != nil {
		sessionEnded(c, services.DisplayMessage(err, "Failed to fetch profile"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin})
}

// HandleChangePassword serves PUT /console/api/password
func (h *ConsoleHandler) HandleChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Current password and a new password of at least 8 characters are required",
		})
		return
	}

	err := h.session.ChangePassword(c.Request.Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		msg := services.DisplayMessage(err, "Failed to change password")
		if errors.Is(err, apiclient.ErrUnauthorized) {
			sessionEnded(c, msg)
			return
		}
		c.JSON(failureStatus(err), gin.H{
			"error":   "change_password_failed",
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
}

// sessionEnded answers an API call whose session is gone
func sessionEnded(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":    "session_ended",
		"message":  msg,
		"redirect": middleware.SignInURL(true, ""),
	})
}
