package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/khabaroff/shop-admin-console/src/services"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/rs/zerolog"
)

// Sign-in page notices, selected by ?reason=
const (
	reasonExpired   = "expired"
	reasonLoggedOut = "logged_out"
	reasonResetSent = "reset_sent"
	reasonResetDone = "reset_done"
)

// AuthHandler serves the unguarded sign-in, sign-out and password reset flow
type AuthHandler struct {
	session *services.SessionService
	pages   *templates.PageConfig
	logger  zerolog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(session *services.SessionService, pages *templates.PageConfig) *AuthHandler {
	return &AuthHandler{
		session: session,
		pages:   pages,
		logger:  logging.NewLogger("auth_handler"),
	}
}

// SignInRequest is the sign-in form or JSON body
type SignInRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
	Next     string `form:"next" json:"next"`
}

// ForgotPasswordRequest asks for a reset link
type ForgotPasswordRequest struct {
	Email string `form:"email" json:"email" binding:"required,email"`
}

// ResetPasswordRequest sets a new password
type ResetPasswordRequest struct {
	Password string `form:"password" json:"password" binding:"required,min=8"`
}

// HandleSignInPage serves GET /signin
func (h *AuthHandler) HandleSignInPage(c *gin.Context) {
	next := middleware.SafeNext(c.Query("next"))
	if h.session.IsAuthenticated() {
		c.Redirect(http.StatusSeeOther, next)
		return
	}

	h.renderSignIn(c, http.StatusOK, templates.SignInData{
		Notice: h.notice(c.Query("reason")),
		Next:   next,
	})
}

// HandleSignIn serves POST /signin
func (h *AuthHandler) HandleSignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBind(&req); err != nil {
		if isJSON(c) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Email and password are required",
			})
			return
		}
		h.renderSignIn(c, http.StatusBadRequest, templates.SignInData{
			Error: "Email and password are required",
			Email: req.Email,
			Next:  middleware.SafeNext(req.Next),
		})
		return
	}

	admin, err := h.session.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		status := failureStatus(err)
		msg := services.DisplayMessage(err, "Failed to login")
		if isJSON(c) {
			c.JSON(status, gin.H{
				"error":   "login_failed",
				"message": msg,
			})
			return
		}
		h.renderSignIn(c, status, templates.SignInData{
			Error: msg,
			Email: req.Email,
			Next:  middleware.SafeNext(req.Next),
		})
		return
	}

	h.logger.Info().
		Str("request_id", middleware.GetRequestID(c)).
		Str("username", admin.Username).
		Msg("operator signed in")

	if isJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"admin":   admin,
			"session": h.session.Snapshot(),
		})
		return
	}
	c.Redirect(http.StatusSeeOther, middleware.SafeNext(req.Next))
}

// HandleLogout serves POST /logout
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	h.session.Logout(c.Request.Context())

	if isJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		return
	}
	c.Redirect(http.StatusSeeOther, middleware.SignInPath+"?reason="+reasonLoggedOut)
}

// HandleForgotPassword serves POST /forgot-password
func (h *AuthHandler) HandleForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "A valid email is required", func(msg string) {
			h.renderSignIn(c, http.StatusBadRequest, templates.SignInData{Error: msg, Next: "/"})
		})
		return
	}

	if err := h.session.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		status := failureStatus(err)
		h.fail(c, status, services.DisplayMessage(err, "Failed to send reset link"), func(msg string) {
			h.renderSignIn(c, status, templates.SignInData{Error: msg, Next: "/"})
		})
		return
	}

	if isJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": h.pages.SignIn.ResetSentNotice})
		return
	}
	c.Redirect(http.StatusSeeOther, middleware.SignInPath+"?reason="+reasonResetSent)
}

// HandleResetPage serves GET /reset-password/:token
func (h *AuthHandler) HandleResetPage(c *gin.Context) {
	h.renderReset(c, http.StatusOK, "")
}

// HandleResetPassword serves POST /reset-password/:token
func (h *AuthHandler) HandleResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Password must be at least 8 characters", func(msg string) {
			h.renderReset(c, http.StatusBadRequest, msg)
		})
		return
	}

	if err := h.session.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		status := failureStatus(err)
		h.fail(c, status, services.DisplayMessage(err, "Failed to reset password"), func(msg string) {
			h.renderReset(c, status, msg)
		})
		return
	}

	if isJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "Password reset"})
		return
	}
	c.Redirect(http.StatusSeeOther, middleware.SignInPath+"?reason="+reasonResetDone)
}

// fail answers JSON callers directly and hands page callers to render
func (h *AuthHandler) fail(c *gin.Context, status int, msg string, render func(msg string)) {
	if isJSON(c) {
		c.JSON(status, gin.H{
			"error":   "request_failed",
			"message": msg,
		})
		return
	}
	render(msg)
}

func (h *AuthHandler) notice(reason string) string {
	switch reason {
	case reasonExpired:
		return h.pages.SignIn.ExpiredNotice
	case reasonLoggedOut:
		return h.pages.SignIn.LoggedOutNotice
	case reasonResetSent:
		return h.pages.SignIn.ResetSentNotice
	case reasonResetDone:
		return h.pages.SignIn.ResetDoneNotice
	default:
		return ""
	}
}

func (h *AuthHandler) renderSignIn(c *gin.Context, status int, data templates.SignInData) {
	data.Brand = h.pages.Branding.Name
	data.Text = h.pages.SignIn
	html, err := templates.RenderSignIn(data)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to render sign-in page")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", []byte(html))
}

func (h *AuthHandler) renderReset(c *gin.Context, status int, errMsg string) {
	html, err := templates.RenderReset(templates.ResetData{
		Brand:  h.pages.Branding.Name,
		Text:   h.pages.Reset,
		Action: "/reset-password/" + url.PathEscape(c.Param("token")),
		Error:  errMsg,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to render reset page")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", []byte(html))
}

// isJSON reports whether the caller sent or asked for JSON
func isJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON || !middleware.WantsHTML(c)
}

// failureStatus maps a backend failure to the console's answer: the
// backend's own 4xx passes through, anything else is a bad gateway
func failureStatus(err error) int {
	switch {
	case apiclient.IsTransport(err),
		errors.Is(err, services.ErrInvalidLoginResponse),
		errors.Is(err, apiclient.ErrMalformedResponse):
		return http.StatusBadGateway
	}
	if status := apiclient.StatusCode(err); status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}
