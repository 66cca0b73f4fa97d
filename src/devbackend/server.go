// Package devbackend is an in-memory stand-in for the shop backend's admin
// API. The console talks to it in development and in integration tests.
package devbackend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/rs/zerolog"
)

const claimsKey = "claims"

// Config configures the development backend
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	PublicURL string // console base URL for reset links
}

// ResetLinkSender delivers a password reset link to an operator
type ResetLinkSender interface {
	SendResetLink(ctx context.Context, email, link string, expiresAt time.Time) error
}

// Server serves the admin API under /api
type Server struct {
	store  *Store
	tokens *TokenIssuer
	sender ResetLinkSender
	cfg    Config
	logger zerolog.Logger
}

// NewServer creates a server over store. sender may be nil, in which case
// reset links are written to the log.
func NewServer(cfg Config, store *Store, sender ResetLinkSender) (*Server, error) {
	tokens, err := NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:8080"
	}
	if sender == nil {
		sender = NewLogLinkSender()
	}
	return &Server{
		store:  store,
		tokens: tokens,
		sender: sender,
		cfg:    cfg,
		logger: logging.NewLogger("devbackend"),
	}, nil
}

// Tokens exposes the issuer, for tests that need to mint tokens
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Routes registers the API on router
func (s *Server) Routes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := api.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/forgot-password", s.handleForgotPassword)
	auth.POST("/reset-password/:token", s.handleResetPassword)
	auth.POST("/logout", s.requireAdmin(), s.handleLogout)
	auth.GET("/check", s.requireAdmin(), s.handleCheck)
	auth.GET("/me", s.requireAdmin(), s.handleMe)
	auth.PUT("/change-password", s.requireAdmin(), s.handleChangePassword)

	admin := api.Group("/admin", s.requireAdmin())
	admin.GET("/notifications", s.handleListNotifications)
	admin.PATCH("/notifications/read-all", s.handleMarkAllRead)
	admin.PATCH("/notifications/:id/read", s.handleMarkRead)
	admin.POST("/notifications", s.handleCreateNotification)
	admin.GET("/orders", s.handleListOrders)
}

// requireAdmin checks the bearer token and its revocation status
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, no token"})
			return
		}

		claims, err := s.tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, token failed"})
			return
		}
		if s.store.IsRevoked(claims.ID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Session has been logged out"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func claimsFrom(c *gin.Context) *AdminClaims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*AdminClaims)
	return claims
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}

	admin, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		s.logger.Info().Str("email", req.Email).Msg("login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}

	token, _, err := s.tokens.Generate(admin)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create session"})
		return
	}

	s.logger.Info().Str("username", admin.Username).Msg("admin logged in")
	c.JSON(http.StatusOK, gin.H{
		"admin": admin.Public(),
		"token": token,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	claims := claimsFrom(c)
	s.store.Revoke(claims.ID, claims.ExpiresAt.Time)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) handleCheck(c *gin.Context) {
	claims := claimsFrom(c)
	if _, err := s.store.AdminByID(claims.AdminID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Admin no longer exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) handleMe(c *gin.Context) {
	admin, err := s.store.AdminByID(claimsFrom(c).AdminID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Admin no longer exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin.Public()})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Current and new password are required"})
		return
	}

	err := s.store.ChangePassword(claimsFrom(c).AdminID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Current password is incorrect"})
	case errors.Is(err, ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, ErrAdminNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Admin no longer exists"})
	default:
		s.logger.Error().Err(err).Msg("failed to change password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to change password"})
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}

	token, expiresAt, err := s.store.IssueResetToken(req.Email)
	if errors.Is(err, ErrAdminNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No admin account with that email"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue reset token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create reset link"})
		return
	}

	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/reset-password/" + url.PathEscape(token)
	if err := s.sender.SendResetLink(c.Request.Context(), req.Email, link, expiresAt); err != nil {
		s.logger.Error().Err(err).Msg("failed to send reset link")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send reset link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent"})
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password is required"})
		return
	}

	err := s.store.ResetPassword(c.Param("token"), req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
	case errors.Is(err, ErrResetTokenInvalid), errors.Is(err, ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		s.logger.Error().Err(err).Msg("failed to reset password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to reset password"})
	}
}

func (s *Server) handleListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Notifications())
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if err := s.store.MarkRead(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	changed := s.store.MarkAllRead()
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": changed})
}

type createNotificationRequest struct {
	Type    models.NotificationType `json:"type" binding:"required"`
	Message string                  `json:"message" binding:"required"`
	Target  string                  `json:"target"`
}

func (s *Server) handleCreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Type and message are required"})
		return
	}
	c.JSON(http.StatusCreated, s.store.AddNotification(req.Type, req.Message, req.Target))
}

func (s *Server) handleListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, sampleOrders(c.Query("status")))
}
