package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/khabaroff/shop-admin-console/src/services"
	"github.com/khabaroff/shop-admin-console/src/storage"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the long-lived pieces the console routes are built from
type Dependencies struct {
	Store               storage.Backend
	Session             *services.SessionService
	Notifications       *services.NotificationService
	Stream              *StreamHandler
	Pages               *templates.PageConfig
	SignInRatePerMinute int
}

// SetupRoutes registers every console route on router
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := NewHealthHandler(deps.Store, deps.Session)
	authHandler := NewAuthHandler(deps.Session, deps.Pages)
	consoleHandler := NewConsoleHandler(deps.Session, deps.Notifications, deps.Pages)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	proxyHandler := NewProxyHandler(deps.Session.Client())

	// Health check endpoints
	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/ready", healthHandler.HandleReady)
	router.GET("/info", healthHandler.HandleInfo)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sign-in flow (unguarded)
	rpm := deps.SignInRatePerMinute
	if rpm <= 0 {
		rpm = 10
	}
	signInLimit := middleware.SignInRateLimitMiddleware(rpm)
	router.GET(middleware.SignInPath, authHandler.HandleSignInPage)
	router.POST(middleware.SignInPath, signInLimit, authHandler.HandleSignIn)
	router.POST("/logout", authHandler.HandleLogout)
	router.POST("/forgot-password", signInLimit, authHandler.HandleForgotPassword)
	router.GET("/reset-password/:token", authHandler.HandleResetPage)
	router.POST("/reset-password/:token", signInLimit, authHandler.HandleResetPassword)

	// Everything below needs a verified session
	guarded := router.Group("/")
	guarded.Use(middleware.RequireSession(deps.Session))
	{
		guarded.GET("/", consoleHandler.HandleShell)
		for _, path := range sectionPaths(deps.Notifications.Destinations()) {
			guarded.GET(path, consoleHandler.HandleShell)
		}
		guarded.GET("/console/stream", deps.Stream.HandleStream)
		guarded.GET("/console/notifications/:id/open", notificationHandler.HandleOpen)

		api := guarded.Group("/console/api")
		api.GET("/session", consoleHandler.HandleSession)
		api.GET("/profile", consoleHandler.HandleProfile)
		api.PUT("/password", consoleHandler.HandleChangePassword)

		api.GET("/notifications", notificationHandler.HandleList)
		api.POST("/notifications/refresh", notificationHandler.HandleRefresh)
		api.PATCH("/notifications/read-all", notificationHandler.HandleMarkAllRead)
		api.PATCH("/notifications/:id/read", notificationHandler.HandleMarkRead)
		api.POST("/interaction", notificationHandler.HandleInteraction)

		api.Any("/backend/*path", proxyHandler.HandleForward)
	}
}

// reservedPrefixes are owned by fixed routes and never served as sections
var reservedPrefixes = []string{"/console", "/signin", "/logout", "/forgot-password", "/reset-password", "/health", "/ready", "/info", "/metrics"}

// sectionPaths keeps the notification destinations that can be registered
// as console sections
func sectionPaths(destinations []string) []string {
	var paths []string
	for _, path := range destinations {
		if path == "/" || strings.ContainsAny(path, ":*?") {
			continue
		}
		reserved := false
		for _, prefix := range reservedPrefixes {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				reserved = true
				break
			}
		}
		if !reserved {
			paths = append(paths, path)
		}
	}
	return paths
}
