package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/config"
	"github.com/khabaroff/shop-admin-console/src/handlers"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/khabaroff/shop-admin-console/src/services"
	"github.com/khabaroff/shop-admin-console/src/storage"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Info().
		Int("port", cfg.Port).
		Str("backend_url", cfg.BackendURL).
		Str("session_store", cfg.SessionStore).
		Str("log_level", cfg.LogLevel).
		Msg("starting console")

	// Open session storage
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(ctx, storage.Options{
		Kind:          cfg.SessionStore,
		Dir:           cfg.SessionDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		Namespace:     "console",
		DatabaseURL:   cfg.DatabaseURL,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer store.Close()

	pages, err := templates.LoadPageConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load page configuration")
	}

	router, err := loadNotificationRouter(cfg.NotificationRoutesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load notification routes")
	}

	// Initialize the session and pick up a persisted one
	session, err := services.NewSessionService(services.SessionConfig{
		BackendURL: cfg.BackendURL,
		Timeout:    cfg.RequestTimeout,
		StorageKey: cfg.SessionKey,
	}, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session")
	}

	ctx, cancel = context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	if err := session.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("persisted session could not be restored")
	}
	cancel()
	log.Info().Str("state", string(session.State())).Msg("session ready")

	// The synchronizer polls through its own client bound to the session
	pollClient, err := session.NewClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize notification client")
	}

	stream := handlers.NewStreamHandler()
	notifications := services.NewNotificationService(pollClient, session, stream, services.NotificationConfig{
		PollInterval: cfg.NotificationPollInterval,
		Router:       router,
	})
	stream.SetFeedSource(notifications)
	session.OnChange(stream.SessionChanged)

	// Start background services
	runCtx, stopRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		notifications.Run(runCtx)
	}()

	// Create Gin router
	engine := gin.New()

	// Add middleware
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.LoggingMiddleware())
	engine.Use(gin.Recovery())

	origins := splitOrigins(cfg.AllowedOrigins)
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, allowed := range origins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Console-Redirect"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(cors.New(corsConfig))

	// Setup routes
	handlers.SetupRoutes(engine, handlers.Dependencies{
		Store:               store,
		Session:             session,
		Notifications:       notifications,
		Stream:              stream,
		Pages:               pages,
		SignInRatePerMinute: cfg.SignInRatePerMinute,
	})

	// WriteTimeout stays zero: /console/stream is a long-lived response
	srv := &http.Server{
		Addr:              ":" + formatPort(cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	srv.RegisterOnShutdown(stream.Close)

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("console listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Stop the synchronizer
	stopRun()
	<-done

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("console shut down successfully")
}

func loadNotificationRouter(path string) (*services.NotificationRouter, error) {
	if path == "" {
		return services.DefaultNotificationRouter(), nil
	}
	return services.LoadNotificationRouter(path)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func formatPort(port int) string {
	return fmt.Sprintf("%d", port)
}
