// Command devbackend runs an in-memory shop admin API for local console work
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/config"
	"github.com/khabaroff/shop-admin-console/src/devbackend"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	store := devbackend.NewStore(cfg.ResetTokenTTL)

	admin, err := devbackend.SeedAdmin(store, cfg.DevAdminEmail, cfg.DevAdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin")
	}
	if admin != nil {
		log.Info().Str("email", admin.Email).Msg("initial admin user created")
	}
	if cfg.DevSeed {
		devbackend.SeedNotifications(store)
	}

	server, err := devbackend.NewServer(devbackend.Config{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
		PublicURL: cfg.PublicURL,
	}, store, devbackend.NewWriterLinkSender(os.Stdout))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dev backend")
	}

	janitor := devbackend.NewJanitor(store, 10*time.Minute)
	janitor.Start(context.Background())

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())
	server.Routes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.DevBackendPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.DevBackendPort).Msg("dev backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	janitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
}
