package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/internal/api"
	"github.com/satriahrh/lensa/internal/app"
	"github.com/satriahrh/lensa/internal/auth"
	"github.com/satriahrh/lensa/internal/config"
	"github.com/satriahrh/lensa/internal/session"
	"github.com/satriahrh/lensa/internal/websocket"
)

// session cookies outlive a single session TTL; the store decides whether the session is still alive
const tokenTTL = 24 * time.Hour

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(config.Path())
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := app.NewProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize providers", zap.Error(err))
	}
	services := app.NewServices(cfg, providers, logger)

	tokens, err := auth.NewTokenIssuer(cfg.Session.Secret, tokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize session tokens", zap.Error(err))
	}
	if cfg.Session.Secret == "" {
		logger.Warn("LENSA_SESSION_SECRET not set, sessions will not survive a restart")
	}

	cleanup := session.NewCleanupService(services.Sessions, cfg.Session.CleanupInterval, logger.Named("cleanup"))
	cleanup.Start()

	// Initialize WebSocket hub with conversation service
	hub := websocket.NewHub(services.Conversation, cfg.Server.AllowedOrigins, logger.Named("websocket"))
	go hub.Run(ctx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.Server.MaxUploadBytes, 10) + "B"))

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Descriptions: services.Descriptions,
		Conversation: services.Conversation,
		Sessions:     services.Sessions,
		Tokens:       tokens,
		Hub:          hub,
		Server:       cfg.Server,
		Session:      cfg.Session,
		Language:     cfg.STT.Language,
		Logger:       logger.Named("api"),
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("maxUpload", humanize.IBytes(uint64(cfg.Server.MaxUploadBytes))),
		zap.Duration("sessionTTL", cfg.Session.TTL))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	cancel()
	cleanup.Stop()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
