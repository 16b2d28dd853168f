// Move It website server: static site, chat widget API and live chat.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/move-it/website/internal/api"
	"github.com/move-it/website/internal/chat"
	"github.com/move-it/website/internal/config"
	"github.com/move-it/website/internal/middleware"
	"github.com/move-it/website/internal/render"
	"github.com/move-it/website/internal/responder"
	"github.com/move-it/website/internal/retention"
	"github.com/move-it/website/internal/store"
)

const rateLimiterIdle = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	matcher, err := responder.Default()
	if err != nil {
		slog.Error("Failed to load reply catalogs", "error", err)
		os.Exit(1)
	}
	slog.Info("Reply catalogs loaded", "languages", responder.Languages)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	sm := chat.NewSessionManager()
	renderer := render.New(cfg.OperatorAvatar)
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, rateLimiterIdle)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo)
	chatHandler := api.NewChatHandler(baseHandler,
		api.NewClientConfig(cfg.Chat.ReplyDelay, chat.DefaultWelcome, renderer.Avatar(), responder.Languages))
	wsHandler := chat.NewWebSocketHandler(repo, matcher, sm, chat.WebSocketConfig{
		Session: chat.Options{
			ReplyDelay: cfg.Chat.ReplyDelay,
			QueueSize:  cfg.Chat.PersistQueueSize,
			Renderer:   renderer,
		},
		RateLimit:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:     cfg.RateLimit.Burst,
		AllowedOrigin: cfg.FrontendOrigin(),
		IsDev:         cfg.IsDevelopment(),
	})

	r := newRouter(routerDeps{
		repo:           repo,
		limiter:        limiter,
		health:         healthHandler,
		chat:           chatHandler,
		ws:             wsHandler,
		allowedOrigins: cfg.AllowedOrigins(),
		isDev:          cfg.IsDevelopment(),
	})

	// WriteTimeout stays 0 so websocket connections are not cut off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	retention.StartWorker(ctx, repo, cfg.Retention.SweepInterval, cfg.Retention.HistoryTTL, sm.CloseVisitor)
	slog.Info("Retention worker started", "history_ttl", cfg.Retention.HistoryTTL, "interval", cfg.Retention.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// Hijacked websocket connections are not tracked by Shutdown.
	sm.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
