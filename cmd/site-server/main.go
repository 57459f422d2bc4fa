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

	"github.com/redis/go-redis/v9"

	"studio-site/internal/config"
	"studio-site/internal/domain"
	"studio-site/internal/messaging"
	"studio-site/internal/observability"
	"studio-site/internal/ratelimit"
	"studio-site/internal/repository/memory"
	"studio-site/internal/repository/postgres"
	"studio-site/internal/server"
	"studio-site/internal/service"
	"studio-site/internal/websocket"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting site server", slog.String("environment", cfg.Environment))

	if cfg.AdminPasswordHash == "" {
		hash, err := service.HashPassword(cfg.AdminPassword)
		if err != nil {
			slog.Error("failed to hash admin password", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg.AdminPasswordHash = hash
		slog.Warn("admin password hashed from plaintext, set ADMIN_PASSWORD_HASH outside development")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var redisClient *redis.Client
	if cfg.UseRedis() {
		client, err := config.NewRedisClient(cfg.RedisURL)
		if err != nil {
			slog.Warn("invalid redis configuration, using in-memory rate limits", slog.String("error", err.Error()))
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	limiterOpts := ratelimit.Options{}
	if redisClient != nil {
		limiterOpts.Redis = redisClient
	}
	limiter := ratelimit.New(ctx, limiterOpts)
	defer limiter.Close()
	slog.Info("rate limiter ready", slog.String("backend", limiter.Backend()))

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	deps := server.Deps{
		Store:   store,
		Limiter: limiter,
		Hub:     hub,
	}

	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		// Events reach the admin feed through the broker so every replica sees them.
		if err := messaging.NewContactConsumer(rmq, hub).Start(ctx); err != nil {
			slog.Error("failed to start admin feed consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.RabbitMQ = rmq
		deps.Events = rmq
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("site server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (domain.DocumentStore, func()) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			slog.Warn("DATABASE_URL not set, content will not survive restarts")
		}
		return memory.NewDocumentStore(), func() {}
	}

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	if err := postgres.Migrate(connCtx, db); err != nil {
		db.Close()
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := postgres.NewDocumentRepository(db)
	if err != nil {
		db.Close()
		slog.Error("failed to prepare document repository", slog.String("error", err.Error()))
		os.Exit(1)
	}

	return repo, func() {
		if err := repo.Close(); err != nil {
			slog.Error("failed to close document repository", slog.String("error", err.Error()))
		}
		db.Close()
	}
}
