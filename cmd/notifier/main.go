package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio-site/internal/config"
	"studio-site/internal/messaging"
	"studio-site/internal/notify"
	"studio-site/internal/observability"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		slog.Error("configuration validation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting notifier")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	rmqCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	slog.Info("connected to rabbitmq")

	webhook := notify.NewWebhookClient(cfg.NotifyWebhookURL)

	msgs, err := rmq.ConsumeContactMessages()
	if err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("notifier is ready to deliver contact messages")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping message consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("message channel closed")
					return
				}
				msgCtx, msgCancel := context.WithTimeout(ctx, 30*time.Second)
				settle(&msg, deliver(msgCtx, msg.Body, webhook, msg.Redelivered))
				msgCancel()
			}
		}
	}()

	select {
	case <-sigChan:
	case <-done:
	}
	slog.Info("shutting down notifier")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("timed out waiting for in-flight delivery")
	}
	slog.Info("notifier stopped")
}
