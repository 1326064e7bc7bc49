package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/config"
	"github.com/Guizzs26/go-user-sync/internal/db"
	"github.com/Guizzs26/go-user-sync/internal/delivery"
	"github.com/Guizzs26/go-user-sync/internal/service"
	"github.com/Guizzs26/go-user-sync/pkg/infra"
)

const cleanupInterval = 24 * time.Hour

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(ctx, cfg.DatabaseURL, cfg.QueueMaxAttempts, cfg.QueueBackoffMultiplier, logger)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	limiter := delivery.NewSlidingWindow(cfg.RateLimitEnabled, cfg.RateLimitMax, cfg.RateLimitWindow)
	client := delivery.NewClient(delivery.Config{
		URL:             cfg.APIURL,
		Token:           cfg.APIToken,
		Timeout:         cfg.APITimeout,
		ConnectTimeout:  cfg.APIConnectTimeout,
		SigningEnabled:  cfg.WebhookEnabled,
		SigningSecret:   cfg.WebhookSecret,
		SignatureHeader: cfg.WebhookSignatureHeader,
	}, limiter, logger)

	processor := service.NewQueueProcessor(store, store, store, client, logger)

	cleanupDone := make(chan struct{})
	go runCleanup(ctx, processor, cfg, cleanupDone)

	slog.Info("🚀 Retry queue worker started", "pid", os.Getpid(), "poll_interval", cfg.QueuePollInterval)

	runQueueLoop(ctx, processor, cfg, cleanupDone)
}

func runQueueLoop(ctx context.Context, processor *service.QueueProcessor, cfg *config.Config, cleanupDone chan struct{}) {
	ticker := time.NewTicker(cfg.QueuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("👋 Shutting down queue loop...")
			<-cleanupDone
			slog.Info("✅ Shutdown complete")
			return
		case <-ticker.C:
			stats, err := processor.ProcessQueue(ctx, cfg.QueueProcessingLimit)
			if err != nil {
				slog.Error("Queue pass failed", "error", err)
				continue
			}
			if stats.Processed > 0 {
				slog.Info("Queue pass finished",
					"processed", stats.Processed,
					"succeeded", stats.Succeeded,
					"failed", stats.Failed,
					"skipped", stats.Skipped,
				)
			}
		}
	}
}

func runCleanup(ctx context.Context, processor *service.QueueProcessor, cfg *config.Config, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("🧹 Janitor: Starting retention cleanup")

			stats, err := processor.Cleanup(ctx, cfg.LogRetentionDays, cfg.WebhookRetentionDays, cfg.QueueRetentionDays)
			if err != nil {
				slog.Error("Janitor: Cleanup failure", "error", err)
			} else {
				slog.Info("Janitor: Cleanup finished",
					"logs_removed", stats.Logs,
					"webhooks_removed", stats.Webhooks,
					"queue_removed", stats.Queue,
				)
			}

		case <-ctx.Done():
			slog.Info("🛑 Janitor: Stopping cleanup goroutine")
			return
		}
	}
}
