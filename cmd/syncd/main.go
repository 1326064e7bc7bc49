package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/broker"
	"github.com/Guizzs26/go-user-sync/internal/config"
	"github.com/Guizzs26/go-user-sync/internal/db"
	"github.com/Guizzs26/go-user-sync/internal/delivery"
	"github.com/Guizzs26/go-user-sync/internal/mapper"
	"github.com/Guizzs26/go-user-sync/internal/service"
	"github.com/Guizzs26/go-user-sync/internal/transform"
	"github.com/Guizzs26/go-user-sync/internal/webhook"
	"github.com/Guizzs26/go-user-sync/pkg/infra"
	"github.com/Guizzs26/go-user-sync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Sync daemon initializing...", "version", "1.0.0")

	store, err := db.NewStore(ctx, cfg.DatabaseURL, cfg.QueueMaxAttempts, cfg.QueueBackoffMultiplier, logger)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	orchestrator := buildOrchestrator(cfg, store, logger)

	validator := webhook.NewValidator(webhook.Config{
		Enabled:         cfg.WebhookEnabled,
		Secret:          cfg.WebhookSecret,
		SignatureHeader: cfg.WebhookSignatureHeader,
		ReplayWindow:    cfg.WebhookReplayWindow,
	}, store, logger)

	go startObservabilityServer(cfg.MetricsPort, validator, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
			consumer, err := broker.NewEventConsumer(cfg.RabbitMQURL, orchestrator, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying...",
					"wait_duration", wait,
					"error", err,
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			connBackoff.Reset()
			metrics.HealthStatus.Set(1)
			logger.Info("✅ Connected to Broker. Listening for user events...")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
			}

			metrics.HealthStatus.Set(0)
			consumer.Close()
		}
	}
}

func buildOrchestrator(cfg *config.Config, store *db.Store, logger *slog.Logger) *service.Orchestrator {
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

	engine := transform.NewEngine(store, logger)
	builder := mapper.NewPayloadBuilder(cfg.FieldMappings)

	return service.NewOrchestrator(
		store, store, store,
		client, engine, builder,
		cfg.TransformationsEnabled,
		cfg.SyncBatchDelay,
		logger,
	)
}

func startObservabilityServer(port string, validator *webhook.Validator, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/webhook", validator.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SYNCD ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
