// Shopdesk server — ingests customer messages, runs the enrichment
// pipeline workers, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/shopdesk-io/shopdesk/pkg/api"
	"github.com/shopdesk-io/shopdesk/pkg/broker"
	"github.com/shopdesk-io/shopdesk/pkg/clients"
	"github.com/shopdesk-io/shopdesk/pkg/config"
	"github.com/shopdesk-io/shopdesk/pkg/database"
	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/ingest"
	"github.com/shopdesk-io/shopdesk/pkg/metrics"
	"github.com/shopdesk-io/shopdesk/pkg/ml"
	"github.com/shopdesk-io/shopdesk/pkg/pipeline"
	"github.com/shopdesk-io/shopdesk/pkg/services"
	"github.com/shopdesk-io/shopdesk/pkg/storage"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica logs.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()
	slog.Info("Starting shopdesk", "pod_id", podID, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs embedded migrations)
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Connect to the broker
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "addr", cfg.Queue.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "addr", cfg.Queue.RedisAddr)

	// 4. Object storage
	store, err := storage.NewStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		slog.Error("Failed to ensure storage bucket", "bucket", cfg.Storage.Bucket, "error", err)
		os.Exit(1)
	}

	// 5. Domain services
	eventService := services.NewEventService(dbClient.DB())
	messageService := services.NewMessageService(dbClient.DB())
	ticketService := services.NewTicketService(dbClient.DB(), eventService)
	slog.Info("Services initialized")

	// 6. Model suite, help desk, and commerce backends
	suite, err := ml.NewSuite(cfg.ML)
	if err != nil {
		slog.Error("Failed to initialize model suite", "error", err)
		os.Exit(1)
	}
	slog.Info("Model suite initialized", "mode", cfg.ML.Mode)

	helpDesk := helpdesk.NewClient(cfg.HelpDesk)
	shopify := clients.NewShopifyClient(cfg.Commerce.Shopify)
	stripe := clients.NewStripeClient(cfg.Commerce.Stripe)

	// 7. Metrics, broker, and task registry
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)

	b := broker.NewBroker(rdb, cfg.Queue.BrokerConfig(), m)
	taskRegistry := broker.NewRegistry()

	pipe := pipeline.New(eventService, messageService, ticketService, store,
		b, suite, helpDesk, shopify, stripe, m, cfg.Pipeline.Delays())
	pipe.Register(taskRegistry)

	ingestService := ingest.NewService(messageService, eventService, store, b)

	// 8. Mailbox polling (optional)
	var beatEntries []broker.ScheduleEntry
	if cfg.Mail.Enabled {
		mailClient, err := ingest.NewGmailClient(cfg.Mail.CredentialsFile)
		if err != nil {
			slog.Error("Failed to initialize mail client", "error", err)
			os.Exit(1)
		}
		poller := ingest.NewPoller(mailClient, ingestService, ingest.PollerConfig{
			Source:     cfg.Mail.Source,
			Query:      cfg.Mail.Query,
			MaxResults: cfg.Mail.MaxResults,
		})
		poller.Register(taskRegistry)
		beatEntries = append(beatEntries, broker.ScheduleEntry{
			Task:  ingest.TaskPollMail,
			Every: cfg.Queue.MailPollInterval,
		})
		slog.Info("Mailbox polling enabled",
			"source", cfg.Mail.Source, "interval", cfg.Queue.MailPollInterval)
	}

	// 9. Start worker pool and beat scheduler
	workerPool := broker.NewWorkerPool(podID, b, taskRegistry, cfg.Queue.PoolConfig(), m)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	var beat *broker.Beat
	if len(beatEntries) > 0 {
		beat = broker.NewBeat(b, beatEntries)
		beat.Start(ctx)
	}

	// 10. HTTP server
	httpServer := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.NewServer(dbClient, workerPool, ingestService,
			ticketService, eventService, messageService, store, helpDesk, registry).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Shopdesk started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: stop scheduling first, then drain workers,
	// then the HTTP server.
	if beat != nil {
		beat.Stop()
	}
	workerPool.Stop()
	slog.Info("Worker pool stopped gracefully")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
