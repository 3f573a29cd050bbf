package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/data/mongo"
	"github.com/garage-erp/check-lifecycle/internal/data/postgres"
	"github.com/garage-erp/check-lifecycle/internal/ledger_relay/outbox_poller"
	"github.com/garage-erp/check-lifecycle/internal/logger"
	"github.com/garage-erp/check-lifecycle/internal/platform/messaging/producers"
	"github.com/garage-erp/check-lifecycle/internal/platform/metrics"
	"github.com/garage-erp/check-lifecycle/internal/platform/persistence"
)

const metricsNamespace = "garage_checks"

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("ledger_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Ledger Relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	intentRepo := mongo.NewIntentRepository(log, mongoDB.Database())
	if err := intentRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure ledger intent indexes", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producers
	intentProducer, err := producers.NewIntentProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger intent Kafka producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	m := metrics.New(metricsNamespace)

	dispatcher, err := outbox_poller.NewDispatcher(cfg.WorkerPool.Size, log)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	// Initialize outbox poller
	ledgerPublisher := outbox_poller.NewLedgerPublisher(outboxRepo, intentRepo, intentProducer, m, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outbox_poller.PollerDeps{
		OutboxRepo:      outboxRepo,
		IntentRepo:      intentRepo,
		LedgerPublisher: ledgerPublisher,
		DLQ:             dlqProducer,
		Dispatcher:      dispatcher,
		Recorder:        m,
	}, log)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, m.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.RelayPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	go func() {
		log.Info("Starting metrics server", "port", cfg.Metrics.RelayPort, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for the poller to finish its current batch
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	dispatcher.Shutdown()

	if err = metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", "error", err)
	}

	if err = intentProducer.Close(); err != nil {
		log.Error("Error closing ledger intent Kafka producer", "error", err)
	}

	// dlqProducer is nil when no DLQ topic is configured; Close handles that
	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Ledger Relay shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Ledger Relay shutdown completed with errors")
	} else {
		log.Info("Ledger Relay shutdown completed successfully")
	}
}
