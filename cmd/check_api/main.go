package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garage-erp/check-lifecycle/internal/api_gateway"
	"github.com/garage-erp/check-lifecycle/internal/api_gateway/service"
	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/data/mongo"
	"github.com/garage-erp/check-lifecycle/internal/data/postgres"
	"github.com/garage-erp/check-lifecycle/internal/logger"
	"github.com/garage-erp/check-lifecycle/internal/platform/fx"
	"github.com/garage-erp/check-lifecycle/internal/platform/metrics"
	"github.com/garage-erp/check-lifecycle/internal/platform/persistence"
)

const metricsNamespace = "garage_checks"

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("check_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Check API",
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

	m := metrics.New(metricsNamespace)

	// Initialize repositories
	checkRepo := postgres.NewCheckRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	intentRepo := mongo.NewIntentRepository(log, mongoDB.Database())

	// Exchange rates: manual, base-currency identity, then the online provider if configured
	rates := fx.NewResolver(log, cfg.Checks.BaseCurrency, fx.NewHTTPLookup(log, &cfg.FX), m)

	// Initialize services
	checkService := service.NewCheckService(log, service.Deps{
		CheckRepo:     checkRepo,
		IntentRepo:    intentRepo,
		Outbox:        service.NewOutboxWriter(outboxRepo, log),
		Tx:            postgresDB,
		Rates:         rates,
		Recorder:      m,
		DueSoonWindow: cfg.Checks.DueSoonWindow,
	})

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, m, checkService, map[string]api_gateway.HealthCheck{
		"postgres": postgresDB.Ping,
		"mongodb": func(ctx context.Context) error {
			return mongoDB.Ping(ctx, cfg.MongoDB.Timeout)
		},
	})
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the pools go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
