package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kurihiro0119/devops-ingest/internal/aggregator"
	"github.com/kurihiro0119/devops-ingest/internal/api"
	"github.com/kurihiro0119/devops-ingest/internal/config"
	"github.com/kurihiro0119/devops-ingest/internal/logging"
	"github.com/kurihiro0119/devops-ingest/internal/storage"
	"github.com/kurihiro0119/devops-ingest/internal/storage/postgres"
	"github.com/kurihiro0119/devops-ingest/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Stderr, true)

	if err := cfg.ValidateStorage(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Error("Failed to initialize PostgreSQL storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to initialize SQLite storage", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	// Initialize aggregator
	agg := aggregator.NewAggregator(store)

	// Initialize handler
	handler := api.NewHandler(agg, store)

	// Setup routes
	router := api.SetupRoutes(handler, prometheus.DefaultGatherer, logger)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("Starting API server", "addr", addr, "storage", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
