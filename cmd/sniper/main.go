package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwarner/sniper/api"
	"github.com/cwarner/sniper/internal/config"
	"github.com/cwarner/sniper/internal/detector"
	"github.com/cwarner/sniper/internal/executor"
	"github.com/cwarner/sniper/internal/monitor"
	"github.com/cwarner/sniper/internal/repository"
	"github.com/cwarner/sniper/internal/risk"
	"github.com/cwarner/sniper/internal/watcher"
	"github.com/cwarner/sniper/pkg/mexc"
	"github.com/cwarner/sniper/pkg/models"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sniper",
		Short: "MEXC new-listing sniper",
		Long:  `Watches the MEXC ticker stream for never-seen symbols, snipes new listings with risk-checked market buys and supervises the resulting positions until stop-loss or take-profit`,
		Run:   runSniper,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runSniper(cmd *cobra.Command, args []string) {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load .env for local development; absence is fine
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the datastore
	store, err := repository.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.Close()

	// Exchange REST client
	client := mexc.NewClient(cfg.Mexc.RestURL, cfg.Mexc.APIKey, cfg.Mexc.SecretKey, logger)

	// Execution pipeline
	gate := risk.NewGate(store, logger)
	exec := executor.New(store, gate, client, logger)

	// Validate credentials up front; failure downgrades to simulated mode
	// instead of aborting, the detection pipeline is still worth running.
	if err := client.ValidateCredentials(ctx); err != nil {
		logger.WithError(err).Warn("Credential validation failed, running in simulated mode")
		exec.DisableLive("credential validation failed")
	}

	// Event channels between the ingestion path and the consumers
	listings := make(chan models.NewListing, cfg.Trading.ListingBuffer)
	snapshots := make(chan models.MarketSnapshot, cfg.Trading.SnapshotBuffer)

	// Detection path
	streamCfg := mexc.DefaultStreamConfig()
	streamCfg.URL = cfg.Mexc.WebSocket.URL
	streamCfg.MaxReconnects = cfg.Mexc.WebSocket.MaxReconnects
	streamCfg.PingInterval = time.Duration(cfg.Mexc.WebSocket.PingInterval) * time.Second
	streamCfg.Backoff.InitialDelay = time.Duration(cfg.Mexc.WebSocket.ReconnectDelay) * time.Second

	stream := mexc.NewStreamClient(streamCfg, logger)
	cache := detector.NewCache(0, logger)
	det := detector.New(store, cache, logger)
	registry := detector.NewRegistry()
	w := watcher.New(stream, registry, det, store, listings, snapshots, logger)

	if err := w.Initialize(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to initialize watcher")
	}

	// Consumers
	autoTrader := executor.NewAutoTrader(exec, decimal.NewFromFloat(cfg.Trading.SnipeQuoteAmount), logger)
	mon := monitor.New(store, exec, logger)

	go w.Run(ctx)
	go autoTrader.Run(ctx, listings)
	go mon.Run(ctx, snapshots)

	// Start API server
	apiServer := api.NewServer(exec, store, mon, w, logger, fmt.Sprintf("%d", cfg.Server.Port), cfg.Server.AuthSecret)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Wait for interrupt signal or a permanently dead stream
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Sniper is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-stream.Down():
		logger.Error("Stream permanently down, shutting down")
	}

	// Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown failed")
	}

	logger.Info("Sniper stopped")
}
