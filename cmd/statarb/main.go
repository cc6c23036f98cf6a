package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alphatrawler/statarb/api"
	"github.com/alphatrawler/statarb/internal/config"
	"github.com/alphatrawler/statarb/pkg/ingest"
	"github.com/alphatrawler/statarb/pkg/pipeline"
	"github.com/alphatrawler/statarb/pkg/store"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "statarb",
		Short: "Pairs-trading signal monitor",
		Long:  `Ingests a live trade feed over a websocket bridge, resamples it into bars, estimates a time-varying hedge ratio, and backtests the mean-reversion signal on the spread`,
		Run:   runMonitor,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runMonitor(cmd *cobra.Command, args []string) {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Local overrides for development
	_ = godotenv.Load()

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
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the tick/bar store
	st, err := store.OpenSQLite(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	// Start the ingestion bridge
	bridge := ingest.NewBridge(st, logger)
	if err := bridge.Start(ctx, cfg.Bridge.Port); err != nil {
		logger.WithError(err).Fatal("Failed to start bridge")
	}

	// Start the refresh cycle
	pipe, err := pipeline.New(cfg, st, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build pipeline")
	}
	runner := pipeline.NewRunner(pipe, cfg.Analytics.Refresh, logger)
	runner.Start(ctx)

	// Start API server
	apiServer := api.NewServer(runner, st, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.WithFields(logrus.Fields{
		"pair":      fmt.Sprintf("%s/%s", cfg.Pair.Target, cfg.Pair.Reference),
		"estimator": cfg.Analytics.Estimator,
	}).Info("Monitor is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	// Graceful shutdown: closing the bridge forces a final flush of any
	// buffered ticks before the store closes.
	bridge.Stop()
	runner.Stop()
	apiServer.Stop()
	cancel()

	logger.Info("Monitor stopped")
}
