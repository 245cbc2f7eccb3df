package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaewoongo/optfolio/internal/client"
	"github.com/jaewoongo/optfolio/internal/config"
	"github.com/jaewoongo/optfolio/internal/dashboard"
	"github.com/jaewoongo/optfolio/internal/logging"
	"github.com/jaewoongo/optfolio/internal/snapshot"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment.LogLevel, cfg.Environment.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	logger.Infof("Starting portfolio service for wallet %s", cfg.Wallet.Address)

	// Client stack: plain HTTP wrapped with retries, wrapped with a circuit
	// breaker.
	httpClient := client.NewHTTPClient(
		cfg.Protocol.MarketURL,
		cfg.Protocol.PositionsURL,
		cfg.Protocol.PoolAnalysisURL,
		cfg.RequestTimeout(),
		logger,
	)
	retrying := client.NewRetryClient(httpClient, logger)
	protocol := client.NewBreakerClient(retrying, logger)

	store, err := snapshot.NewStore(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open snapshot store")
	}
	if snap := store.Current(); snap != nil {
		logger.Infof("Loaded persisted snapshot %s from %s", snap.RunID, snap.FetchedAt.Format(time.RFC3339))
	}

	refresher := NewRefresher(protocol, store, logger, cfg.Wallet.Address, cfg.Assets.Decimals)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, store, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Dashboard server stopped")
			cancel()
		}
	}()

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping...")
		cancel()
	}()

	run(ctx, refresher, cfg.RefreshInterval(), logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Dashboard shutdown failed")
	}

	logger.Info("Stopped")
}

// run refreshes immediately, then on every tick until ctx is canceled. A
// failed cycle is logged and the previous snapshot keeps serving.
func run(ctx context.Context, refresher *Refresher, interval time.Duration, logger *logrus.Logger) {
	if err := refresher.RunCycle(ctx); err != nil {
		logger.WithError(err).Error("Initial refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresher.RunCycle(ctx); err != nil {
				logger.WithError(err).Error("Refresh cycle failed")
			}
		}
	}
}
