package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ardiwn/mediaharvest/internal/capture"
	"github.com/ardiwn/mediaharvest/internal/catalog"
	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/common/logger"
	"github.com/ardiwn/mediaharvest/internal/common/messaging"
	"github.com/ardiwn/mediaharvest/internal/harvester/service"
	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/ardiwn/mediaharvest/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "harvester_main",
		"providers": cfg.Batch.Providers,
		"contexts":  cfg.Browser.MaxContexts,
	}).Debug("Configuration loaded")

	// Create a new RabbitMQ client
	messagingClient, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig())
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "harvester_main",
			"error":     err,
		}).Fatal("Failed to create RabbitMQ client")
	}
	defer messagingClient.Close()

	// Open the store
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "harvester_main",
			"error":     err,
		}).Fatal("Failed to open store")
	}
	defer st.Close()

	// Wire the capture engine
	registry := provider.Default(cfg.GetCaptureConfig())
	pool := capture.NewPool(cfg.GetBrowserConfig(), cfg.GetCaptureConfig(), registry, log)
	orchestrator := capture.NewOrchestrator(registry, pool, cfg.GetCaptureConfig(), log)
	ingester := catalog.NewIngester(catalog.NewClient(cfg.GetCatalogConfig(), nil), st, log)

	harvester := service.NewHarvesterService(
		cfg.GetBatchConfig(),
		cfg.GetRabbitMQConfig(),
		log,
		messagingClient,
		st,
		orchestrator,
		pool,
		ingester,
	)

	// Start the service
	if err := harvester.Start(); err != nil {
		log.WithFields(logrus.Fields{
			"component": "harvester_main",
			"error":     err,
		}).Fatal("Failed to start harvester service")
	}

	log.WithField("component", "harvester_main").Info("Harvester service started")

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.WithFields(logrus.Fields{
		"component": "harvester_main",
		"signal":    sig,
	}).Info("Received signal, shutting down")

	harvester.Stop()

	log.WithField("component", "harvester_main").Info("Harvester service stopped")
}
