package main

import (
	"fmt"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/common/logger"
	"github.com/ardiwn/mediaharvest/internal/common/messaging"
	"github.com/ardiwn/mediaharvest/internal/store"
	"github.com/ardiwn/mediaharvest/internal/web/handler"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	webCfg := cfg.GetWebPanelConfig()

	// Initialize logger
	log := logger.New(cfg)

	// Initialize message client
	msgClient, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig())
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ client: %v", err)
	}
	defer msgClient.Close()

	// Open the store for the stats endpoint
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Initialize the gin router
	r := gin.Default()

	// Setup Handlers
	h := handler.NewHandler(cfg.GetRabbitMQConfig(), cfg.GetBatchConfig(), log, msgClient, st)

	// Register routes
	h.RegisterRoutes(r)

	// Start the web server
	addr := fmt.Sprintf("%s:%d", webCfg.Host, webCfg.Port)
	log.Infof("Starting web server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start web server: %v", err)
	}
}
