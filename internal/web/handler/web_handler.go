package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/common/messaging"
	"github.com/ardiwn/mediaharvest/internal/store"
	"github.com/ardiwn/mediaharvest/internal/web/websocket"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Constants for the message routing
const (
	CommandsRoutingKey = "commands.harvester"
)

// Handler is the operational control panel: it publishes discovery commands,
// aggregates batch progress from the log queue and streams it to panel
// clients.
type Handler struct {
	rabbitCfg *config.RabbitMQConfig
	batchCfg  *config.BatchConfig
	log       *logrus.Logger
	msgClient messaging.Client
	store     *store.Store
	wsHub     *websocket.Hub

	statsMu   sync.Mutex
	lastStats models.Stats
}

func NewHandler(rabbitCfg *config.RabbitMQConfig, batchCfg *config.BatchConfig, log *logrus.Logger, msgClient messaging.Client, st *store.Store) *Handler {
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	h := &Handler{
		rabbitCfg: rabbitCfg,
		batchCfg:  batchCfg,
		log:       log,
		msgClient: msgClient,
		store:     st,
		wsHub:     wsHub,
	}

	h.setupLogConsumer()

	return h
}

// setupLogConsumer relays discovery logs to panel clients and keeps the last
// seen batch stats for the stats endpoint.
func (h *Handler) setupLogConsumer() {
	err := h.msgClient.Consume(h.rabbitCfg.Queue.LogQueue, func(message []byte) error {
		var entry models.DiscoveryLog
		if err := json.Unmarshal(message, &entry); err != nil {
			h.log.WithError(err).Error("Failed to unmarshal discovery log")
			return err
		}

		if entry.Stats != nil {
			h.statsMu.Lock()
			h.lastStats = *entry.Stats
			h.statsMu.Unlock()
		}

		wsMessage, err := json.Marshal(map[string]any{
			"type":     "discovery_log",
			"status":   entry.Status,
			"target":   entry.Target,
			"provider": entry.Provider,
			"error":    entry.Error,
			"stats":    entry.Stats,
		})
		if err != nil {
			return err
		}

		h.wsHub.Broadcast(wsMessage)
		return nil
	})

	if err != nil {
		h.log.WithError(err).Error("Failed to setup log consumer")
	}
}

// RegisterRoutes registers all the routes for the web handler
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", websocket.Handler(h.wsHub, h.log))

	api := r.Group("/api")
	{
		api.POST("/discover", h.StartDiscoveryHandler())
		api.POST("/stop", h.StopDiscoveryHandler())
		api.GET("/stats", h.GetStatsHandler())
	}
}

// StartDiscoveryHandler publishes a start command for the harvester.
func (h *Handler) StartDiscoveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			MovieIDs  []int64  `json:"movie_ids"`
			SeriesID  int64    `json:"series_id"`
			Season    int      `json:"season"`
			Providers []string `json:"providers"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if len(req.Providers) == 0 {
			req.Providers = h.batchCfg.Providers
		}

		command := models.DiscoveryCommand{
			Action: models.StartDiscoveryAction,
			Data: models.DiscoveryData{
				MovieIDs:  req.MovieIDs,
				SeriesID:  req.SeriesID,
				Season:    req.Season,
				Providers: req.Providers,
			},
		}

		if err := h.publishCommand(command); err != nil {
			h.log.WithError(err).Error("Failed to publish start command")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to start discovery",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Discovery started",
		})
	}
}

// StopDiscoveryHandler publishes a stop command for the harvester.
func (h *Handler) StopDiscoveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		command := models.DiscoveryCommand{
			Action: models.StopDiscoveryAction,
		}

		if err := h.publishCommand(command); err != nil {
			h.log.WithError(err).Error("Failed to publish stop command")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to stop discovery",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Stop command sent",
		})
	}
}

// GetStatsHandler returns store totals plus the latest batch progress.
func (h *Handler) GetStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		totals, err := h.store.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read stats",
			})
			return
		}

		h.statsMu.Lock()
		batch := h.lastStats
		h.statsMu.Unlock()

		c.JSON(http.StatusOK, gin.H{
			"store": totals,
			"batch": batch,
		})
	}
}

func (h *Handler) publishCommand(command models.DiscoveryCommand) error {
	return h.msgClient.PublishJSON(h.rabbitCfg.Exchange, CommandsRoutingKey, command)
}
