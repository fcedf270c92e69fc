package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ardiwn/mediaharvest/internal/capture"
	"github.com/ardiwn/mediaharvest/internal/catalog"
	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/common/messaging"
	"github.com/ardiwn/mediaharvest/internal/store"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/sirupsen/logrus"
)

// Routing keys for the harvester queues
const (
	CommandsRoutingKey = "commands.harvester"
	SourcesRoutingKey  = "sources.captured"
	LogRoutingKey      = "harvester.log"
)

// HarvesterService consumes discovery commands, selects targets and runs the
// capture orchestrator over them in controlled batches.
type HarvesterService struct {
	batchCfg  *config.BatchConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logrus.Logger
	message   messaging.Client

	store        *store.Store
	orchestrator *capture.Orchestrator
	pool         *capture.Pool
	ingester     *catalog.Ingester

	// Cancellation for the running batch; checked between items, never
	// preemptive mid-job. batchMu guards cancelFunc and stopping: commands
	// arrive on the consumer goroutine while Stop runs on the main one.
	batchMu    sync.Mutex
	cancelFunc context.CancelFunc
	stopping   bool
	wg         sync.WaitGroup
}

func NewHarvesterService(
	batchCfg *config.BatchConfig,
	rabbitCfg *config.RabbitMQConfig,
	log *logrus.Logger,
	msg messaging.Client,
	st *store.Store,
	orchestrator *capture.Orchestrator,
	pool *capture.Pool,
	ingester *catalog.Ingester,
) *HarvesterService {
	return &HarvesterService{
		batchCfg:     batchCfg,
		rabbitCfg:    rabbitCfg,
		log:          log,
		message:      msg,
		store:        st,
		orchestrator: orchestrator,
		pool:         pool,
		ingester:     ingester,
	}
}

// Start sets up the messaging infrastructure and begins consuming commands.
func (s *HarvesterService) Start() error {
	if err := s.setupMessaging(); err != nil {
		return fmt.Errorf("failed to set up messaging: %w", err)
	}

	return s.message.Consume(s.rabbitCfg.Queue.CommandQueue, s.handleCommand)
}

// Stop cancels any running batch and waits for it to drain. Once called,
// later start commands are ignored.
func (s *HarvesterService) Stop() {
	s.batchMu.Lock()
	s.stopping = true
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.batchMu.Unlock()

	s.wg.Wait()
	s.pool.Shutdown()
	s.log.Info("Harvester service stopped gracefully")
}

func (s *HarvesterService) setupMessaging() error {
	queues := []struct {
		name       string
		routingKey string
	}{
		{s.rabbitCfg.Queue.CommandQueue, CommandsRoutingKey},
		{s.rabbitCfg.Queue.SourceQueue, SourcesRoutingKey},
		{s.rabbitCfg.Queue.LogQueue, LogRoutingKey},
	}

	for _, q := range queues {
		if err := s.message.DeclareQueue(q.name); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := s.message.BindQueue(q.name, s.rabbitCfg.Exchange, q.routingKey); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.name, err)
		}
	}

	return nil
}

// handleCommand processes incoming commands
func (s *HarvesterService) handleCommand(msg []byte) error {
	var command models.DiscoveryCommand
	if err := json.Unmarshal(msg, &command); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	s.log.WithField("action", command.Action).Info("Received command")

	switch command.Action {
	case models.StartDiscoveryAction:
		s.batchMu.Lock()
		if s.stopping {
			s.batchMu.Unlock()
			s.log.Info("Service is stopping; ignoring start command")
			return nil
		}
		if s.cancelFunc != nil {
			s.log.Info("A batch is already running; stopping it first")
			s.cancelFunc()
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.cancelFunc = cancel
		// Add must happen under the lock so Stop never begins waiting while
		// a start command is mid-flight.
		s.wg.Add(1)
		s.batchMu.Unlock()

		go func() {
			defer s.wg.Done()
			s.runBatch(ctx, command.Data)
		}()
		return nil

	case models.StopDiscoveryAction:
		s.batchMu.Lock()
		if s.cancelFunc != nil {
			s.log.Info("Stopping the running batch")
			s.cancelFunc()
			s.cancelFunc = nil
		} else {
			s.log.Info("No batch is running")
		}
		s.batchMu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown command: %s", command.Action)
	}
}

// runBatch resolves the command into targets and discovers sources for each,
// one target at a time. Each target already fans out several browser
// contexts, so the outer loop is deliberately serial.
func (s *HarvesterService) runBatch(ctx context.Context, data models.DiscoveryData) {
	defer s.pool.Shutdown()

	targets, err := s.resolveTargets(ctx, data)
	if err != nil {
		s.log.WithError(err).Error("Could not resolve batch targets")
		return
	}
	if len(targets) == 0 {
		s.log.Info("Nothing to discover")
		return
	}

	s.log.WithField("targets", len(targets)).Info("Starting discovery batch")

	stats := models.Stats{TargetsTotal: len(targets)}

	for start := 0; start < len(targets); start += s.chunkSize() {
		end := start + s.chunkSize()
		if end > len(targets) {
			end = len(targets)
		}

		for _, target := range targets[start:end] {
			// Cooperative stop between items; in-flight jobs finish.
			if ctx.Err() != nil {
				s.log.Info("Batch stopped by command")
				return
			}

			s.discoverTarget(ctx, target, data.Providers, &stats)

			select {
			case <-ctx.Done():
				s.log.Info("Batch stopped during pause")
				return
			case <-time.After(s.batchCfg.ItemPause()):
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"targets": stats.TargetsProcessed,
		"sources": stats.SourcesFound,
	}).Info("Discovery batch complete")
}

// discoverTarget runs one target through the orchestrator and persists the
// results. No failure here is allowed to end the batch.
func (s *HarvesterService) discoverTarget(ctx context.Context, target models.Target, providers []string, stats *models.Stats) {
	log := s.log.WithField("target", target.Key())

	sources, err := s.orchestrator.Discover(ctx, target, providers)
	if err != nil {
		log.WithError(err).Error("Discovery misconfigured")
		s.publishLog("error", target, err, stats)
		return
	}

	stats.TargetsProcessed++

	for _, src := range sources {
		sourceID, err := s.store.UpsertSource(ctx, target.Key(), src.Provider, src.Manifest)
		if err != nil {
			log.WithError(err).WithField("provider", src.Provider).Error("Failed to persist source")
			continue
		}
		if src.Subtitle != "" {
			if err := s.store.UpsertSubtitle(ctx, sourceID, src.SubtitleLang, src.Subtitle); err != nil {
				log.WithError(err).WithField("provider", src.Provider).Error("Failed to persist subtitle")
			}
		}

		stats.SourcesFound++
		s.publishSource(target, src)
	}

	if err := s.store.MarkChecked(ctx, target.Key()); err != nil {
		log.WithError(err).Warn("Could not stamp target")
	}

	if len(sources) == 0 {
		// A valid outcome: the target has no source today and will be
		// retried on the next scheduled run.
		log.Info("No sources found")
		s.publishLog("empty", target, nil, stats)
		return
	}

	log.WithField("sources", len(sources)).Info("Target discovered")
	s.publishLog("success", target, nil, stats)
}

// resolveTargets turns command data into concrete targets, ingesting catalog
// metadata as needed. An empty command falls back to pending/stale items.
func (s *HarvesterService) resolveTargets(ctx context.Context, data models.DiscoveryData) ([]models.Target, error) {
	var targets []models.Target

	for _, id := range data.MovieIDs {
		target, err := s.ingester.IngestMovie(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("movie", id).Warn("Skipping movie")
			continue
		}
		targets = append(targets, target)
	}

	if data.SeriesID != 0 {
		episodes, err := s.ingester.IngestSeries(ctx, data.SeriesID, data.Season)
		if err != nil {
			return nil, err
		}
		targets = append(targets, episodes...)
	}

	if len(targets) > 0 {
		return targets, nil
	}

	return s.store.ListPending(ctx, s.batchCfg.StaleAfter(), s.batchCfg.PendingLimit)
}

func (s *HarvesterService) chunkSize() int {
	if s.batchCfg.ChunkSize < 1 {
		return 1
	}
	return s.batchCfg.ChunkSize
}

func (s *HarvesterService) publishSource(target models.Target, src capture.Source) {
	s.message.PublishJSON(s.rabbitCfg.Exchange, SourcesRoutingKey, models.SourceEvent{
		TargetKey: target.Key(),
		Provider:  src.Provider,
		Kind:      string(src.Manifest.Kind),
		URL:       src.Manifest.URL,
		Headers:   src.Manifest.Headers,
		Subtitle:  src.Subtitle != "",
	})
}

func (s *HarvesterService) publishLog(status string, target models.Target, err error, stats *models.Stats) {
	entry := models.DiscoveryLog{
		Status: status,
		Target: target,
		Stats:  stats,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	s.message.PublishJSON(s.rabbitCfg.Exchange, LogRoutingKey, entry)
}
