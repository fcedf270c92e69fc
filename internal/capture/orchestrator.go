package capture

import (
	"context"
	"sync"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/ardiwn/mediaharvest/internal/subtitle"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Executor runs capture jobs. The pool implements it; tests substitute fakes.
type Executor interface {
	Submit(ctx context.Context, job CaptureJob) CaptureResult
}

// Source is one normalized discovery result for a target, ready for the
// persistence layer. Subtitle, when present, is already canonical WebVTT.
type Source struct {
	Provider     string
	Manifest     ManifestRef
	Subtitle     string
	SubtitleLang string
}

// Orchestrator fans one target out across providers and assembles whatever
// succeeded.
type Orchestrator struct {
	registry   *provider.Registry
	exec       Executor
	captureCfg *config.CaptureConfig
	log        *logrus.Logger
}

func NewOrchestrator(registry *provider.Registry, exec Executor, captureCfg *config.CaptureConfig, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		exec:       exec,
		captureCfg: captureCfg,
		log:        log,
	}
}

// Discover submits one job per provider concurrently and returns the
// successes. An empty slice is a normal outcome: the target has no source
// today and stays eligible for the next batch run. The only error case is an
// unknown provider code, which is a configuration bug, not a capture failure.
//
// When the primary episode numbering yields nothing, one retry is made with
// the airing-order index. Best effort: whether a provider counts episodes
// that way is unknowable without probing it.
func (o *Orchestrator) Discover(ctx context.Context, target models.Target, providers []string) ([]Source, error) {
	if len(providers) == 0 {
		providers = o.registry.Codes()
	}

	sources, err := o.attempt(ctx, target, providers)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 && target.HasIndexFallback() && ctx.Err() == nil {
		o.log.WithFields(logrus.Fields{
			"target":   target.Key(),
			"absolute": target.AbsoluteEpisode,
		}).Debug("Retrying with airing-order index")
		return o.attempt(ctx, target.IndexFallback(), providers)
	}
	return sources, nil
}

func (o *Orchestrator) attempt(ctx context.Context, target models.Target, providers []string) ([]Source, error) {
	jobs := make([]CaptureJob, 0, len(providers))
	for _, code := range providers {
		embedURL, err := o.registry.ResolveEmbedURL(code, target)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, CaptureJob{
			ID:       uuid.New().String(),
			Provider: code,
			EmbedURL: embedURL,
			Wait:     o.captureCfg.ManifestWait(code),
		})
	}

	// Await all jobs; a provider that fails costs nothing but its slot time,
	// and partial results are valid.
	results := make([]CaptureResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job CaptureJob) {
			defer wg.Done()
			results[i] = o.exec.Submit(ctx, job)
		}(i, job)
	}
	wg.Wait()

	sources := make([]Source, 0, len(results))
	for _, res := range results {
		if !res.Success {
			o.log.WithFields(logrus.Fields{
				"target":   target.Key(),
				"provider": res.Provider,
				"reason":   res.Reason,
			}).Debug("Provider yielded no source")
			continue
		}

		src := Source{Provider: res.Provider, Manifest: res.Manifest}
		if res.Subtitle != "" {
			src.Subtitle = subtitle.ToVTT(res.Subtitle)
			src.SubtitleLang = res.SubtitleLang
		}
		sources = append(sources, src)
	}
	return sources, nil
}
