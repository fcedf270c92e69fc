package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// stealthScript runs before any page script in every context. It papers over
// the headless tells the embed players probe for and neuters popups.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
window.chrome = window.chrome || { runtime: {} };
window.open = () => null;
`

// blockedURLPatterns keeps image and font traffic out of every context; none
// of it can ever classify as a manifest or subtitle.
var blockedURLPatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.woff", "*.woff2"}

// Pool is the bounded set of concurrent browser contexts. One instance is
// shared for the lifetime of a batch: lazily started on the first job,
// explicitly drained and torn down when the batch completes.
type Pool struct {
	browserCfg *config.BrowserConfig
	captureCfg *config.CaptureConfig
	registry   *provider.Registry
	log        *logrus.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	// run executes one job inside an acquired slot. Tests swap it for an
	// instrumented fake; production uses runBrowserJob.
	run func(ctx context.Context, job CaptureJob) CaptureResult

	mu          sync.Mutex
	started     bool
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewPool creates a pool bounded at browserCfg.MaxContexts contexts.
func NewPool(browserCfg *config.BrowserConfig, captureCfg *config.CaptureConfig, registry *provider.Registry, log *logrus.Logger) *Pool {
	max := browserCfg.MaxContexts
	if max < 1 {
		max = 1
	}
	p := &Pool{
		browserCfg: browserCfg,
		captureCfg: captureCfg,
		registry:   registry,
		log:        log,
		sem:        make(chan struct{}, max),
	}
	p.run = p.runBrowserJob
	return p
}

// Submit blocks until a slot frees up, runs the job and returns its typed
// outcome. Every error is converted to a Failure at this boundary; nothing
// ever panics out of the pool.
func (p *Pool) Submit(ctx context.Context, job CaptureJob) CaptureResult {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Failure(job.Provider, ReasonCanceled, ctx.Err())
	}
	p.wg.Add(1)
	defer func() {
		<-p.sem
		p.wg.Done()
	}()

	return p.safeRun(ctx, job)
}

func (p *Pool) safeRun(ctx context.Context, job CaptureJob) (res CaptureResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(job.Provider, ReasonInternal, fmt.Errorf("capture panic: %v", r))
		}
	}()
	return p.run(ctx, job)
}

// Shutdown waits for in-flight jobs to drain, then closes the browser to
// free its OS processes. The pool restarts lazily on the next Submit.
func (p *Pool) Shutdown() {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.allocCancel()
	p.started = false
	p.allocCtx = nil
	p.allocCancel = nil
}

func (p *Pool) ensureStarted() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserAgent(p.browserCfg.UserAgent),
			chromedp.Flag("headless", p.browserCfg.Headless),
			chromedp.Flag("block-new-web-contents", true),
			chromedp.Flag("mute-audio", true),
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
		)
		p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		p.started = true
	}
	return p.allocCtx
}

// runBrowserJob owns one slot for the duration of one job: isolated context,
// hard reset (cookies cleared, cache disabled), listener attached,
// interaction fired off, then the race between the manifest signal and the
// provider's wait budget.
func (p *Pool) runBrowserJob(ctx context.Context, job CaptureJob) CaptureResult {
	spec, err := p.registry.Lookup(job.Provider)
	if err != nil {
		return Failure(job.Provider, ReasonUnknownProvider, err)
	}

	jobCtx, cancel := chromedp.NewContext(p.ensureStarted(), chromedp.WithLogf(p.log.Debugf))
	// The context handle is the one resource guaranteed cleaned up on every
	// path; cancel closes the page and target.
	defer cancel()

	log := p.log.WithFields(logrus.Fields{
		"provider": job.Provider,
		"job":      job.ID,
	})

	cell := newCaptureCell()
	attachListener(jobCtx, spec, cell, log)

	if err := chromedp.Run(jobCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		network.ClearBrowserCookies(),
		network.SetBlockedURLS(blockedURLPatterns),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	); err != nil {
		return Failure(job.Provider, ReasonBrowser, err)
	}

	// Interaction runs concurrently with the capture race below. Step
	// failures are logged inside; only a hard navigation failure comes back.
	navFailed := make(chan error, 1)
	go runInteraction(jobCtx, spec, job.EmbedURL, p.captureCfg.FirstClick(), navFailed, log)

	timer := time.NewTimer(job.Wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Failure(job.Provider, ReasonCanceled, ctx.Err())
	case <-jobCtx.Done():
		return Failure(job.Provider, ReasonNavigation, jobCtx.Err())
	case err := <-navFailed:
		log.WithError(err).Warn("Embed page unreachable")
		return Failure(job.Provider, ReasonNavigation, err)
	case <-timer.C:
		log.Warn("No manifest within budget")
		return Failure(job.Provider, ReasonManifestTimeout, nil)
	case <-cell.hit:
	}

	// Keep listening briefly after the first hit so a master playlist can
	// still displace an early media one.
	grace := time.NewTimer(p.captureCfg.CollectWindow())
	defer grace.Stop()
	select {
	case <-grace.C:
	case <-jobCtx.Done():
	}

	manifest, sub, lang, ok := cell.snapshot()
	if !ok {
		return Failure(job.Provider, ReasonManifestTimeout, nil)
	}

	log.WithFields(logrus.Fields{
		"kind":     manifest.Kind,
		"url":      manifest.URL,
		"subtitle": sub != "",
	}).Info("Captured manifest")

	return CaptureResult{
		Provider:     job.Provider,
		Success:      true,
		Manifest:     manifest,
		Subtitle:     sub,
		SubtitleLang: lang,
	}
}
