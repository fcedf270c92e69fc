package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// runInteraction navigates the page and walks the provider's interaction
// steps in declared order. It runs concurrently with the manifest capture
// race: step failures never abort the job, because autoplaying providers may
// already be feeding the listener by the time a click times out. A hard
// navigation failure is reported through navFailed so the job resolves with
// the real reason instead of waiting out its manifest budget.
func runInteraction(ctx context.Context, spec provider.Spec, embedURL string, navTimeout time.Duration, navFailed chan<- error, log *logrus.Entry) {
	if err := navigate(ctx, embedURL, navTimeout); err != nil {
		if isIgnorableRace(err) {
			return
		}
		if isFatalNavigation(err) {
			select {
			case navFailed <- err:
			default:
			}
			return
		}
		// The DOM did not settle within budget; capture may still resolve
		// from traffic already in flight, so interaction continues.
		log.WithError(err).Warn("Navigation did not settle")
	}

	// Set once an enter-frame step runs; later selector queries are scoped
	// to the nested document.
	var frame *cdp.Node

	for _, step := range spec.Steps {
		if ctx.Err() != nil {
			return
		}

		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		var err error
		switch step.Kind {
		case provider.StepEnterFrame:
			frame, err = enterFrame(stepCtx, step.Selector)
		default:
			err = clickStep(stepCtx, step.Selector, frame)
		}
		cancel()

		if err == nil {
			log.WithField("step", step.Name).Debug("Interaction step done")
			continue
		}
		if isIgnorableRace(err) {
			// The page closed underneath us because capture already
			// resolved; not a failure.
			return
		}
		if step.Optional {
			log.WithField("step", step.Name).Debug("Optional step skipped")
			continue
		}
		log.WithError(err).WithField("step", step.Name).Warn("Required interaction step failed")
	}
}

// navigate starts navigation and waits only until the DOM is parseable.
// Embed players routinely keep connections open indefinitely, so waiting for
// the full load event would stall every job.
func navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return errors.New(errText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func clickStep(ctx context.Context, selector string, frame *cdp.Node) error {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}
	return chromedp.Run(ctx,
		chromedp.WaitVisible(selector, opts...),
		chromedp.Click(selector, opts...),
	)
}

func enterFrame(ctx context.Context, selector string) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("iframe %q not found", selector)
	}
	return nodes[0], nil
}

// isFatalNavigation separates navigation errors the page cannot recover from
// (DNS failure, connection refused, a Chrome error page) from a DOM that is
// merely slow to become parseable.
func isFatalNavigation(err error) bool {
	return !errors.Is(err, context.DeadlineExceeded)
}

// isIgnorableRace recognizes session/frame teardown errors that happen when
// the page closes mid-step, usually because capture already resolved and the
// job context was canceled. These are swallowed, not surfaced.
func isIgnorableRace(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	for _, frag := range []string{
		"target closed",
		"target crashed",
		"detached",
		"session closed",
		"context canceled",
		"No resource with given identifier",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
