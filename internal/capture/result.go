// Package capture drives headless browser contexts against provider embed
// pages and extracts HLS manifests plus subtitle tracks from their network
// traffic.
package capture

import "time"

// ManifestKind discriminates HLS playlist flavors.
type ManifestKind string

const (
	// ManifestMaster lists variant streams.
	ManifestMaster ManifestKind = "master"
	// ManifestMedia lists segments directly.
	ManifestMedia ManifestKind = "media"
)

// ManifestRef points at a captured playlist. Headers are the request headers
// observed at capture time, kept verbatim: the provider CDNs require them to
// be replayed on every downstream segment fetch.
type ManifestRef struct {
	Kind    ManifestKind      `json:"kind"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// CaptureJob is one attempt against one provider for one target.
type CaptureJob struct {
	ID       string
	Provider string
	EmbedURL string
	// Wait is the wall-clock budget for a manifest to appear.
	Wait time.Duration
}

// FailureReason classifies why a job produced no manifest.
type FailureReason string

const (
	ReasonUnknownProvider FailureReason = "unknown provider"
	ReasonBrowser         FailureReason = "browser setup"
	ReasonNavigation      FailureReason = "navigation failure"
	ReasonManifestTimeout FailureReason = "manifest timeout"
	ReasonCanceled        FailureReason = "canceled"
	ReasonInternal        FailureReason = "internal error"
)

// CaptureResult is the exhaustive outcome of a job. Either Success is true
// and Manifest is set, or Reason explains the failure. Jobs never surface
// errors any other way.
type CaptureResult struct {
	Provider     string
	Success      bool
	Manifest     ManifestRef
	Subtitle     string // raw subtitle payload, empty when none was seen
	SubtitleLang string
	Reason       FailureReason
	Err          error
}

// Failure builds a failed result.
func Failure(provider string, reason FailureReason, err error) CaptureResult {
	return CaptureResult{Provider: provider, Reason: reason, Err: err}
}
