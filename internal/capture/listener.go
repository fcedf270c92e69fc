package capture

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// playlistMIMEs are the content types providers serve HLS playlists under.
var playlistMIMEs = map[string]bool{
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"application/mpegurl":           true,
	"audio/mpegurl":                 true,
	"audio/x-mpegurl":               true,
}

// genericTextMIMEs are types some CDNs hide playlists behind. A response
// under one of these still classifies if its body carries the HLS markers.
var genericTextMIMEs = map[string]bool{
	"text/plain":               true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
}

const (
	hlsHeaderMarker    = "#EXTM3U"
	streamVariantMark  = "#EXT-X-STREAM-INF"
	segmentInfoMark    = "#EXTINF"
	targetDurationMark = "#EXT-X-TARGETDURATION"
)

// classifyManifest inspects a response and decides whether it is an HLS
// playlist, and which flavor. The content type gates the check but the body
// markers are authoritative: a master playlist under text/plain is still a
// master playlist.
func classifyManifest(contentType, body string) (ManifestKind, bool) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !playlistMIMEs[mime] && !genericTextMIMEs[mime] {
		return "", false
	}

	trimmed := strings.TrimLeft(body, "\uFEFF \t\r\n")
	if !strings.HasPrefix(trimmed, hlsHeaderMarker) {
		return "", false
	}
	if strings.Contains(trimmed, streamVariantMark) {
		return ManifestMaster, true
	}
	if strings.Contains(trimmed, segmentInfoMark) || strings.Contains(trimmed, targetDurationMark) {
		return ManifestMedia, true
	}
	return "", false
}

// isSubtitleURL matches the known subtitle endpoint shapes: caption file
// extensions or the sub= track query parameter.
func isSubtitleURL(raw string) bool {
	parts := strings.SplitN(raw, "?", 2)
	switch strings.ToLower(path.Ext(parts[0])) {
	case ".vtt", ".srt":
		return true
	}
	return len(parts) == 2 && strings.Contains(parts[1], "sub=")
}

// isManifestCandidate decides whether a response body is worth fetching.
func isManifestCandidate(mimeType, url string) bool {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	return playlistMIMEs[mime] || strings.Contains(url, ".m3u8")
}

type candidateKind int

const (
	candidateNone candidateKind = iota
	candidateManifest
	candidateSubtitle
)

type observedRequest struct {
	url       string
	mimeType  string
	headers   map[string]string
	candidate candidateKind
}

// attachListener wires the network capture listener to a page. It classifies
// responses into manifest and subtitle candidates, fetches their bodies once
// loading finishes, and writes accepted results into the cell. Body fetches
// run in their own goroutines so page execution is never blocked.
func attachListener(ctx context.Context, spec provider.Spec, cell *captureCell, log *logrus.Entry) {
	var mu sync.Mutex
	requests := make(map[network.RequestID]*observedRequest)

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			mu.Lock()
			requests[e.RequestID] = &observedRequest{
				url:     e.Request.URL,
				headers: flattenHeaders(e.Request.Headers),
			}
			mu.Unlock()

		case *network.EventResponseReceived:
			mu.Lock()
			req, ok := requests[e.RequestID]
			if !ok {
				req = &observedRequest{url: e.Response.URL}
				requests[e.RequestID] = req
			}
			req.mimeType = e.Response.MimeType
			switch {
			case isSubtitleURL(req.url):
				req.candidate = candidateSubtitle
			case isManifestCandidate(e.Response.MimeType, req.url):
				req.candidate = candidateManifest
			}
			mu.Unlock()

		case *network.EventLoadingFinished:
			mu.Lock()
			req, ok := requests[e.RequestID]
			if ok {
				delete(requests, e.RequestID)
			}
			mu.Unlock()
			if !ok || req.candidate == candidateNone {
				return
			}
			// The body is only retrievable once loading finished; fetch it
			// off the event loop.
			go resolveCandidate(ctx, e.RequestID, req, spec, cell, log)
		}
	})
}

func resolveCandidate(ctx context.Context, id network.RequestID, req *observedRequest, spec provider.Spec, cell *captureCell, log *logrus.Entry) {
	body, err := fetchBody(ctx, id)
	if err != nil {
		if !isIgnorableRace(err) {
			log.WithError(err).WithField("url", req.url).Debug("Could not read response body")
		}
		return
	}

	switch req.candidate {
	case candidateSubtitle:
		lang := spec.MatchSubtitleLanguage(req.url)
		cell.observeSubtitle(lang, body)
		log.WithFields(logrus.Fields{"url": req.url, "lang": lang}).Debug("Captured subtitle payload")

	case candidateManifest:
		kind, ok := classifyManifest(req.mimeType, body)
		if !ok {
			return
		}
		cell.observeManifest(kind, req.url, req.headers)
		log.WithFields(logrus.Fields{"url": req.url, "kind": kind}).Debug("Captured manifest")
	}
}

func fetchBody(ctx context.Context, id network.RequestID) (string, error) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return "", fmt.Errorf("no browser target")
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// flattenHeaders converts CDP request headers into a plain map without
// touching case or membership; downstream segment fetches replay them as-is.
func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}
