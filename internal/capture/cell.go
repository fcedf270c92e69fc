package capture

import "sync"

type cellState int

const (
	cellEmpty cellState = iota
	cellMedia
	cellMaster
)

// captureCell is the single-assignment result slot shared between the network
// listener and the job's capture race. The manifest slot moves
// empty -> media -> master and never downgrades; the subtitle slot keeps the
// most recent payload, since the last request belongs to the active track.
type captureCell struct {
	mu       sync.Mutex
	state    cellState
	manifest ManifestRef

	subtitle     string
	subtitleLang string

	hit  chan struct{}
	once sync.Once
}

func newCaptureCell() *captureCell {
	return &captureCell{hit: make(chan struct{})}
}

// observeManifest applies the upgrade rule and signals the capture race on
// the first accepted manifest of any kind.
func (c *captureCell) observeManifest(kind ManifestKind, url string, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == cellMaster:
		return
	case kind == ManifestMaster:
		c.state = cellMaster
	case c.state == cellEmpty:
		c.state = cellMedia
	default:
		return
	}

	c.manifest = ManifestRef{Kind: kind, URL: url, Headers: headers}
	c.once.Do(func() { close(c.hit) })
}

func (c *captureCell) observeSubtitle(lang, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subtitle = payload
	c.subtitleLang = lang
}

// snapshot returns the resolved manifest and subtitle, if any manifest was
// accepted.
func (c *captureCell) snapshot() (manifest ManifestRef, subtitle, lang string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == cellEmpty {
		return ManifestRef{}, "", "", false
	}
	return c.manifest, c.subtitle, c.subtitleLang, true
}
