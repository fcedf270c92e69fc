package capture

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

const masterBody = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
720p/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1920x1080
1080p/playlist.m3u8
`

const mediaBody = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXTINF:5.960,
segment0.ts
#EXTINF:5.960,
segment1.ts
`

func TestClassifyManifestMaster(t *testing.T) {
	kind, ok := classifyManifest("application/vnd.apple.mpegurl", masterBody)
	assert.True(t, ok)
	assert.Equal(t, ManifestMaster, kind)
}

func TestClassifyManifestMasterUnderGenericTextType(t *testing.T) {
	// Some CDNs serve playlists as text/plain; the body markers win.
	kind, ok := classifyManifest("text/plain; charset=utf-8", masterBody)
	assert.True(t, ok)
	assert.Equal(t, ManifestMaster, kind)
}

func TestClassifyManifestMedia(t *testing.T) {
	kind, ok := classifyManifest("application/x-mpegurl", mediaBody)
	assert.True(t, ok)
	assert.Equal(t, ManifestMedia, kind)
}

func TestClassifyManifestRejectsWrongMIME(t *testing.T) {
	_, ok := classifyManifest("text/html", masterBody)
	assert.False(t, ok)
}

func TestClassifyManifestRejectsMissingMarker(t *testing.T) {
	_, ok := classifyManifest("application/x-mpegurl", "<html>not a playlist</html>")
	assert.False(t, ok)

	_, ok = classifyManifest("text/plain", "plain text body")
	assert.False(t, ok)
}

func TestIsSubtitleURL(t *testing.T) {
	assert.True(t, isSubtitleURL("https://cdn.example/captions/track.vtt"))
	assert.True(t, isSubtitleURL("https://cdn.example/captions/track.srt?x=1"))
	assert.True(t, isSubtitleURL("https://cdn.example/track?sub=en"))

	assert.False(t, isSubtitleURL("https://cdn.example/master.m3u8"))
	assert.False(t, isSubtitleURL("https://cdn.example/segment0.ts"))
}

func TestIsManifestCandidate(t *testing.T) {
	assert.True(t, isManifestCandidate("application/vnd.apple.mpegurl", "https://cdn.example/index"))
	assert.True(t, isManifestCandidate("text/plain", "https://cdn.example/master.m3u8?token=abc"))
	assert.False(t, isManifestCandidate("image/png", "https://cdn.example/poster.png"))
}

func TestFlattenHeadersVerbatim(t *testing.T) {
	// Header case and membership must survive exactly as captured; the CDN
	// requires them replayed on every segment fetch.
	in := network.Headers{
		"Referer":       "https://embedrise.com/",
		"X-Custom-Auth": "token-123",
		"user-agent":    "Mozilla/5.0",
	}

	out := flattenHeaders(in)
	assert.Equal(t, map[string]string{
		"Referer":       "https://embedrise.com/",
		"X-Custom-Auth": "token-123",
		"user-agent":    "Mozilla/5.0",
	}, out)
}
