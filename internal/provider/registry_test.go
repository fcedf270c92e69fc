package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaptureConfig() *config.CaptureConfig {
	return &config.CaptureConfig{
		ManifestWaitSec: 30,
		CollectWindowMs: 100,
		FirstClickSec:   12,
		LongClickSec:    8,
		ShortClickSec:   4,
	}
}

func TestLookupUnknownProvider(t *testing.T) {
	r := Default(testCaptureConfig())

	_, err := r.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestResolveEmbedURLMovieHasNoEpisodeSegments(t *testing.T) {
	r := Default(testCaptureConfig())
	target := models.Target{CatalogID: 550}

	for _, code := range r.Codes() {
		url, err := r.ResolveEmbedURL(code, target)
		require.NoError(t, err, code)

		assert.Contains(t, url, "550", code)
		assert.NotContains(t, url, "{", code)
		assert.NotContains(t, url, "/season", code)
		// A movie URL must never contain episode path segments.
		assert.False(t, strings.HasSuffix(url, "/550/1/1"), code)
	}
}

func TestResolveEmbedURLEpisodeOrder(t *testing.T) {
	r := Default(testCaptureConfig())
	target := models.Target{CatalogID: 100, Season: 2, Episode: 7}

	for _, code := range r.Codes() {
		url, err := r.ResolveEmbedURL(code, target)
		require.NoError(t, err, code)

		// id/season/episode, in that order.
		assert.Contains(t, url, "100/2/7", code)
		assert.NotContains(t, url, "{", code)
	}
}

func TestResolveEmbedURLUnknownProvider(t *testing.T) {
	r := Default(testCaptureConfig())

	_, err := r.ResolveEmbedURL("ghost", models.Target{CatalogID: 1})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestMatchSubtitleLanguage(t *testing.T) {
	spec := Spec{
		SubtitleLangs: []LangPattern{
			{Match: "lang=es", Code: "es"},
			{Match: "lang=en", Code: "en"},
		},
	}

	assert.Equal(t, "es", spec.MatchSubtitleLanguage("https://cdn.example/sub.vtt?lang=es"))
	assert.Equal(t, "en", spec.MatchSubtitleLanguage("https://cdn.example/sub.vtt?lang=en"))
	// Unmatched URLs default to English.
	assert.Equal(t, "en", spec.MatchSubtitleLanguage("https://cdn.example/track.vtt"))
}

func TestRegistryOrderAndSteps(t *testing.T) {
	cfg := testCaptureConfig()
	r := Default(cfg)

	require.NotEmpty(t, r.Codes())

	for _, code := range r.Codes() {
		spec, err := r.Lookup(code)
		require.NoError(t, err)
		assert.Equal(t, code, spec.Code)
		assert.NotEmpty(t, spec.MovieURL)
		assert.NotEmpty(t, spec.EpisodeURL)

		for _, step := range spec.Steps {
			assert.Greater(t, step.Timeout, time.Duration(0), fmt.Sprintf("%s/%s", code, step.Name))
		}
	}
}
