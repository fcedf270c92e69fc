package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardiwn/mediaharvest/internal/capture"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mediaharvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertSourceInsertAndRead(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ref := capture.ManifestRef{
		Kind:    capture.ManifestMaster,
		URL:     "https://cdn.example/master.m3u8",
		Headers: map[string]string{"Referer": "https://vidora.example/", "X-Token": "abc"},
	}

	id, err := s.UpsertSource(ctx, "movie:550", "vidora", ref)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetSource(ctx, "movie:550", "vidora")
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestUpsertSourceMasterNeverDowngraded(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	master := capture.ManifestRef{Kind: capture.ManifestMaster, URL: "https://cdn.example/master.m3u8"}
	media := capture.ManifestRef{Kind: capture.ManifestMedia, URL: "https://cdn.example/media.m3u8"}

	id1, err := s.UpsertSource(ctx, "episode:100:1:5", "vidora", master)
	require.NoError(t, err)

	id2, err := s.UpsertSource(ctx, "episode:100:1:5", "vidora", media)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetSource(ctx, "episode:100:1:5", "vidora")
	require.NoError(t, err)
	assert.Equal(t, capture.ManifestMaster, got.Kind)
	assert.Equal(t, master.URL, got.URL)
}

func TestUpsertSourceMediaUpgradesToMaster(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	media := capture.ManifestRef{Kind: capture.ManifestMedia, URL: "https://cdn.example/media.m3u8"}
	master := capture.ManifestRef{Kind: capture.ManifestMaster, URL: "https://cdn.example/master.m3u8"}

	id1, err := s.UpsertSource(ctx, "movie:550", "vidora", media)
	require.NoError(t, err)

	id2, err := s.UpsertSource(ctx, "movie:550", "vidora", master)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetSource(ctx, "movie:550", "vidora")
	require.NoError(t, err)
	assert.Equal(t, capture.ManifestMaster, got.Kind)
	assert.Equal(t, master.URL, got.URL)
}

func TestUpsertSourceKeyedPerProvider(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ref := capture.ManifestRef{Kind: capture.ManifestMaster, URL: "https://cdn.example/master.m3u8"}

	idA, err := s.UpsertSource(ctx, "movie:550", "vidora", ref)
	require.NoError(t, err)
	idB, err := s.UpsertSource(ctx, "movie:550", "embedrise", ref)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sources)
}

func TestUpsertSubtitleReplacesContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.UpsertSource(ctx, "movie:550", "vidora",
		capture.ManifestRef{Kind: capture.ManifestMaster, URL: "https://cdn.example/master.m3u8"})
	require.NoError(t, err)

	require.NoError(t, s.UpsertSubtitle(ctx, id, "en", "WEBVTT\n\nold"))
	require.NoError(t, s.UpsertSubtitle(ctx, id, "en", "WEBVTT\n\nnew"))
	require.NoError(t, s.UpsertSubtitle(ctx, id, "es", "WEBVTT\n\notro"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Subtitles)
}

func TestListPendingAndMarkChecked(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	movie := models.Target{CatalogID: 550, Title: "Some Film"}
	episode := models.Target{CatalogID: 100, Title: "Some Show", Season: 1, Episode: 5, AbsoluteEpisode: 5}

	require.NoError(t, s.UpsertMediaItem(ctx, movie))
	require.NoError(t, s.UpsertMediaItem(ctx, episode))

	pending, err := s.ListPending(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.MarkChecked(ctx, movie.Key()))

	pending, err = s.ListPending(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, episode.Key(), pending[0].Key())
	assert.Equal(t, 5, pending[0].AbsoluteEpisode)
}

func TestListPendingReturnsStaleItems(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	target := models.Target{CatalogID: 550}
	require.NoError(t, s.UpsertMediaItem(ctx, target))
	require.NoError(t, s.MarkChecked(ctx, target.Key()))

	// Freshly checked items stay out until they go stale.
	pending, err := s.ListPending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = s.ListPending(ctx, -time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestUpsertMediaItemIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	target := models.Target{CatalogID: 550, Title: "Old Title"}
	require.NoError(t, s.UpsertMediaItem(ctx, target))
	require.NoError(t, s.MarkChecked(ctx, target.Key()))

	target.Title = "New Title"
	require.NoError(t, s.UpsertMediaItem(ctx, target))

	// Re-ingestion must not reset last_checked.
	pending, err := s.ListPending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.MediaItems)
}
