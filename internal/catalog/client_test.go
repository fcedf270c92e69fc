package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(&config.CatalogConfig{APIKey: "test-key", Language: "en-US"}, srv.Client())
	c.baseURL = srv.URL
	c.minInterval = 0
	return c
}

func TestMovieDetails(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/550", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		fmt.Fprint(w, `{"id": 550, "title": "Fight Club"}`)
	}))

	m, err := c.MovieDetails(context.Background(), 550)
	require.NoError(t, err)
	assert.Equal(t, int64(550), m.ID)
	assert.Equal(t, "Fight Club", m.Title)
}

func seriesHandler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tv/100", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 100, "name": "Some Show",
			"seasons": [
				{"season_number": 0, "episode_count": 3},
				{"season_number": 1, "episode_count": 2},
				{"season_number": 2, "episode_count": 3}
			]
		}`)
	})
	mux.HandleFunc("/tv/100/season/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"episodes": [{"episode_number": 1}, {"episode_number": 2}]}`)
	})
	mux.HandleFunc("/tv/100/season/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"episodes": [{"episode_number": 1}, {"episode_number": 2}, {"episode_number": 3}]}`)
	})
	return mux
}

func TestSeriesEpisodesAbsoluteIndex(t *testing.T) {
	c := testClient(t, seriesHandler(t))

	name, episodes, err := c.SeriesEpisodes(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "Some Show", name)

	// Specials are skipped; the absolute index runs across regular seasons.
	require.Len(t, episodes, 5)
	assert.Equal(t, Episode{Season: 1, Episode: 1, Absolute: 1}, episodes[0])
	assert.Equal(t, Episode{Season: 1, Episode: 2, Absolute: 2}, episodes[1])
	assert.Equal(t, Episode{Season: 2, Episode: 1, Absolute: 3}, episodes[2])
	assert.Equal(t, Episode{Season: 2, Episode: 3, Absolute: 5}, episodes[4])
}

func TestSeriesEpisodesSeasonFilterKeepsAbsoluteOffset(t *testing.T) {
	c := testClient(t, seriesHandler(t))

	_, episodes, err := c.SeriesEpisodes(context.Background(), 100, 2)
	require.NoError(t, err)

	// Season 1's two episodes still advance the airing-order count.
	require.Len(t, episodes, 3)
	assert.Equal(t, Episode{Season: 2, Episode: 1, Absolute: 3}, episodes[0])
	assert.Equal(t, Episode{Season: 2, Episode: 3, Absolute: 5}, episodes[2])
}

func TestDoGETRetriesOnServerError(t *testing.T) {
	var calls int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id": 550, "title": "Fight Club"}`)
	}))

	m, err := c.MovieDetails(context.Background(), 550)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", m.Title)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestDoGETDoesNotRetryClientErrors(t *testing.T) {
	var calls int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.MovieDetails(context.Background(), 550)
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
