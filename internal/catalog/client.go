// Package catalog talks to the external media database API and expands
// catalog entries into discovery targets.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/avast/retry-go/v4"
)

const apiBaseURL = "https://api.themoviedb.org/3"

// Client is a thin metadata client with rate limiting and retry on transient
// failures.
type Client struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func NewClient(cfg *config.CatalogConfig, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:      cfg.APIKey,
		language:    cfg.Language,
		baseURL:     apiBaseURL,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond,
	}
}

type Movie struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type seriesDetails struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Seasons []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
}

type seasonDetails struct {
	Episodes []struct {
		EpisodeNumber int `json:"episode_number"`
	} `json:"episodes"`
}

// Episode is one episode of a series with both numbering schemes.
type Episode struct {
	Season   int
	Episode  int
	Absolute int
}

// MovieDetails fetches a movie's metadata.
func (c *Client) MovieDetails(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	err := c.doGET(ctx, fmt.Sprintf("/movie/%d", id), &m)
	return m, err
}

// SeriesEpisodes expands a series into its episode list. The absolute index
// is the airing-order position across all regular seasons, which some
// providers use instead of the official season/episode numbering.
func (c *Client) SeriesEpisodes(ctx context.Context, seriesID int64, seasonFilter int) (string, []Episode, error) {
	var details seriesDetails
	if err := c.doGET(ctx, fmt.Sprintf("/tv/%d", seriesID), &details); err != nil {
		return "", nil, err
	}

	var episodes []Episode
	absolute := 0
	for _, season := range details.Seasons {
		if season.SeasonNumber == 0 {
			// Specials don't advance the airing-order count.
			continue
		}
		if seasonFilter > 0 && season.SeasonNumber != seasonFilter {
			absolute += season.EpisodeCount
			continue
		}

		var sd seasonDetails
		if err := c.doGET(ctx, fmt.Sprintf("/tv/%d/season/%d", seriesID, season.SeasonNumber), &sd); err != nil {
			return "", nil, err
		}
		for _, ep := range sd.Episodes {
			absolute++
			episodes = append(episodes, Episode{
				Season:   season.SeasonNumber,
				Episode:  ep.EpisodeNumber,
				Absolute: absolute,
			})
		}
	}

	return details.Name, episodes, nil
}

func (c *Client) doGET(ctx context.Context, endpoint string, v any) error {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}
	full := c.baseURL + endpoint + "?" + q.Encode()

	return retry.Do(
		func() error {
			c.throttle()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("catalog request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("catalog request failed: %s", resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) throttle() {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()
	if since := time.Since(c.lastRequest); since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
}
