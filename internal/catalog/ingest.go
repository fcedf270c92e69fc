package catalog

import (
	"context"
	"fmt"

	"github.com/ardiwn/mediaharvest/internal/store"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/sirupsen/logrus"
)

// Ingester turns catalog entries into media_items rows the batch driver can
// select from.
type Ingester struct {
	client *Client
	store  *store.Store
	log    *logrus.Logger
}

func NewIngester(client *Client, st *store.Store, log *logrus.Logger) *Ingester {
	return &Ingester{client: client, store: st, log: log}
}

// IngestMovie records one movie target and returns it.
func (i *Ingester) IngestMovie(ctx context.Context, id int64) (models.Target, error) {
	movie, err := i.client.MovieDetails(ctx, id)
	if err != nil {
		return models.Target{}, fmt.Errorf("fetching movie %d: %w", id, err)
	}

	target := models.Target{CatalogID: movie.ID, Title: movie.Title}
	if err := i.store.UpsertMediaItem(ctx, target); err != nil {
		return models.Target{}, err
	}
	return target, nil
}

// IngestSeries expands a series (optionally one season) into episode targets
// and records them all.
func (i *Ingester) IngestSeries(ctx context.Context, seriesID int64, season int) ([]models.Target, error) {
	name, episodes, err := i.client.SeriesEpisodes(ctx, seriesID, season)
	if err != nil {
		return nil, fmt.Errorf("fetching series %d: %w", seriesID, err)
	}

	targets := make([]models.Target, 0, len(episodes))
	for _, ep := range episodes {
		target := models.Target{
			CatalogID:       seriesID,
			Title:           name,
			Season:          ep.Season,
			Episode:         ep.Episode,
			AbsoluteEpisode: ep.Absolute,
		}
		if err := i.store.UpsertMediaItem(ctx, target); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	i.log.WithFields(logrus.Fields{
		"series":   seriesID,
		"episodes": len(targets),
	}).Info("Series ingested")

	return targets, nil
}
