// Package store is the persistence adapter: idempotent upserts for captured
// sources and subtitles, plus the catalog rows the batch driver selects
// targets from.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardiwn/mediaharvest/internal/capture"
	"github.com/ardiwn/mediaharvest/pkg/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS media_items (
	target_key   TEXT PRIMARY KEY,
	catalog_id   INTEGER NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	season       INTEGER NOT NULL DEFAULT 0,
	episode      INTEGER NOT NULL DEFAULT 0,
	absolute_ep  INTEGER NOT NULL DEFAULT 0,
	last_checked TEXT
);

CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	target_key   TEXT NOT NULL,
	provider     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	url          TEXT NOT NULL,
	headers_json TEXT NOT NULL DEFAULT '{}',
	updated_at   TEXT NOT NULL,
	UNIQUE (target_key, provider)
);

CREATE TABLE IF NOT EXISTS subtitles (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	language   TEXT NOT NULL,
	content    TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (source_id, language)
);
`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSource records a captured manifest for (target, provider) and returns
// the source id. A stored master manifest is never downgraded: the row only
// changes when the incoming kind is master or matches the existing kind.
func (s *Store) UpsertSource(ctx context.Context, targetKey, provider string, m capture.ManifestRef) (string, error) {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return "", fmt.Errorf("encoding headers: %w", err)
	}

	var (
		id   string
		kind string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, kind FROM sources WHERE target_key = ? AND provider = ?`,
		targetKey, provider,
	).Scan(&id, &kind)

	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sources (id, target_key, provider, kind, url, headers_json, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, targetKey, provider, string(m.Kind), m.URL, string(headers), now(),
		)
		if err != nil {
			return "", fmt.Errorf("inserting source: %w", err)
		}
		return id, nil

	case err != nil:
		return "", fmt.Errorf("selecting source: %w", err)
	}

	if capture.ManifestKind(kind) == capture.ManifestMaster && m.Kind != capture.ManifestMaster {
		// Conflict resolved by policy, not surfaced as an error.
		return id, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sources SET kind = ?, url = ?, headers_json = ?, updated_at = ? WHERE id = ?`,
		string(m.Kind), m.URL, string(headers), now(), id,
	)
	if err != nil {
		return "", fmt.Errorf("updating source: %w", err)
	}
	return id, nil
}

// GetSource loads a stored manifest for (target, provider).
func (s *Store) GetSource(ctx context.Context, targetKey, provider string) (capture.ManifestRef, error) {
	var (
		kind    string
		url     string
		headers string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, url, headers_json FROM sources WHERE target_key = ? AND provider = ?`,
		targetKey, provider,
	).Scan(&kind, &url, &headers)
	if err != nil {
		return capture.ManifestRef{}, err
	}

	ref := capture.ManifestRef{Kind: capture.ManifestKind(kind), URL: url}
	if err := json.Unmarshal([]byte(headers), &ref.Headers); err != nil {
		return capture.ManifestRef{}, fmt.Errorf("decoding headers: %w", err)
	}
	return ref, nil
}

// UpsertSubtitle stores canonical caption content for (source, language),
// replacing any previous content.
func (s *Store) UpsertSubtitle(ctx context.Context, sourceID, language, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subtitles (id, source_id, language, content, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, language) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		uuid.New().String(), sourceID, language, content, now(),
	)
	if err != nil {
		return fmt.Errorf("upserting subtitle: %w", err)
	}
	return nil
}

// UpsertMediaItem records a catalog row as eligible for discovery. Ingestion
// re-runs are idempotent; last_checked is preserved on conflict.
func (s *Store) UpsertMediaItem(ctx context.Context, t models.Target) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_items (target_key, catalog_id, title, season, episode, absolute_ep)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (target_key) DO UPDATE SET title = excluded.title, absolute_ep = excluded.absolute_ep`,
		t.Key(), t.CatalogID, t.Title, t.Season, t.Episode, t.AbsoluteEpisode,
	)
	if err != nil {
		return fmt.Errorf("upserting media item: %w", err)
	}
	return nil
}

// ListPending returns targets that were never checked or whose last check is
// older than staleAfter, oldest first.
func (s *Store) ListPending(ctx context.Context, staleAfter time.Duration, limit int) ([]models.Target, error) {
	cutoff := time.Now().UTC().Add(-staleAfter).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog_id, title, season, episode, absolute_ep
		 FROM media_items
		 WHERE last_checked IS NULL OR last_checked < ?
		 ORDER BY last_checked IS NOT NULL, last_checked
		 LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.CatalogID, &t.Title, &t.Season, &t.Episode, &t.AbsoluteEpisode); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// MarkChecked stamps a target after a discovery attempt, successful or not.
func (s *Store) MarkChecked(ctx context.Context, targetKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE media_items SET last_checked = ? WHERE target_key = ?`,
		now(), targetKey,
	)
	return err
}

// Stats summarizes the store for the control panel.
type Stats struct {
	MediaItems int `json:"mediaItems"`
	Sources    int `json:"sources"`
	Subtitles  int `json:"subtitles"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM media_items),
			(SELECT COUNT(*) FROM sources),
			(SELECT COUNT(*) FROM subtitles)`)
	if err := row.Scan(&st.MediaItems, &st.Sources, &st.Subtitles); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
