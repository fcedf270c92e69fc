package models

import "fmt"

// Target is one movie or episode a discovery attempt runs against. Episodes
// carry the official season/episode numbering plus the airing-order absolute
// index some providers use instead.
type Target struct {
	CatalogID       int64  `json:"catalogId"`
	Title           string `json:"title,omitempty"`
	Season          int    `json:"season,omitempty"`
	Episode         int    `json:"episode,omitempty"`
	AbsoluteEpisode int    `json:"absoluteEpisode,omitempty"`
}

// IsEpisode reports whether the target is an episode rather than a movie.
func (t Target) IsEpisode() bool {
	return t.Season > 0 && t.Episode > 0
}

// Key is the natural uniqueness key used by the persistence layer.
func (t Target) Key() string {
	if t.IsEpisode() {
		return fmt.Sprintf("episode:%d:%d:%d", t.CatalogID, t.Season, t.Episode)
	}
	return fmt.Sprintf("movie:%d", t.CatalogID)
}

// HasIndexFallback reports whether an airing-order retry is worth attempting:
// the absolute index must be known and differ from the primary numbering.
func (t Target) HasIndexFallback() bool {
	if !t.IsEpisode() || t.AbsoluteEpisode <= 0 {
		return false
	}
	return t.AbsoluteEpisode != t.Episode || t.Season != 1
}

// IndexFallback returns the airing-order variant of an episode target.
// Providers that count episodes by airing order treat the whole run as one
// season, so the fallback is season 1 with the absolute index.
func (t Target) IndexFallback() Target {
	f := t
	f.Season = 1
	f.Episode = t.AbsoluteEpisode
	return f
}
