// Package provider holds the per-provider capture scripts: embed URL
// templates, ordered interaction steps and subtitle matching rules. The specs
// are static data loaded at process start; all behavior that interprets them
// lives in the capture package.
package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/pkg/models"
)

// ErrUnknownProvider is returned when a provider code is not registered.
// This is a configuration error, not a transient capture failure.
var ErrUnknownProvider = errors.New("unknown provider")

// StepKind discriminates interaction step types.
type StepKind int

const (
	// StepClick waits for the selector to become visible, then clicks it.
	StepClick StepKind = iota
	// StepEnterFrame switches the driver into the iframe matched by the
	// selector; following steps run inside that nested document.
	StepEnterFrame
)

// Step is one entry in a provider's interaction sequence.
type Step struct {
	Name     string
	Kind     StepKind
	Selector string
	// Optional steps are skipped silently when the selector never shows up
	// within budget. Required steps are logged but never abort the job.
	Optional bool
	Timeout  time.Duration
}

// LangPattern maps a substring of a subtitle request URL to a language code.
type LangPattern struct {
	Match string
	Code  string
}

// Spec is the full capture script for one provider.
type Spec struct {
	Code string
	Name string

	// Embed URL templates. Placeholders: {id}, {season}, {episode}.
	MovieURL   string
	EpisodeURL string

	Steps []Step

	// SubtitleLangs is checked in order against subtitle request URLs;
	// first match wins. An empty list means everything is tagged "en".
	SubtitleLangs []LangPattern
}

// MatchSubtitleLanguage tags a subtitle request URL with a language code.
func (s Spec) MatchSubtitleLanguage(url string) string {
	lowered := strings.ToLower(url)
	for _, p := range s.SubtitleLangs {
		if strings.Contains(lowered, p.Match) {
			return p.Code
		}
	}
	return "en"
}

// Registry is the lookup table of provider specs.
type Registry struct {
	specs map[string]Spec
	order []string
}

// NewRegistry builds a registry from explicit specs.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, dup := r.specs[s.Code]; !dup {
			r.order = append(r.order, s.Code)
		}
		r.specs[s.Code] = s
	}
	return r
}

// Lookup returns the spec for a provider code.
func (r *Registry) Lookup(code string) (Spec, error) {
	s, ok := r.specs[code]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownProvider, code)
	}
	return s, nil
}

// Codes lists the registered provider codes in registration order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ResolveEmbedURL expands a provider's embed template for a target. Movie
// targets never produce season/episode path segments; episode targets always
// produce them in {id}/{season}/{episode} order.
func (r *Registry) ResolveEmbedURL(code string, target models.Target) (string, error) {
	spec, err := r.Lookup(code)
	if err != nil {
		return "", err
	}

	if target.IsEpisode() {
		url := strings.ReplaceAll(spec.EpisodeURL, "{id}", fmt.Sprintf("%d", target.CatalogID))
		url = strings.ReplaceAll(url, "{season}", fmt.Sprintf("%d", target.Season))
		url = strings.ReplaceAll(url, "{episode}", fmt.Sprintf("%d", target.Episode))
		return url, nil
	}

	return strings.ReplaceAll(spec.MovieURL, "{id}", fmt.Sprintf("%d", target.CatalogID)), nil
}

// Default builds the production registry. Selectors and step ordering are
// provider-specific and change whenever the embed players redesign their UI;
// the timeout tiers come from config so operators can retune without a deploy.
func Default(cfg *config.CaptureConfig) *Registry {
	return NewRegistry(
		// vidora autoplays; the only interaction is dismissing the overlay
		// that occasionally covers the player.
		Spec{
			Code:       "vidora",
			Name:       "Vidora",
			MovieURL:   "https://vidora.stream/embed/movie/{id}",
			EpisodeURL: "https://vidora.stream/embed/tv/{id}/{season}/{episode}",
			Steps: []Step{
				{Name: "dismiss-overlay", Kind: StepClick, Selector: "div.player-overlay", Optional: true, Timeout: cfg.ShortClick()},
			},
			SubtitleLangs: []LangPattern{
				{Match: "lang=es", Code: "es"},
				{Match: "lang=en", Code: "en"},
			},
		},
		// embedrise wraps its player in a nested iframe; the play control is
		// unreachable until the driver switches into it.
		Spec{
			Code:       "embedrise",
			Name:       "EmbedRise",
			MovieURL:   "https://embedrise.com/v/movie/{id}",
			EpisodeURL: "https://embedrise.com/v/show/{id}/{season}/{episode}",
			Steps: []Step{
				{Name: "enter-player-frame", Kind: StepEnterFrame, Selector: "iframe#player-frame", Timeout: cfg.FirstClick()},
				{Name: "press-play", Kind: StepClick, Selector: "button.vjs-big-play-button", Timeout: cfg.LongClick()},
				{Name: "open-settings", Kind: StepClick, Selector: "button.vjs-settings", Optional: true, Timeout: cfg.ShortClick()},
				{Name: "pick-quality", Kind: StepClick, Selector: "li.vjs-quality-auto", Optional: true, Timeout: cfg.ShortClick()},
			},
			SubtitleLangs: []LangPattern{
				{Match: "spanish", Code: "es"},
				{Match: "english", Code: "en"},
			},
		},
		// playvix needs a real click on the poster before it attaches the
		// video element; the settings menu only renders when more than one
		// quality exists, hence optional.
		Spec{
			Code:       "playvix",
			Name:       "Playvix",
			MovieURL:   "https://playvix.net/embed/{id}",
			EpisodeURL: "https://playvix.net/embed/{id}/{season}/{episode}",
			Steps: []Step{
				{Name: "press-poster", Kind: StepClick, Selector: "div#poster-play", Timeout: cfg.FirstClick()},
				{Name: "confirm-play", Kind: StepClick, Selector: "button.play-confirm", Optional: true, Timeout: cfg.ShortClick()},
				{Name: "open-settings", Kind: StepClick, Selector: "div.settings-gear", Optional: true, Timeout: cfg.ShortClick()},
			},
			SubtitleLangs: []LangPattern{
				{Match: ".es.vtt", Code: "es"},
				{Match: ".pt.vtt", Code: "pt"},
			},
		},
	)
}
