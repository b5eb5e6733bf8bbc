// Package adbreak decides which sponsor creative is on screen, drives the
// embedded media player and ducks background audio during ad breaks.
package adbreak

import (
	"path"
	"strings"
	"sync"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Creative is what the overlay shows.
type Creative struct {
	AdID     string       `json:"ad_id,omitempty"`
	Type     model.AdKind `json:"type"`
	URL      string       `json:"url"`
	Duration int          `json:"duration"`
	Fallback bool         `json:"fallback,omitempty"`
}

// Slot is the scheduler's current decision.
type Slot struct {
	Active   bool      `json:"active"`
	Creative *Creative `json:"creative,omitempty"`
	Index    int       `json:"index"`
	Count    int       `json:"count"`
	Override bool      `json:"override"`
	Hidden   bool      `json:"hidden"`
}

// Scheduler rotates through the fullscreen-active ads.
type Scheduler struct {
	mu          sync.Mutex
	playlist    []model.SponsorAd
	index       int
	override    bool
	overrideURL string
	hidden      bool
	fallback    Creative

	updates *eventbus.Bus[Slot]
}

// NewScheduler returns an empty scheduler. fallback is shown when a break is
// forced with nothing to play.
func NewScheduler(fallback Creative) *Scheduler {
	fallback.Fallback = true
	if fallback.Type == "" {
		fallback.Type = KindFromURL(fallback.URL)
	}
	return &Scheduler{fallback: fallback, updates: eventbus.New[Slot]()}
}

// Subscribe delivers the slot after every change.
func (s *Scheduler) Subscribe(buffer int) (<-chan Slot, func()) {
	return s.updates.Subscribe(buffer)
}

// SetFallback replaces the fallback creative.
func (s *Scheduler) SetFallback(c Creative) {
	c.Fallback = true
	if c.Type == "" {
		c.Type = KindFromURL(c.URL)
	}
	s.mu.Lock()
	s.fallback = c
	s.mu.Unlock()
	s.publish()
}

// SetAds installs a new active-ad set. Only fullscreen active ads play.
// When the playlist goes from empty to non-empty, a local hide is cleared
// and a single-entry playlist starts from index 0.
func (s *Scheduler) SetAds(ads []model.SponsorAd) {
	var next []model.SponsorAd
	for _, ad := range ads {
		if ad.IsFullscreenActive() {
			next = append(next, ad)
		}
	}

	s.mu.Lock()
	wasEmpty := len(s.playlist) == 0
	s.playlist = next
	if wasEmpty && len(next) > 0 {
		s.hidden = false
		if len(next) == 1 {
			s.index = 0
		}
	}
	if s.index >= len(next) {
		s.index = max(len(next)-1, 0)
	}
	s.mu.Unlock()
	s.publish()
}

// Ended advances to the next ad. A single ad loops in place.
func (s *Scheduler) Ended() {
	s.mu.Lock()
	if n := len(s.playlist); n > 1 {
		s.index = (s.index + 1) % n
	}
	s.mu.Unlock()
	s.publish()
}

// SetOverride forces an ad break on or off. adURL, when set, plays that
// creative instead of the playlist.
func (s *Scheduler) SetOverride(on bool, adURL string) {
	s.mu.Lock()
	s.override = on
	s.overrideURL = ""
	if on {
		s.overrideURL = adURL
		s.hidden = false
	}
	s.mu.Unlock()
	s.publish()
}

// Hide suppresses the overlay on this console only.
func (s *Scheduler) Hide(hidden bool) {
	s.mu.Lock()
	s.hidden = hidden
	s.mu.Unlock()
	s.publish()
}

// Current returns the current decision.
func (s *Scheduler) Current() Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotLocked()
}

func (s *Scheduler) slotLocked() Slot {
	slot := Slot{Index: s.index, Count: len(s.playlist), Override: s.override, Hidden: s.hidden}
	switch {
	case s.override && s.overrideURL != "":
		slot.Active = true
		slot.Creative = &Creative{Type: KindFromURL(s.overrideURL), URL: s.overrideURL}
	case s.override && len(s.playlist) == 0:
		fb := s.fallback
		slot.Active = true
		slot.Creative = &fb
	case s.hidden && !s.override:
	case len(s.playlist) > 0:
		ad := s.playlist[s.index]
		slot.Active = true
		slot.Creative = &Creative{AdID: ad.ID, Type: ad.Type, URL: ad.URL, Duration: ad.Duration}
	}
	return slot
}

func (s *Scheduler) publish() {
	s.updates.Publish(s.Current())
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true}

// KindFromURL guesses the creative kind from its URL. Anything that is not a
// known image extension is treated as video.
func KindFromURL(u string) model.AdKind {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if imageExts[strings.ToLower(path.Ext(u))] {
		return model.AdImage
	}
	return model.AdVideo
}
