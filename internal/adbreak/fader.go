package adbreak

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Deck is one background audio source.
type Deck string

const (
	DeckMain    Deck = "main"
	DeckStandby Deck = "standby"
)

// DefaultFadeDuration is how long a full duck or recovery takes.
const DefaultFadeDuration = time.Second

// Levels is a sample of the audio output.
type Levels struct {
	Targets   map[Deck]float64 `json:"targets"`
	Effective map[Deck]float64 `json:"effective"`
	Factor    float64          `json:"factor"`
	Ducking   bool             `json:"ducking"`
	AdBreak   bool             `json:"ad_break"`
	Manual    bool             `json:"manual_force"`
}

// Fader ramps the fade factor toward 0 while a break is on (or manually
// forced) and back toward 1 afterwards, one step per tick.
type Fader struct {
	tick time.Duration

	mu      sync.Mutex
	targets map[Deck]float64
	factor  float64
	step    float64
	adBreak bool
	manual  bool

	updates *eventbus.Bus[Levels]
}

// NewFader returns a fader at full volume with both decks targeted at 1.
func NewFader(duration, tick time.Duration) *Fader {
	if duration <= 0 {
		duration = DefaultFadeDuration
	}
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &Fader{
		tick:    tick,
		targets: map[Deck]float64{DeckMain: 1, DeckStandby: 1},
		factor:  1,
		step:    float64(tick) / float64(duration),
		updates: eventbus.New[Levels](),
	}
}

// Subscribe delivers levels after each tick that changed them.
func (f *Fader) Subscribe(buffer int) (<-chan Levels, func()) {
	return f.updates.Subscribe(buffer)
}

// SetTarget sets the operator volume for a deck, clamped to [0, 1].
func (f *Fader) SetTarget(deck Deck, v float64) error {
	if deck != DeckMain && deck != DeckStandby {
		return fmt.Errorf("%w: unknown deck %q", model.ErrInvalid, deck)
	}
	if math.IsNaN(v) {
		return fmt.Errorf("%w: volume is not a number", model.ErrInvalid)
	}
	f.mu.Lock()
	f.targets[deck] = math.Max(0, math.Min(1, v))
	out := f.levelsLocked()
	f.mu.Unlock()
	f.updates.Publish(out)
	return nil
}

// SetFadeDuration changes how long a full ramp takes.
func (f *Fader) SetFadeDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.step = float64(f.tick) / float64(d)
	f.mu.Unlock()
}

// SetAdBreak reports whether an ad break is on screen.
func (f *Fader) SetAdBreak(active bool) {
	f.mu.Lock()
	f.adBreak = active
	f.mu.Unlock()
}

// SetManualForce forces the duck regardless of ad presence. Releasing it
// hands control back to the ad break state.
func (f *Fader) SetManualForce(on bool) {
	f.mu.Lock()
	f.manual = on
	f.mu.Unlock()
}

// Levels returns the current sample without advancing.
func (f *Fader) Levels() Levels {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelsLocked()
}

// Step advances the factor by one tick and returns the new sample.
func (f *Fader) Step() (Levels, bool) {
	f.mu.Lock()
	before := f.factor
	if f.manual || f.adBreak {
		f.factor = math.Max(0, f.factor-f.step)
	} else {
		f.factor = math.Min(1, f.factor+f.step)
	}
	out := f.levelsLocked()
	f.mu.Unlock()
	return out, out.Factor != before
}

// Run samples on every tick until ctx is cancelled. Intended to be called
// with `go`.
func (f *Fader) Run(ctx context.Context) {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lv, moved := f.Step(); moved {
				f.updates.Publish(lv)
			}
		}
	}
}

func (f *Fader) levelsLocked() Levels {
	lv := Levels{
		Targets:   make(map[Deck]float64, len(f.targets)),
		Effective: make(map[Deck]float64, len(f.targets)),
		Factor:    f.factor,
		Ducking:   f.manual || f.adBreak,
		AdBreak:   f.adBreak,
		Manual:    f.manual,
	}
	for d, v := range f.targets {
		lv.Targets[d] = v
		lv.Effective[d] = v * f.factor
	}
	return lv
}
