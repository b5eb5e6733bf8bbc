package adbreak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPlayerNotReady is returned by Start when the player never became ready
// within the poll budget. Playback stays muted; the caller decides whether
// to fall back to a static creative.
var ErrPlayerNotReady = errors.New("player not ready")

// Player is the embedded media player.
type Player interface {
	Ready() bool
	Play() error
	Mute() error
	Unmute() error
}

// PlayerEvent is a notification coming back from the player.
type PlayerEvent string

const (
	EventReady       PlayerEvent = "ready"
	EventPlaying     PlayerEvent = "playing"
	EventPaused      PlayerEvent = "paused"
	EventEnded       PlayerEvent = "ended"
	EventError       PlayerEvent = "error"
	EventInteraction PlayerEvent = "interaction"
)

// Valid reports whether e is a known player event.
func (e PlayerEvent) Valid() bool {
	switch e {
	case EventReady, EventPlaying, EventPaused, EventEnded, EventError, EventInteraction:
		return true
	}
	return false
}

// Playback drives one player through an ad: muted start, play on ready,
// re-play after an unexpected pause and unmute on the first interaction.
// The first interaction only lifts the autoplay mute; an operator mute holds
// until the operator lifts it.
type Playback struct {
	player   Player
	poll     time.Duration
	maxPolls int
	logger   *slog.Logger
	onEnded  func()

	mu       sync.Mutex
	started  bool
	ended    bool
	muted    bool
	degraded bool
	// interacted is set once the first interaction unlocked audio.
	interacted    bool
	operatorMuted bool
}

// NewPlayback wires a controller. onEnded runs on every "ended" event.
func NewPlayback(player Player, poll time.Duration, maxPolls int, onEnded func(), logger *slog.Logger) *Playback {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	if maxPolls <= 0 {
		maxPolls = 40
	}
	return &Playback{player: player, poll: poll, maxPolls: maxPolls, onEnded: onEnded, logger: logger}
}

// Start mutes the player, waits for it to become ready with a bounded poll
// and starts playback. Cancelling ctx stops the poll.
func (p *Playback) Start(ctx context.Context) error {
	p.mu.Lock()
	p.started, p.ended, p.degraded = true, false, false
	p.mu.Unlock()

	if err := p.player.Mute(); err != nil {
		p.logger.Warn("Player mute failed", "error", err)
	}
	p.mu.Lock()
	p.muted = true
	p.mu.Unlock()

	if err := p.awaitReady(ctx); err != nil {
		if errors.Is(err, ErrPlayerNotReady) {
			p.mu.Lock()
			p.degraded = true
			p.mu.Unlock()
			p.logger.Warn("Player never became ready, staying muted", "polls", p.maxPolls)
		}
		return err
	}
	if err := p.player.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (p *Playback) awaitReady(ctx context.Context) error {
	if p.player.Ready() {
		return nil
	}
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for i := 0; i < p.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.player.Ready() {
				return nil
			}
		}
	}
	return ErrPlayerNotReady
}

// Handle reacts to a player event.
func (p *Playback) Handle(ev PlayerEvent) {
	switch ev {
	case EventPaused:
		p.mu.Lock()
		replay := p.started && !p.ended
		p.mu.Unlock()
		if replay {
			p.logger.Debug("Unexpected pause, resuming playback")
			if err := p.player.Play(); err != nil {
				p.logger.Warn("Resume after pause failed", "error", err)
			}
		}
	case EventEnded:
		p.mu.Lock()
		p.ended = true
		p.mu.Unlock()
		if p.onEnded != nil {
			p.onEnded()
		}
	case EventInteraction:
		p.mu.Lock()
		unmute := !p.interacted && p.muted && !p.operatorMuted && !p.degraded
		p.interacted = true
		p.mu.Unlock()
		if !unmute {
			return
		}
		if err := p.player.Unmute(); err != nil {
			p.logger.Warn("Unmute failed", "error", err)
			return
		}
		p.mu.Lock()
		p.muted = false
		p.mu.Unlock()
	case EventError:
		p.mu.Lock()
		p.degraded = true
		p.mu.Unlock()
		p.logger.Warn("Player reported an error, degrading to muted playback")
		if err := p.player.Mute(); err != nil {
			p.logger.Warn("Player mute failed", "error", err)
			return
		}
		p.mu.Lock()
		p.muted = true
		p.mu.Unlock()
	}
}

// SetMuted applies an operator mute or unmute.
func (p *Playback) SetMuted(muted bool) error {
	var err error
	if muted {
		err = p.player.Mute()
	} else {
		err = p.player.Unmute()
	}
	if err != nil {
		return fmt.Errorf("set muted=%t: %w", muted, err)
	}
	p.mu.Lock()
	p.muted, p.operatorMuted = muted, muted
	p.mu.Unlock()
	return nil
}

// HoldMute carries an operator mute that was in force before Start, so the
// first interaction does not lift it.
func (p *Playback) HoldMute() {
	p.mu.Lock()
	p.operatorMuted = true
	p.mu.Unlock()
}

// Muted reports whether the player is currently muted by this controller.
func (p *Playback) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Degraded reports whether the player failed to become ready or errored.
func (p *Playback) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}
