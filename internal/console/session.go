// Package console wires one console role (master, referee or display) to
// the tournament store, the command channel, the arbitration supervisor and
// the ad-break scheduler, and exposes the operations UI layers consume.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/adbreak"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/arbitration"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/feed"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

// Stream event kinds.
const (
	KindView        = "view"
	KindCommand     = "command"
	KindSnapshot    = "snapshot"
	KindSurface     = "surface"
	KindFX          = "fx"
	KindArbitration = "arbitration"
	KindAdBreak     = "adbreak"
	KindAudio       = "audio"
	KindPlayer      = "player"
	KindSettings    = "settings"
)

const defaultImageSeconds = 15

// ErrLocked is returned for score edits while the console is locked.
var ErrLocked = errors.New("console locked")

// Event is one frame on the session stream.
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Surface is what the console's own UI is showing because of commands.
type Surface struct {
	Locked   bool             `json:"locked"`
	LockMsg  string           `json:"lock_msg,omitempty"`
	ViewMode command.ViewMode `json:"view_mode"`
	CourtID  string           `json:"court_id,omitempty"`
	AdURL    string           `json:"ad_url,omitempty"`
	Muted    bool             `json:"muted"`
}

type Options struct {
	Role        string
	DisplayID   string
	Store       *tournament.Store
	Feed        feed.Source
	Transport   command.Transport
	States      command.StateStore
	Settings    *settings.Manager
	CommandRate int
	FadeTick    time.Duration
	ReadyPoll   time.Duration
	ReadyMax    int
	Logger      *slog.Logger
}

type Session struct {
	opts     Options
	store    *tournament.Store
	settings *settings.Manager
	logger   *slog.Logger

	scheduler  *adbreak.Scheduler
	fader      *adbreak.Fader
	player     *remotePlayer
	supervisor *arbitration.Supervisor
	stream     *eventbus.Bus[Event]

	mu           sync.RWMutex
	channel      *command.Channel
	unsubChannel func()
	surface      Surface
	playback     *adbreak.Playback
	stopAd       context.CancelFunc
	creativeKey  string
	restart      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a session. Nothing runs until Start.
func New(opts Options) *Session {
	cur := opts.Settings.Get()
	s := &Session{
		opts:      opts,
		store:     opts.Store,
		settings:  opts.Settings,
		logger:    opts.Logger.With("role", opts.Role),
		scheduler: adbreak.NewScheduler(adbreak.Creative{URL: cur.FallbackURL, Duration: defaultImageSeconds}),
		fader:     adbreak.NewFader(cur.FadeDuration(), opts.FadeTick),
		stream:    eventbus.New[Event](),
		surface:   Surface{ViewMode: command.ViewCourt},
	}
	s.player = &remotePlayer{emit: func(in PlayerInstruction) { s.emit(KindPlayer, in) }}
	s.supervisor = arbitration.New(snapshotRef{s}, s.logger)
	s.applySettings(cur)
	return s
}

// Role returns the console role.
func (s *Session) Role() string { return s.opts.Role }

// Start loads the initial view and launches the background loops. A failed
// initial load leaves the view empty and degraded; it is not fatal.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	views, unsubViews := s.store.Subscribe(32)
	slots, unsubSlots := s.scheduler.Subscribe(32)
	levels, unsubLevels := s.fader.Subscribe(64)
	arb, unsubArb := s.supervisor.Subscribe(8)
	changes, unsubSettings := s.settings.Subscribe(4)
	// Subscribed before the initial reload so no change in between is lost.
	events, unsubFeed := s.opts.Feed.Subscribe(256)

	s.spawn(func() {
		defer unsubFeed()
		s.store.Consume(s.ctx, events)
	})
	s.spawn(func() { s.fader.Run(s.ctx) })
	s.spawn(func() {
		defer unsubViews()
		forEach(s.ctx, views, s.onView)
	})
	s.spawn(func() {
		defer unsubSlots()
		forEach(s.ctx, slots, s.onSlot)
	})
	s.spawn(func() {
		defer unsubLevels()
		forEach(s.ctx, levels, func(lv adbreak.Levels) { s.emit(KindAudio, lv) })
	})
	s.spawn(func() {
		defer unsubArb()
		forEach(s.ctx, arb, func(st arbitration.Status) { s.emit(KindArbitration, st) })
	})
	s.spawn(func() {
		defer unsubSettings()
		forEach(s.ctx, changes, func(cur settings.Settings) {
			s.applySettings(cur)
			s.emit(KindSettings, cur)
		})
	})

	if err := s.store.Reload(s.ctx); err != nil {
		s.logger.Warn("Initial tournament load failed", "error", err)
	}
	s.logger.Info("Console session started", "tournament_id", s.store.View().TournamentID())
}

// Close stops every loop, timer and poll, and detaches from the channel.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	if s.stopAd != nil {
		s.stopAd()
	}
	ch, unsub := s.channel, s.unsubChannel
	s.channel, s.unsubChannel = nil, nil
	s.mu.Unlock()
	if ch != nil {
		unsub()
		ch.Close()
	}
	s.store.Close()
	s.logger.Info("Console session closed")
}

// Subscribe delivers stream events for the UI.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.stream.Subscribe(buffer)
}

func (s *Session) emit(kind string, data any) {
	s.stream.Publish(Event{Kind: kind, Data: data})
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func forEach[T any](ctx context.Context, ch <-chan T, fn func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			fn(v)
		}
	}
}

// --------------------------------------------------------------------------
// View and channel lifecycle
// --------------------------------------------------------------------------

func (s *Session) onView(v tournament.View) {
	s.scheduler.SetAds(v.Ads)
	s.attach(v.TournamentID())
	s.checkArbitration(v)
	s.emit(KindView, v)
}

// attach moves the command channel to the viewed tournament.
func (s *Session) attach(tournamentID string) {
	s.mu.RLock()
	cur := s.channel
	s.mu.RUnlock()
	if cur != nil && cur.TournamentID() == tournamentID {
		return
	}
	if cur == nil && tournamentID == "" {
		return
	}

	s.mu.Lock()
	old, oldUnsub := s.channel, s.unsubChannel
	s.channel, s.unsubChannel = nil, nil
	s.mu.Unlock()
	if old != nil {
		oldUnsub()
		old.Close()
	}
	if tournamentID == "" {
		return
	}

	ch, err := command.Open(s.ctx, command.Options{
		TournamentID: tournamentID,
		Role:         s.opts.Role,
		Transport:    s.opts.Transport,
		States:       s.opts.States,
		RatePerSec:   s.opts.CommandRate,
		Logger:       s.logger,
	})
	if err != nil {
		s.logger.Warn("Failed to open command channel", "tournament_id", tournamentID, "error", err)
		return
	}
	inbox, unsub := ch.Subscribe(64)

	s.mu.Lock()
	s.channel, s.unsubChannel = ch, unsub
	if gs, ok := ch.State(); ok {
		s.surface.Locked, s.surface.LockMsg = gs.Lock, gs.LockMsg
		s.surface.Muted = gs.AdMuted
	}
	surface := s.surface
	s.mu.Unlock()

	s.emit(KindSurface, surface)
	s.spawn(func() { forEach(s.ctx, inbox, s.apply) })
}

func (s *Session) currentChannel() *command.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// apply acts on a message received from the channel.
func (s *Session) apply(m command.Message) {
	switch m.Type {
	case command.StateSnapshot:
		gs, _ := command.Decode[command.GameState](m)
		s.emit(KindSnapshot, gs)
		s.checkArbitration(s.store.View())
		return
	case command.LockUI:
		p, _ := command.Decode[command.LockPayload](m)
		s.updateSurface(func(sf *Surface) { sf.Locked, sf.LockMsg = p.Locked, p.Msg })
	case command.SwitchView:
		p, _ := command.Decode[command.SwitchViewPayload](m)
		s.switchView(p)
	case command.PlayFX:
		p, _ := command.Decode[command.FXPayload](m)
		if p.SpecificDisplay != "" && p.SpecificDisplay != s.opts.DisplayID {
			return
		}
		// Transient: forwarded once, never stored.
		s.emit(KindFX, p)
	case command.AdControl:
		p, _ := command.Decode[command.AdControlPayload](m)
		s.setMuted(p.Action == command.AdMute)
	}
	s.emit(KindCommand, m)
}

func (s *Session) updateSurface(fn func(*Surface)) Surface {
	s.mu.Lock()
	fn(&s.surface)
	out := s.surface
	s.mu.Unlock()
	s.emit(KindSurface, out)
	return out
}

func (s *Session) switchView(p command.SwitchViewPayload) {
	var wasAds bool
	s.updateSurface(func(sf *Surface) {
		wasAds = sf.ViewMode == command.ViewAds
		sf.ViewMode, sf.CourtID, sf.AdURL = p.Mode, p.CourtID, p.AdURL
	})
	switch {
	case p.Mode == command.ViewAds:
		s.scheduler.SetOverride(true, p.AdURL)
	case wasAds:
		s.scheduler.SetOverride(false, "")
	}
}

func (s *Session) setMuted(muted bool) {
	s.mu.RLock()
	pb := s.playback
	s.mu.RUnlock()
	if pb != nil {
		if err := pb.SetMuted(muted); err != nil {
			s.logger.Warn("Ad mute toggle failed", "error", err)
		}
	}
	s.updateSurface(func(sf *Surface) { sf.Muted = muted })
}

// --------------------------------------------------------------------------
// Arbitration
// --------------------------------------------------------------------------

// snapshotRef routes the supervisor to whichever channel is attached.
type snapshotRef struct{ s *Session }

func (r snapshotRef) State() (command.GameState, bool) {
	if ch := r.s.currentChannel(); ch != nil {
		return ch.State()
	}
	return command.GameState{}, false
}

func (r snapshotRef) PublishState(ctx context.Context, gs command.GameState) error {
	ch := r.s.currentChannel()
	if ch == nil {
		return model.ErrNoSelection
	}
	return ch.PublishState(ctx, gs)
}

// live picks the match the snapshot talks about, else the live match on the
// console's court.
func (s *Session) live(v tournament.View) arbitration.Live {
	gs, _ := snapshotRef{s}.State()
	s.mu.RLock()
	surface := s.surface
	s.mu.RUnlock()

	var (
		m  model.Match
		ok bool
	)
	if gs.MatchID != "" {
		m, ok = v.Match(gs.MatchID)
	}
	if !ok {
		m, _ = v.LiveMatch(surface.CourtID)
	}
	locked := surface.Locked
	if s.opts.Role == config.RoleDisplay {
		// LOCK_UI is addressed to referees; a display holds no lock of its own.
		locked = gs.Lock
	}
	return arbitration.Live{Match: m, Sport: v.Sport(), Locked: locked}
}

func (s *Session) checkArbitration(v tournament.View) {
	s.supervisor.Check(s.live(v))
}

// --------------------------------------------------------------------------
// Ad break playback
// --------------------------------------------------------------------------

func (s *Session) onSlot(slot adbreak.Slot) {
	s.fader.SetAdBreak(slot.Active)
	s.emit(KindAdBreak, slot)
	if s.opts.Role != config.RoleDisplay {
		return
	}

	key := ""
	if slot.Active && slot.Creative != nil {
		key = fmt.Sprintf("%s|%s|%d", slot.Creative.AdID, slot.Creative.URL, slot.Index)
	}

	s.mu.Lock()
	if key == s.creativeKey && !s.restart {
		s.mu.Unlock()
		return
	}
	s.restart = false
	s.creativeKey = key
	if s.stopAd != nil {
		s.stopAd()
		s.stopAd = nil
	}
	s.playback = nil
	if key == "" {
		s.mu.Unlock()
		s.player.stop()
		return
	}
	adCtx, stop := context.WithCancel(s.ctx)
	s.stopAd = stop
	c := *slot.Creative
	var pb *adbreak.Playback
	if c.Type == model.AdVideo {
		pb = adbreak.NewPlayback(s.player, s.opts.ReadyPoll, s.opts.ReadyMax, s.adEnded, s.logger)
		if s.surface.Muted {
			pb.HoldMute()
		}
		// Loaded before the playback is visible so a ready event is never
		// overwritten by the load.
		s.player.load(c.URL)
		s.playback = pb
	}
	s.mu.Unlock()

	if pb != nil {
		s.spawn(func() { s.runVideo(adCtx, pb) })
		return
	}
	s.spawn(func() { s.runImage(adCtx, c) })
}

func (s *Session) runVideo(ctx context.Context, pb *adbreak.Playback) {
	err := pb.Start(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, adbreak.ErrPlayerNotReady):
		s.logger.Warn("Ad player never became ready, continuing muted")
	default:
		s.logger.Warn("Ad playback failed", "error", err)
	}
}

func (s *Session) runImage(ctx context.Context, c adbreak.Creative) {
	d := c.Duration
	if d <= 0 {
		d = defaultImageSeconds
	}
	t := time.NewTimer(time.Duration(d) * time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		s.adEnded()
	}
}

// adEnded advances the playlist and makes the next slot replay even when it
// is the same creative (single-ad loop).
func (s *Session) adEnded() {
	s.mu.Lock()
	s.restart = true
	s.mu.Unlock()
	s.scheduler.Ended()
}

func (s *Session) applySettings(cur settings.Settings) {
	_ = s.fader.SetTarget(adbreak.DeckMain, cur.Audio.MainVolume)
	_ = s.fader.SetTarget(adbreak.DeckStandby, cur.Audio.StandbyVolume)
	s.fader.SetFadeDuration(cur.FadeDuration())
	s.scheduler.SetFallback(adbreak.Creative{URL: cur.FallbackURL, Duration: defaultImageSeconds})
}
