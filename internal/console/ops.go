package console

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/adbreak"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/arbitration"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

// --------------------------------------------------------------------------
// Tournament operations
// --------------------------------------------------------------------------

func (s *Session) View() tournament.View { return s.store.View() }

func (s *Session) Select(ctx context.Context, tournamentID string) error {
	return s.store.Select(ctx, tournamentID)
}

func (s *Session) CreateTournament(ctx context.Context, spec tournament.Spec) (model.Tournament, error) {
	return s.store.CreateTournament(ctx, spec)
}

func (s *Session) EndTournament(ctx context.Context) error {
	return s.store.EndTournament(ctx)
}

// MutateMatch refuses writes while a referee console is locked.
func (s *Session) MutateMatch(ctx context.Context, matchID string, u model.MatchUpdate) error {
	if sf := s.Surface(); sf.Locked && s.opts.Role != config.RoleMaster {
		return fmt.Errorf("%w: console is locked: %s", ErrLocked, sf.LockMsg)
	}
	return s.store.MutateMatch(ctx, matchID, u)
}

func (s *Session) AddAd(ctx context.Context, spec tournament.AdSpec) (model.SponsorAd, error) {
	return s.store.AddAd(ctx, spec)
}

func (s *Session) ToggleAd(ctx context.Context, adID string) (bool, error) {
	return s.store.ToggleAd(ctx, adID)
}

func (s *Session) DeleteAd(ctx context.Context, adID string) error {
	return s.store.DeleteAd(ctx, adID)
}

// --------------------------------------------------------------------------
// Commands and arbitration
// --------------------------------------------------------------------------

// SendCommand publishes a command on the attached tournament's channel. The
// master's own surface follows the lock it sends.
func (s *Session) SendCommand(ctx context.Context, t command.Type, payload json.RawMessage, target command.Target) (command.Message, error) {
	ch := s.currentChannel()
	if ch == nil {
		return command.Message{}, model.ErrNoSelection
	}
	m, err := ch.Send(ctx, t, payload, target)
	if err != nil {
		return m, err
	}
	if t == command.LockUI {
		p, _ := command.Decode[command.LockPayload](m)
		s.updateSurface(func(sf *Surface) { sf.Locked, sf.LockMsg = p.Locked, p.Msg })
	}
	return m, nil
}

// Snapshot returns the attached channel's shared snapshot.
func (s *Session) Snapshot() (command.GameState, bool) {
	return snapshotRef{s}.State()
}

func (s *Session) Arbitration() arbitration.Status { return s.supervisor.Status() }

// ForceArbitration publishes the live state of matchID (or of the match the
// snapshot is about when empty) as the new snapshot.
func (s *Session) ForceArbitration(ctx context.Context, matchID string) (arbitration.Status, error) {
	v := s.store.View()
	live := s.live(v)
	if matchID != "" {
		m, ok := v.Match(matchID)
		if !ok {
			return s.supervisor.Status(), fmt.Errorf("match %s: %w", matchID, model.ErrNotFound)
		}
		live.Match = m
	}
	if live.Match.ID == "" {
		return s.supervisor.Status(), fmt.Errorf("no live match: %w", model.ErrNotFound)
	}
	return s.supervisor.Force(ctx, live)
}

// --------------------------------------------------------------------------
// Ad break and audio
// --------------------------------------------------------------------------

func (s *Session) AdBreak() adbreak.Slot { return s.scheduler.Current() }

// OverrideAdBreak forces a break on or off from this console.
func (s *Session) OverrideAdBreak(on bool, adURL string) adbreak.Slot {
	s.scheduler.SetOverride(on, adURL)
	return s.scheduler.Current()
}

// HideAds hides or shows the overlay on this console only.
func (s *Session) HideAds(hidden bool) adbreak.Slot {
	s.scheduler.Hide(hidden)
	return s.scheduler.Current()
}

// AdEnded advances the playlist, for UIs that play creatives themselves.
func (s *Session) AdEnded() adbreak.Slot {
	s.adEnded()
	return s.scheduler.Current()
}

func (s *Session) Audio() adbreak.Levels { return s.fader.Levels() }

// SetDeckVolume changes a deck's target and persists it.
func (s *Session) SetDeckVolume(deck adbreak.Deck, v float64) (adbreak.Levels, error) {
	if err := s.fader.SetTarget(deck, v); err != nil {
		return adbreak.Levels{}, err
	}
	lv := s.fader.Levels()
	_, err := s.settings.Update(func(cur *settings.Settings) {
		switch deck {
		case adbreak.DeckMain:
			cur.Audio.MainVolume = lv.Targets[deck]
		case adbreak.DeckStandby:
			cur.Audio.StandbyVolume = lv.Targets[deck]
		}
	})
	if err != nil {
		return lv, fmt.Errorf("persist deck volume: %w", err)
	}
	return lv, nil
}

// ForceFade ducks the decks regardless of ad state while on.
func (s *Session) ForceFade(on bool) adbreak.Levels {
	s.fader.SetManualForce(on)
	return s.fader.Levels()
}

// PlayerEvent feeds an event from the UI's media element.
func (s *Session) PlayerEvent(ev adbreak.PlayerEvent) error {
	if !ev.Valid() {
		return fmt.Errorf("%w: unknown player event %q", model.ErrInvalid, ev)
	}
	if ev == adbreak.EventReady {
		s.player.setReady(true)
	}
	s.mu.RLock()
	pb := s.playback
	s.mu.RUnlock()
	if pb != nil {
		pb.Handle(ev)
	}
	return nil
}

// --------------------------------------------------------------------------
// Surface and settings
// --------------------------------------------------------------------------

func (s *Session) Surface() Surface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surface
}

func (s *Session) Settings() settings.Settings { return s.settings.Get() }

// UpdateSettings validates, saves and applies new settings.
func (s *Session) UpdateSettings(next settings.Settings) (settings.Settings, error) {
	out, err := s.settings.Update(func(cur *settings.Settings) { *cur = next })
	if err != nil {
		return settings.Settings{}, err
	}
	s.applySettings(out)
	return out, nil
}
