package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/adbreak"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/arbitration"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/memstore"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rig struct {
	backend *memstore.Store
	hub     *command.Hub
}

func newRig() *rig {
	return &rig{backend: memstore.New(), hub: command.NewHub()}
}

func (r *rig) session(t *testing.T, role string) *Session {
	t.Helper()
	logger := discardLogger()
	mgr := settings.NewManager(filepath.Join(t.TempDir(), "settings.yaml"), logger)
	if _, err := mgr.Load(); err != nil {
		t.Fatal(err)
	}
	s := New(Options{
		Role:      role,
		DisplayID: "main",
		Store:     tournament.New(r.backend, "", logger),
		Feed:      r.backend,
		Transport: r.hub,
		States:    r.backend,
		Settings:  mgr,
		FadeTick:  5 * time.Millisecond,
		ReadyPoll: time.Millisecond,
		ReadyMax:  2000,
		Logger:    logger,
	})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func attachedTo(s *Session, tournamentID string) func() bool {
	return func() bool {
		ch := s.currentChannel()
		return ch != nil && ch.TournamentID() == tournamentID
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSwitchViewAdsStartsBreakAndDucksAudio(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	display := r.session(t, config.RoleDisplay)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Finals", Type: model.SportBadminton, Entrants: []string{"Ann", "Bo"}})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "master channel", attachedTo(master, created.ID))
	eventually(t, "display follows newest tournament", attachedTo(display, created.ID))

	if _, err := master.SendCommand(ctx, command.SwitchView, raw(t, command.SwitchViewPayload{Mode: command.ViewAds}), command.TargetDisplay); err != nil {
		t.Fatal(err)
	}
	eventually(t, "display in ads mode", func() bool { return display.Surface().ViewMode == command.ViewAds })

	slot := display.AdBreak()
	if !slot.Active || slot.Creative == nil || !slot.Creative.Fallback {
		t.Fatalf("forced break with no fullscreen ads should show the fallback, got %+v", slot)
	}
	eventually(t, "audio fully ducked", func() bool { return display.Audio().Factor == 0 })
	if master.AdBreak().Active {
		t.Fatal("SWITCH_VIEW for displays must not start a break on the master")
	}

	if _, err := master.SendCommand(ctx, command.SwitchView, raw(t, command.SwitchViewPayload{Mode: command.ViewCourt, CourtID: "1"}), command.TargetDisplay); err != nil {
		t.Fatal(err)
	}
	eventually(t, "break ended", func() bool { return !display.AdBreak().Active })
	eventually(t, "audio recovered", func() bool { return display.Audio().Factor == 1 })
}

func TestLockedRefereeCannotScore(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	referee := r.session(t, config.RoleReferee)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Cup", Entrants: []string{"A", "B"}})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "master channel", attachedTo(master, created.ID))
	eventually(t, "referee channel", attachedTo(referee, created.ID))

	if _, err := master.SendCommand(ctx, command.LockUI, raw(t, command.LockPayload{Locked: true, Msg: "Challenge"}), command.TargetReferee); err != nil {
		t.Fatal(err)
	}
	eventually(t, "referee locked", func() bool { return referee.Surface().Locked })

	m := referee.View().Matches[0]
	err = referee.MutateMatch(ctx, m.ID, model.MatchUpdate{ScoreP1: intPtr(1)})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if _, err := referee.SendCommand(ctx, command.LockUI, raw(t, command.LockPayload{}), command.TargetReferee); !errors.Is(err, command.ErrNotMaster) {
		t.Fatalf("referee must not send commands, got %v", err)
	}
}

func TestDivergenceAndForcedArbitration(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	referee := r.session(t, config.RoleReferee)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Cup", Type: model.SportTennis, Entrants: []string{"A", "B"}})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "master channel", attachedTo(master, created.ID))
	eventually(t, "referee channel", attachedTo(referee, created.ID))
	m := master.View().Matches[0]

	st, err := master.ForceArbitration(ctx, m.ID)
	if err != nil || st.State != arbitration.Consistent {
		t.Fatalf("initial force: %+v %v", st, err)
	}
	eventually(t, "referee sees snapshot", func() bool {
		gs, ok := referee.Snapshot()
		return ok && gs.MatchID == m.ID
	})

	if err := referee.MutateMatch(ctx, m.ID, model.MatchUpdate{ScoreP1: intPtr(15)}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "master diverged", func() bool { return master.Arbitration().State == arbitration.Diverged })
	if w := master.Arbitration().Warning; w == nil || w.MatchID != m.ID {
		t.Fatalf("warning = %+v", w)
	}

	for i := 0; i < 2; i++ {
		st, err := master.ForceArbitration(ctx, "")
		if err != nil || st.State != arbitration.Consistent {
			t.Fatalf("force #%d: %+v %v", i+1, st, err)
		}
	}
	gs, _ := master.Snapshot()
	if gs.ScoreP1 != 15 || gs.Sport != model.SportTennis {
		t.Fatalf("forced snapshot = %+v", gs)
	}
}

func TestDisplayStaysConsistentWhileRefereesAreLocked(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	display := r.session(t, config.RoleDisplay)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Cup", Entrants: []string{"A", "B"}})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "master channel", attachedTo(master, created.ID))
	eventually(t, "display channel", attachedTo(display, created.ID))
	m := master.View().Matches[0]
	if _, err := master.ForceArbitration(ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := master.SendCommand(ctx, command.LockUI, raw(t, command.LockPayload{Locked: true, Msg: "Review"}), command.TargetReferee); err != nil {
		t.Fatal(err)
	}
	eventually(t, "display sees locked snapshot", func() bool {
		gs, ok := display.Snapshot()
		return ok && gs.Lock && gs.MatchID == m.ID
	})
	for i := 0; i < 20; i++ {
		if st := display.Arbitration(); st.State != arbitration.Consistent {
			t.Fatalf("display diverged on a referee lock: %+v", st.Warning)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if display.Surface().Locked {
		t.Fatal("LOCK_UI for referees must not lock a display")
	}
}

func TestPlayFXAddressedToOtherDisplayIsIgnored(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	display := r.session(t, config.RoleDisplay)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Cup"})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "master channel", attachedTo(master, created.ID))
	eventually(t, "display channel", attachedTo(display, created.ID))

	stream, unsub := display.Subscribe(64)
	defer unsub()

	for _, target := range []string{"side", "main"} {
		p := command.FXPayload{Pattern: command.FXVictory, SpecificDisplay: target}
		if _, err := master.SendCommand(ctx, command.PlayFX, raw(t, p), command.TargetDisplay); err != nil {
			t.Fatal(err)
		}
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-stream:
			if ev.Kind != KindFX {
				continue
			}
			if p := ev.Data.(command.FXPayload); p.SpecificDisplay != "main" {
				t.Fatalf("received effect for %q", p.SpecificDisplay)
			}
			return
		case <-timeout:
			t.Fatal("no effect received")
		}
	}
}

func TestPlayerEventsDriveVideoPlayback(t *testing.T) {
	t.Parallel()
	r := newRig()
	master := r.session(t, config.RoleMaster)
	display := r.session(t, config.RoleDisplay)
	ctx := context.Background()

	created, err := master.CreateTournament(ctx, tournament.Spec{Name: "Cup"})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "display view", func() bool { return display.View().TournamentID() == created.ID })

	stream, unsub := display.Subscribe(256)
	defer unsub()

	for _, u := range []string{"https://cdn/a.mp4", "https://cdn/b.mp4"} {
		if _, err := master.AddAd(ctx, tournament.AdSpec{URL: u, Type: model.AdVideo, IsActive: true}); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, "display playlist", func() bool { return display.AdBreak().Count == 2 })
	first := display.AdBreak().Creative.AdID

	eventually(t, "playback created", func() bool {
		display.mu.RLock()
		defer display.mu.RUnlock()
		return display.playback != nil
	})
	if err := display.PlayerEvent(adbreak.EventReady); err != nil {
		t.Fatal(err)
	}
	waitInstruction(t, stream, "play")

	if err := display.PlayerEvent(adbreak.EventEnded); err != nil {
		t.Fatal(err)
	}
	eventually(t, "rotation", func() bool { return display.AdBreak().Creative.AdID != first })

	if err := display.PlayerEvent("exploded"); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func waitInstruction(t *testing.T, stream <-chan Event, action string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-stream:
			if in, ok := ev.Data.(PlayerInstruction); ok && ev.Kind == KindPlayer && in.Action == action {
				return
			}
		case <-timeout:
			t.Fatalf("no %q player instruction", action)
		}
	}
}

func intPtr(n int) *int { return &n }
