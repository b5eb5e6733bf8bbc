package arbitration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSnapshots struct {
	gs        command.GameState
	ok        bool
	published int
	err       error
}

func (f *fakeSnapshots) State() (command.GameState, bool) { return f.gs, f.ok }

func (f *fakeSnapshots) PublishState(ctx context.Context, gs command.GameState) error {
	if f.err != nil {
		return f.err
	}
	f.published++
	f.gs, f.ok = gs, true
	return nil
}

func liveMatch(p1, p2 int) Live {
	return Live{
		Match: model.Match{ID: "m1", Status: model.MatchOngoing, ScoreP1: p1, ScoreP2: p2, SetsP1: 1},
		Sport: model.SportBadminton,
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	base := command.GameState{MatchID: "m1", ScoreP1: 11, ScoreP2: 9, SetsP1: 1, Sport: model.SportBadminton}

	tests := []struct {
		name     string
		snap     command.GameState
		hasSnap  bool
		live     Live
		want     State
		contains string
	}{
		{"no snapshot", command.GameState{}, false, liveMatch(11, 9), Consistent, ""},
		{"equal", base, true, liveMatch(11, 9), Consistent, ""},
		{"other match", command.GameState{MatchID: "m2", ScoreP1: 1}, true, liveMatch(11, 9), Consistent, ""},
		{"score", base, true, liveMatch(12, 9), Diverged, "score: snapshot 11-9 (sets 1-0), live 12-9 (sets 1-0)"},
		{"lock", func() command.GameState { g := base; g.Lock = true; return g }(), true, liveMatch(11, 9), Diverged, "lock: snapshot locked, live unlocked"},
		{"sport", func() command.GameState { g := base; g.Sport = model.SportTennis; return g }(), true, liveMatch(11, 9), Diverged, "sport"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(&fakeSnapshots{gs: tc.snap, ok: tc.hasSnap}, discardLogger())
			got := s.Check(tc.live)
			if got.State != tc.want {
				t.Fatalf("state = %s, want %s", got.State, tc.want)
			}
			if tc.contains != "" && (got.Warning == nil || !strings.Contains(got.Warning.Description, tc.contains)) {
				t.Fatalf("warning = %+v, want it to mention %q", got.Warning, tc.contains)
			}
			if tc.want == Consistent && got.Warning != nil {
				t.Fatalf("consistent status carries a warning: %+v", got.Warning)
			}
		})
	}
}

func TestDivergencePersistsUntilConvergence(t *testing.T) {
	t.Parallel()
	snaps := &fakeSnapshots{gs: command.GameState{MatchID: "m1", ScoreP1: 11, ScoreP2: 9, SetsP1: 1}, ok: true}
	s := New(snaps, discardLogger())

	first := s.Check(liveMatch(12, 9))
	again := s.Check(liveMatch(12, 9))
	if again.State != Diverged || !again.Warning.Since.Equal(first.Warning.Since) {
		t.Fatalf("divergence should persist with its original timestamp: %+v", again.Warning)
	}
	if got := s.Check(liveMatch(11, 9)); got.State != Consistent {
		t.Fatalf("re-converged states should clear the warning, got %s", got.State)
	}
}

func TestForceIsIdempotent(t *testing.T) {
	t.Parallel()
	snaps := &fakeSnapshots{gs: command.GameState{MatchID: "m1", ScoreP1: 3, AdMuted: true}, ok: true}
	s := New(snaps, discardLogger())
	updates, unsub := s.Subscribe(8)
	defer unsub()

	live := liveMatch(5, 4)
	if s.Check(live).State != Diverged {
		t.Fatal("expected divergence before force")
	}
	<-updates

	for i := 0; i < 2; i++ {
		got, err := s.Force(context.Background(), live)
		if err != nil {
			t.Fatal(err)
		}
		if got.State != Consistent || got.Warning != nil {
			t.Fatalf("force #%d left %+v", i+1, got)
		}
	}
	if snaps.published != 1 {
		t.Fatalf("published %d snapshots, want 1", snaps.published)
	}
	if !snaps.gs.AdMuted || snaps.gs.ScoreP1 != 5 || snaps.gs.Sport != model.SportBadminton {
		t.Fatalf("forced snapshot = %+v", snaps.gs)
	}

	// Exactly one transition back to consistent, no toggling.
	if st := <-updates; st.State != Consistent {
		t.Fatalf("update = %s", st.State)
	}
	select {
	case st := <-updates:
		t.Fatalf("unexpected extra update %+v", st)
	default:
	}
}

func TestForceFailureKeepsWarning(t *testing.T) {
	t.Parallel()
	snaps := &fakeSnapshots{gs: command.GameState{MatchID: "m1"}, ok: true, err: errors.New("channel down")}
	s := New(snaps, discardLogger())
	s.Check(liveMatch(1, 0))

	got, err := s.Force(context.Background(), liveMatch(1, 0))
	if err == nil {
		t.Fatal("expected error")
	}
	if got.State != Diverged {
		t.Fatalf("failed force must not clear the warning, got %s", got.State)
	}
}
