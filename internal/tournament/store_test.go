package tournament

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/feed"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/memstore"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBackend wraps the in-memory store with failure injection, a gate on
// match fetches and call counters.
type testBackend struct {
	*memstore.Store

	mu          sync.Mutex
	fail        error
	activeCalls int
	updateCalls int

	// gate holds the next match fetch for gateID until closed, then fails it
	// with gateErr if set. It fires once.
	gateID  string
	gate    chan struct{}
	entered chan struct{}
	gateErr error
}

func newTestBackend() *testBackend {
	return &testBackend{Store: memstore.New()}
}

func (b *testBackend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func (b *testBackend) reloads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeCalls
}

func (b *testBackend) ListActiveTournaments(ctx context.Context) ([]model.Tournament, error) {
	b.mu.Lock()
	b.activeCalls++
	err := b.fail
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Store.ListActiveTournaments(ctx)
}

func (b *testBackend) ListMatches(ctx context.Context, tournamentID string) ([]model.Match, error) {
	b.mu.Lock()
	gated := b.gate != nil && tournamentID == b.gateID
	gate, entered, gateErr := b.gate, b.entered, b.gateErr
	if gated {
		b.gate = nil
	}
	b.mu.Unlock()
	if gated {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if gateErr != nil {
			return nil, gateErr
		}
	}
	return b.Store.ListMatches(ctx, tournamentID)
}

func (b *testBackend) UpdateMatch(ctx context.Context, id string, u model.MatchUpdate) error {
	b.mu.Lock()
	b.updateCalls++
	b.mu.Unlock()
	return b.Store.UpdateMatch(ctx, id, u)
}

func newTestStore(t *testing.T, b Backend) *Store {
	t.Helper()
	s := New(b, "", discardLogger())
	t.Cleanup(s.Close)
	return s
}

func mustCreate(t *testing.T, s *Store, spec Spec) model.Tournament {
	t.Helper()
	created, err := s.CreateTournament(context.Background(), spec)
	if err != nil {
		t.Fatalf("CreateTournament(%q): %v", spec.Name, err)
	}
	return created
}

func TestCreateTournamentCountsTeamsPerCategory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())

	created := mustCreate(t, s, Spec{
		Name: "Spring Open",
		Type: model.SportBadminton,
		Categories: []CategorySpec{
			{Name: "Men's Singles", Format: "singles", Roster: "Lee\nChen\n\nWong\n"},
			{Name: "Women's Singles", Roster: "Tan\nLim"},
		},
	})

	v := s.View()
	if v.TournamentID() != created.ID {
		t.Fatalf("created tournament should be selected, view has %q", v.TournamentID())
	}
	perCategory := map[string]int{}
	for _, p := range v.Players {
		perCategory[p.Category]++
	}
	cats := v.Tournament.ParsedConfig().Categories
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	for _, c := range cats {
		if c.TeamCount != perCategory[c.Name] {
			t.Errorf("category %q: team_count %d, players %d", c.Name, c.TeamCount, perCategory[c.Name])
		}
		if c.Format != "singles" {
			t.Errorf("category %q: format %q, want singles", c.Name, c.Format)
		}
	}
	if cats[0].TeamCount != 3 || cats[1].TeamCount != 2 {
		t.Fatalf("unexpected team counts: %+v", cats)
	}
	if len(v.Matches) != 0 {
		t.Fatalf("category path should not seed a match, got %d", len(v.Matches))
	}
	if len(v.Ads) != 1 || v.Ads[0].DisplayLocation != model.AdSidebar || !v.Ads[0].IsActive {
		t.Fatalf("expected one active sidebar placeholder ad, got %+v", v.Ads)
	}
}

func TestCreateTournamentTwoEntrantsSeedsLiveMatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())
	mustCreate(t, s, Spec{Name: "Exhibition", Type: model.SportTennis, Entrants: []string{"Ana", " ", "Bea"}})

	v := s.View()
	m, ok := v.LiveMatch(seededCourtID)
	if !ok {
		t.Fatalf("expected a live match on court %s, matches: %+v", seededCourtID, v.Matches)
	}
	if v.PlayerName(m.Player1ID) != "Ana" || v.PlayerName(m.Player2ID) != "Bea" {
		t.Fatalf("unexpected players %q vs %q", v.PlayerName(m.Player1ID), v.PlayerName(m.Player2ID))
	}
	if m.ServerSide != 1 || model.Deref(m.ServingPlayerID) != model.Deref(m.Player1ID) {
		t.Fatalf("player 1 should serve first: side=%d serving=%v", m.ServerSide, m.ServingPlayerID)
	}
	if m.RoundName != seededRoundName {
		t.Fatalf("round = %q", m.RoundName)
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())

	tests := []struct {
		name string
		spec Spec
	}{
		{"blank name", Spec{Name: "  "}},
		{"unknown sport", Spec{Name: "X", Type: "curling"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.CreateTournament(context.Background(), tc.spec); !errors.Is(err, model.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestEventForOtherTournamentDoesNotReload(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	ctx := context.Background()

	a := mustCreate(t, s, Spec{Name: "A", Entrants: []string{"a1", "a2"}})
	bt := mustCreate(t, s, Spec{Name: "B", Entrants: []string{"b1", "b2"}})
	if err := s.Select(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Select(ctx, bt.ID); err != nil {
		t.Fatal(err)
	}
	before := s.View()
	calls := b.reloads()

	matchesA, _ := b.Store.ListMatches(ctx, a.ID)
	if err := b.Store.UpdateMatch(ctx, matchesA[0].ID, model.MatchUpdate{ScoreP1: intPtr(5)}); err != nil {
		t.Fatal(err)
	}
	ev := feed.Event{Op: feed.OpUpdate, Table: model.MatchesTable,
		Row: []byte(`{"id":"` + matchesA[0].ID + `","tournament_id":"` + a.ID + `"}`)}
	if err := s.HandleChange(ctx, ev); err != nil {
		t.Fatal(err)
	}

	if b.reloads() != calls {
		t.Fatalf("event for unselected tournament triggered a reload")
	}
	after := s.View()
	if after.TournamentID() != bt.ID || !after.LoadedAt.Equal(before.LoadedAt) {
		t.Fatalf("view changed: %q loaded %v, was %q loaded %v",
			after.TournamentID(), after.LoadedAt, before.TournamentID(), before.LoadedAt)
	}

	// Events for the selected tournament and for any tournament row do reload.
	for _, ev := range []feed.Event{
		{Op: feed.OpUpdate, Table: model.MatchesTable, Row: []byte(`{"tournament_id":"` + bt.ID + `"}`)},
		{Op: feed.OpUpdate, Table: model.TournamentsTable, Row: []byte(`{"id":"` + a.ID + `"}`)},
	} {
		calls = b.reloads()
		if err := s.HandleChange(ctx, ev); err != nil {
			t.Fatal(err)
		}
		if b.reloads() != calls+1 {
			t.Fatalf("event on %s should reload", ev.Table)
		}
	}
}

func TestReloadForPreviousSelectionIsDiscarded(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	ctx := context.Background()

	a := mustCreate(t, s, Spec{Name: "A", Entrants: []string{"a1", "a2"}})
	bt := mustCreate(t, s, Spec{Name: "B"})
	if err := s.Select(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	b.gateID, b.gate, b.entered = a.ID, make(chan struct{}), make(chan struct{})
	entered := b.entered
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Reload(ctx) }()
	<-entered

	if err := s.Select(ctx, bt.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("superseded reload should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded reload was not cancelled")
	}

	v := s.View()
	if v.TournamentID() != bt.ID {
		t.Fatalf("view = %q, want %q", v.TournamentID(), bt.ID)
	}
	if v.Health != HealthOK {
		t.Fatalf("cancelled reload must not degrade health, got %s", v.Health)
	}
}

func TestSupersededOrCancelledReloadKeepsHealth(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	ctx := context.Background()
	a := mustCreate(t, s, Spec{Name: "A", Entrants: []string{"a1", "a2"}})

	// An older reload failing after a newer one committed.
	b.mu.Lock()
	b.gateID, b.gate, b.entered = a.ID, make(chan struct{}), make(chan struct{})
	b.gateErr = errors.New("connection reset")
	gate, entered := b.gate, b.entered
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Reload(ctx) }()
	<-entered
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err == nil {
		t.Fatal("expected the older reload to report its error")
	}
	if v := s.View(); v.Health != HealthOK {
		t.Fatalf("superseded failure degraded health: %s %q", v.Health, v.LastError)
	}

	// A caller that gives up mid-reload.
	b.mu.Lock()
	b.gateID, b.gate, b.entered, b.gateErr = a.ID, make(chan struct{}), make(chan struct{}), nil
	entered = b.entered
	b.mu.Unlock()

	reqCtx, cancel := context.WithCancel(ctx)
	go func() { done <- s.Reload(reqCtx) }()
	<-entered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if v := s.View(); v.Health != HealthOK {
		t.Fatalf("cancelled reload degraded health: %s %q", v.Health, v.LastError)
	}
}

func TestSelectVanishedTournamentAdoptsNewestActive(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	ctx := context.Background()
	created := mustCreate(t, s, Spec{Name: "Cup", Entrants: []string{"x", "y"}})

	if err := s.Select(ctx, "does-not-exist"); err != nil {
		t.Fatal(err)
	}
	if got := s.View().TournamentID(); got != created.ID {
		t.Fatalf("view = %q, want %q", got, created.ID)
	}
	if got := s.Selected(); got != created.ID {
		t.Fatalf("selection = %q, want the tournament on screen %q", got, created.ID)
	}

	// Writes and change events follow the tournament on screen.
	if _, err := s.AddAd(ctx, AdSpec{URL: "https://x/a.png"}); err != nil {
		t.Fatalf("AddAd: %v", err)
	}
	m := s.View().Matches[0]
	ev := feed.Event{Op: feed.OpUpdate, Table: model.MatchesTable,
		Row: []byte(`{"id":"` + m.ID + `","tournament_id":"` + created.ID + `"}`)}
	calls := b.reloads()
	if err := s.HandleChange(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if b.reloads() != calls+1 {
		t.Fatal("event for the tournament on screen was ignored")
	}

	// With nothing left to show, the selection falls back to automatic.
	b2 := newTestBackend()
	empty := newTestStore(t, b2)
	if err := empty.Select(ctx, "does-not-exist"); err != nil {
		t.Fatal(err)
	}
	if got := empty.Selected(); got != "" {
		t.Fatalf("selection = %q, want automatic", got)
	}
}

func TestReloadFailureKeepsLastGoodView(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	created := mustCreate(t, s, Spec{Name: "Cup", Entrants: []string{"x", "y"}})

	b.setFail(errors.New("connection refused"))
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	v := s.View()
	if v.Health != HealthDegraded || v.LastError == "" {
		t.Fatalf("expected degraded health with error, got %s %q", v.Health, v.LastError)
	}
	if v.TournamentID() != created.ID || len(v.Matches) != 1 {
		t.Fatalf("last good view was not kept: %+v", v)
	}

	b.setFail(nil)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.View().Health != HealthOK {
		t.Fatal("successful reload should restore health")
	}
}

func TestMutateMatchStatusIsMonotonic(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	ctx := context.Background()
	mustCreate(t, s, Spec{Name: "Cup", Entrants: []string{"x", "y"}})
	m := s.View().Matches[0]

	scheduled := model.MatchScheduled
	err := s.MutateMatch(ctx, m.ID, model.MatchUpdate{Status: &scheduled})
	if !errors.Is(err, model.ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
	if b.updateCalls != 0 {
		t.Fatal("regressing write should not reach the backend")
	}

	completed := model.MatchCompleted
	if err := s.MutateMatch(ctx, m.ID, model.MatchUpdate{Status: &completed, WinnerID: m.Player1ID}); err != nil {
		t.Fatal(err)
	}
	// No optimistic update: the view is unchanged until a reload.
	if got, _ := s.View().Match(m.ID); got.Status != model.MatchOngoing {
		t.Fatalf("view changed before reload: %s", got.Status)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.View().Match(m.ID); got.Status != model.MatchCompleted {
		t.Fatalf("status after reload = %s", got.Status)
	}

	// The backend guards too, for writes racing a stale view.
	ongoing := model.MatchOngoing
	if err := b.Store.UpdateMatch(ctx, m.ID, model.MatchUpdate{Status: &ongoing}); !errors.Is(err, model.ErrStatusRegression) {
		t.Fatalf("backend accepted regression: %v", err)
	}
}

func TestMutateMatchRejectsEmptyUpdate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())
	if err := s.MutateMatch(context.Background(), "m1", model.MatchUpdate{}); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestEndTournamentFollowsNewestActive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())
	ctx := context.Background()

	if err := s.EndTournament(ctx); !errors.Is(err, model.ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}

	first := mustCreate(t, s, Spec{Name: "First"})
	second := mustCreate(t, s, Spec{Name: "Second"})
	third := mustCreate(t, s, Spec{Name: "Third"})
	if err := s.Select(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.EndTournament(ctx); err != nil {
		t.Fatal(err)
	}
	v := s.View()
	if v.TournamentID() != third.ID {
		t.Fatalf("after end, view = %q, want newest active %q", v.TournamentID(), third.ID)
	}
	if s.Selected() != third.ID {
		t.Fatalf("automatic selection should resolve to %q, got %q", third.ID, s.Selected())
	}
	for _, a := range v.Active {
		if a.ID == second.ID {
			t.Fatal("completed tournament still listed as active")
		}
	}
	if len(v.Active) != 2 || v.Active[1].ID != first.ID {
		t.Fatalf("unexpected active list: %+v", v.Active)
	}
}

func TestAddAdDefaultsAndValidation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, newTestBackend())
	ctx := context.Background()

	if _, err := s.AddAd(ctx, AdSpec{URL: "https://x/a.png"}); !errors.Is(err, model.ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	mustCreate(t, s, Spec{Name: "Cup"})

	ad, err := s.AddAd(ctx, AdSpec{URL: "https://x/a.mp4", Type: model.AdVideo, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	if ad.DisplayLocation != model.AdFullscreen || ad.Duration != defaultAdDuration {
		t.Fatalf("defaults not applied: %+v", ad)
	}
	if _, err := s.AddAd(ctx, AdSpec{URL: "u", DisplayLocation: "ceiling"}); !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	active, err := s.ToggleAd(ctx, ad.ID)
	if err != nil || active {
		t.Fatalf("toggle: active=%v err=%v", active, err)
	}
	if err := s.DeleteAd(ctx, ad.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAd(ctx, ad.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

// readySource signals once the store has subscribed.
type readySource struct {
	feed.Source
	ready chan struct{}
}

func (r readySource) Subscribe(buffer int) (<-chan feed.Event, func()) {
	ch, cancel := r.Source.Subscribe(buffer)
	close(r.ready)
	return ch, cancel
}

func TestWatchReloadsOnCommittedWrite(t *testing.T) {
	t.Parallel()
	b := newTestBackend()
	s := newTestStore(t, b)
	mustCreate(t, s, Spec{Name: "Cup", Entrants: []string{"x", "y"}})
	m := s.View().Matches[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, unsubscribe := s.Subscribe(8)
	defer unsubscribe()

	src := readySource{Source: b.Store, ready: make(chan struct{})}
	go s.Watch(ctx, src)
	<-src.ready

	if err := s.MutateMatch(ctx, m.ID, model.MatchUpdate{ScoreP1: intPtr(11), ScoreP2: intPtr(9)}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-updates:
			if got, _ := v.Match(m.ID); got.ScoreP1 == 11 && got.ScoreP2 == 9 {
				return
			}
		case <-deadline:
			t.Fatal("view never reflected the committed write")
		}
	}
}

func intPtr(n int) *int { return &n }
