// Package memstore is an in-process backing store with a change feed. It
// mirrors the Postgres repository and trigger closely enough for a console
// to run without a database (single-node demo, rehearsals) and for tests.
//
// Every committed write publishes a feed.Event after the lock is released,
// the same way the database trigger notifies after commit.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/feed"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Store holds all rows in memory.
type Store struct {
	mu          sync.RWMutex
	tournaments map[string]model.Tournament
	players     map[string]model.Player
	matches     map[string]model.Match
	ads         map[string]model.SponsorAd
	gameStates  map[string][]byte

	bus *eventbus.Bus[feed.Event]
	now func() time.Time
	// tick orders rows created within the same clock reading.
	tick time.Duration
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tournaments: map[string]model.Tournament{},
		players:     map[string]model.Player{},
		matches:     map[string]model.Match{},
		ads:         map[string]model.SponsorAd{},
		gameStates:  map[string][]byte{},
		bus:         eventbus.New[feed.Event](),
		now:         time.Now,
	}
}

// Subscribe implements feed.Source.
func (s *Store) Subscribe(buffer int) (<-chan feed.Event, func()) {
	return s.bus.Subscribe(buffer)
}

// stamp returns a strictly increasing creation time. Caller holds mu.
func (s *Store) stamp() time.Time {
	s.tick += time.Microsecond
	return s.now().Add(s.tick)
}

func (s *Store) emit(events ...feed.Event) {
	for _, e := range events {
		s.bus.Publish(e)
	}
}

func event(op feed.Op, table string, row any) feed.Event {
	raw, _ := json.Marshal(row)
	return feed.Event{Op: op, Table: table, Row: raw}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (s *Store) ListActiveTournaments(ctx context.Context) ([]model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Tournament
	for _, t := range s.tournaments {
		if t.Status == model.TournamentActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListTournaments returns every tournament, newest first.
func (s *Store) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", id, model.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListMatches(ctx context.Context, tournamentID string) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Match
	for _, m := range s.matches {
		if m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPlayers(ctx context.Context, tournamentID string) ([]model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Player
	for _, p := range s.players {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListActiveAds(ctx context.Context, tournamentID string) ([]model.SponsorAd, error) {
	all, _ := s.ListAds(ctx, tournamentID)
	out := all[:0]
	for _, ad := range all {
		if ad.IsActive {
			out = append(out, ad)
		}
	}
	return out, nil
}

// ListAds returns all of the tournament's ads in creation order.
func (s *Store) ListAds(ctx context.Context, tournamentID string) ([]model.SponsorAd, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SponsorAd
	for _, ad := range s.ads {
		if ad.TournamentID == tournamentID {
			out = append(out, ad)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (s *Store) UpdateMatch(ctx context.Context, id string, u model.MatchUpdate) error {
	s.mu.Lock()
	m, ok := s.matches[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	if u.Status != nil && !m.Status.CanMoveTo(*u.Status) {
		s.mu.Unlock()
		return fmt.Errorf("match %s is %s: %w", id, m.Status, model.ErrStatusRegression)
	}
	m = u.Apply(m)
	m.UpdatedAt = s.now()
	s.matches[id] = m
	s.mu.Unlock()

	s.emit(event(feed.OpUpdate, model.MatchesTable, m))
	return nil
}

func (s *Store) CreateTournament(ctx context.Context, b model.TournamentBundle) error {
	s.mu.Lock()
	if _, exists := s.tournaments[b.Tournament.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s already exists", b.Tournament.ID)
	}
	var events []feed.Event

	t := b.Tournament
	t.CreatedAt = s.stamp()
	t.UpdatedAt = t.CreatedAt
	s.tournaments[t.ID] = t
	events = append(events, event(feed.OpInsert, model.TournamentsTable, t))

	for _, p := range b.Players {
		p.CreatedAt = s.stamp()
		s.players[p.ID] = p
		events = append(events, event(feed.OpInsert, model.PlayersTable, p))
	}
	if b.Match != nil {
		m := *b.Match
		m.CreatedAt = s.stamp()
		m.UpdatedAt = m.CreatedAt
		s.matches[m.ID] = m
		events = append(events, event(feed.OpInsert, model.MatchesTable, m))
	}
	for _, ad := range b.Ads {
		ad.CreatedAt = s.stamp()
		s.ads[ad.ID] = ad
		events = append(events, event(feed.OpInsert, model.SponsorAdsTable, ad))
	}
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

// InsertMatch adds a bracket match. Used by demo seeding.
func (s *Store) InsertMatch(ctx context.Context, m model.Match) error {
	s.mu.Lock()
	if _, ok := s.tournaments[m.TournamentID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s: %w", m.TournamentID, model.ErrNotFound)
	}
	if m.Status == "" {
		m.Status = model.MatchScheduled
	}
	m.CreatedAt = s.stamp()
	m.UpdatedAt = m.CreatedAt
	s.matches[m.ID] = m
	s.mu.Unlock()

	s.emit(event(feed.OpInsert, model.MatchesTable, m))
	return nil
}

func (s *Store) SetTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error {
	s.mu.Lock()
	t, ok := s.tournaments[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s: %w", id, model.ErrNotFound)
	}
	if status.Rank() < t.Status.Rank() {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s to %s: %w", id, status, model.ErrStatusRegression)
	}
	t.Status = status
	t.UpdatedAt = s.now()
	s.tournaments[id] = t
	s.mu.Unlock()

	s.emit(event(feed.OpUpdate, model.TournamentsTable, t))
	return nil
}

func (s *Store) InsertAd(ctx context.Context, ad model.SponsorAd) error {
	s.mu.Lock()
	if _, ok := s.tournaments[ad.TournamentID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s: %w", ad.TournamentID, model.ErrNotFound)
	}
	ad.CreatedAt = s.stamp()
	s.ads[ad.ID] = ad
	s.mu.Unlock()

	s.emit(event(feed.OpInsert, model.SponsorAdsTable, ad))
	return nil
}

func (s *Store) ToggleAd(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	ad, ok := s.ads[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("ad %s: %w", id, model.ErrNotFound)
	}
	ad.IsActive = !ad.IsActive
	s.ads[id] = ad
	s.mu.Unlock()

	s.emit(event(feed.OpUpdate, model.SponsorAdsTable, ad))
	return ad.IsActive, nil
}

func (s *Store) DeleteAd(ctx context.Context, id string) error {
	s.mu.Lock()
	ad, ok := s.ads[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("ad %s: %w", id, model.ErrNotFound)
	}
	delete(s.ads, id)
	s.mu.Unlock()

	s.emit(event(feed.OpDelete, model.SponsorAdsTable, ad))
	return nil
}

// --------------------------------------------------------------------------
// Game state documents
// --------------------------------------------------------------------------

func (s *Store) LoadGameState(ctx context.Context, tournamentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.gameStates[tournamentID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (s *Store) SaveGameState(ctx context.Context, tournamentID string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameStates[tournamentID] = append([]byte(nil), doc...)
	return nil
}
