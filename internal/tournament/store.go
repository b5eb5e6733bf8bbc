// Package tournament holds the client-side view of the selected tournament
// and keeps it eventually consistent with the backing store.
//
// The store never predicts the result of a write. Every mutation goes to the
// backend and the view only changes when the change feed reports the commit
// and a reload picks it up. Fetch failures keep the last good view; write
// failures are returned to the caller. Nothing is retried automatically.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/feed"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Backend is the backing store the view is loaded from and written to.
type Backend interface {
	ListActiveTournaments(ctx context.Context) ([]model.Tournament, error)
	GetTournament(ctx context.Context, id string) (model.Tournament, error)
	ListMatches(ctx context.Context, tournamentID string) ([]model.Match, error)
	ListPlayers(ctx context.Context, tournamentID string) ([]model.Player, error)
	ListActiveAds(ctx context.Context, tournamentID string) ([]model.SponsorAd, error)

	UpdateMatch(ctx context.Context, id string, u model.MatchUpdate) error
	CreateTournament(ctx context.Context, b model.TournamentBundle) error
	SetTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error
	InsertAd(ctx context.Context, ad model.SponsorAd) error
	ToggleAd(ctx context.Context, id string) (bool, error)
	DeleteAd(ctx context.Context, id string) error
}

// Store owns the in-memory view for one console process.
type Store struct {
	backend Backend
	logger  *slog.Logger
	sel     *selection

	mu        sync.RWMutex
	view      View
	committed uint64 // sequence number of the reload that produced view

	seqMu sync.Mutex
	seq   uint64

	// writeMu keeps locally issued writes in call order.
	writeMu sync.Mutex

	updates *eventbus.Bus[View]
	newID   func() string
}

// New creates a store. initialID may be empty to follow the most recently
// created active tournament.
func New(backend Backend, initialID string, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		sel:     newSelection(initialID),
		view:    View{Health: HealthOK, Players: map[string]model.Player{}},
		updates: eventbus.New[View](),
		newID:   uuid.NewString,
	}
}

// View returns a copy of the current view.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.clone()
}

// Selected returns the currently selected tournament id ("" = automatic).
func (s *Store) Selected() string {
	id, _, _ := s.sel.current()
	return id
}

// Subscribe delivers a copy of the view after every commit or health change.
func (s *Store) Subscribe(buffer int) (<-chan View, func()) {
	return s.updates.Subscribe(buffer)
}

// Close cancels any in-flight reload.
func (s *Store) Close() {
	s.sel.close()
}

// --------------------------------------------------------------------------
// Selection and reload
// --------------------------------------------------------------------------

// Select switches to tournament id, or to the most recently created active
// tournament when id is empty, and performs a full reload. Reloads still in
// flight for the previous selection are cancelled and their results dropped.
func (s *Store) Select(ctx context.Context, id string) error {
	s.sel.set(id)
	s.logger.Info("Tournament selected", "tournament_id", orAuto(id))
	return s.Reload(ctx)
}

// Reload fetches active tournaments, matches, players and active ads for the
// current selection and swaps them in as a whole. On failure the previous
// view is kept, the health indicator flips to degraded and the error is
// returned. A reload overtaken by a selection change returns nil and commits
// nothing.
func (s *Store) Reload(ctx context.Context) error {
	id, gen, selCtx := s.sel.current()
	seq := s.nextSeq()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(selCtx, cancel)
	defer stop()

	start := time.Now()
	next, err := s.fetch(ctx, id)
	if s.sel.generation() != gen {
		s.logger.Debug("Discarding reload for previous selection", "tournament_id", orAuto(id))
		return nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancelled by the caller, not a backend fault.
			return fmt.Errorf("reload: %w", err)
		}
		if !s.markDegraded(err, seq) {
			s.logger.Debug("Ignoring failure of superseded reload", "tournament_id", orAuto(id), "error", err)
			return fmt.Errorf("reload: %w", err)
		}
		s.logger.Warn("Tournament reload failed, keeping last good view",
			"tournament_id", orAuto(id), "error", err)
		return fmt.Errorf("reload: %w", err)
	}

	// An automatic or vanished selection follows what was actually loaded.
	if resolved := next.TournamentID(); resolved != id {
		s.sel.resolve(gen, resolved)
	}
	if s.commit(next, seq, gen) {
		s.logger.Debug("Tournament view reloaded",
			"tournament_id", next.TournamentID(),
			"matches", len(next.Matches), "players", len(next.Players), "ads", len(next.Ads),
			"duration", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, id string) (View, error) {
	next := View{Health: HealthOK, Players: map[string]model.Player{}}

	active, err := s.backend.ListActiveTournaments(ctx)
	if err != nil {
		return View{}, fmt.Errorf("list active tournaments: %w", err)
	}
	next.Active = active

	target, err := s.resolveTarget(ctx, id, active)
	if err != nil {
		return View{}, err
	}
	if target == nil {
		next.LoadedAt = time.Now()
		return next, nil
	}
	next.Tournament = target

	if next.Matches, err = s.backend.ListMatches(ctx, target.ID); err != nil {
		return View{}, fmt.Errorf("list matches: %w", err)
	}
	players, err := s.backend.ListPlayers(ctx, target.ID)
	if err != nil {
		return View{}, fmt.Errorf("list players: %w", err)
	}
	for _, p := range players {
		next.Players[p.ID] = p
	}
	if next.Ads, err = s.backend.ListActiveAds(ctx, target.ID); err != nil {
		return View{}, fmt.Errorf("list active ads: %w", err)
	}
	next.LoadedAt = time.Now()
	return next, nil
}

// resolveTarget picks the tournament to load. An empty id means the newest
// active one; a selected id that no longer exists falls back to the same.
func (s *Store) resolveTarget(ctx context.Context, id string, active []model.Tournament) (*model.Tournament, error) {
	if id != "" {
		for i := range active {
			if active[i].ID == id {
				t := active[i]
				return &t, nil
			}
		}
		t, err := s.backend.GetTournament(ctx, id)
		if err == nil {
			return &t, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("get tournament: %w", err)
		}
		s.logger.Warn("Selected tournament no longer exists, following newest active",
			"tournament_id", id)
	}
	if len(active) == 0 {
		return nil, nil
	}
	t := active[0]
	return &t, nil
}

func (s *Store) nextSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// commit installs next unless the selection moved on or a later reload
// already committed.
func (s *Store) commit(next View, seq, gen uint64) bool {
	s.mu.Lock()
	if seq < s.committed || s.sel.generation() != gen {
		s.mu.Unlock()
		return false
	}
	s.committed = seq
	s.view = next
	out := next.clone()
	s.mu.Unlock()

	s.updates.Publish(out)
	return true
}

// markDegraded flags the view unless a reload started after seq already
// committed fresher data.
func (s *Store) markDegraded(err error, seq uint64) bool {
	s.mu.Lock()
	if seq < s.committed {
		s.mu.Unlock()
		return false
	}
	s.view.Health = HealthDegraded
	s.view.LastError = err.Error()
	out := s.view.clone()
	s.mu.Unlock()

	s.updates.Publish(out)
	return true
}

// --------------------------------------------------------------------------
// Change feed
// --------------------------------------------------------------------------

// Watch consumes change events until ctx is cancelled, then unsubscribes.
// Intended to be called with `go`; callers that must not miss events between
// startup and the first reload subscribe themselves and use Consume.
func (s *Store) Watch(ctx context.Context, src feed.Source) {
	events, unsubscribe := src.Subscribe(256)
	defer unsubscribe()
	s.Consume(ctx, events)
}

// Consume applies events from an existing subscription until ctx is cancelled
// or the channel closes. Bursts are coalesced: everything already queued is
// drained before a single reload runs.
func (s *Store) Consume(ctx context.Context, events <-chan feed.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			relevant := s.relevant(ev)
		drain:
			for {
				select {
				case more, ok := <-events:
					if !ok {
						break drain
					}
					relevant = relevant || s.relevant(more)
				default:
					break drain
				}
			}
			if relevant {
				_ = s.Reload(ctx)
			}
		}
	}
}

// HandleChange applies a single change event. It is what Watch calls for each
// coalesced batch and is exported for transports that push events directly.
func (s *Store) HandleChange(ctx context.Context, ev feed.Event) error {
	if !s.relevant(ev) {
		return nil
	}
	return s.Reload(ctx)
}

// relevant re-reads the current selection (never a captured copy) and decides
// whether the event can affect the view.
func (s *Store) relevant(ev feed.Event) bool {
	if !feed.Watched(ev.Table) {
		return false
	}
	if ev.Table == model.TournamentsTable {
		// The switch menu lists every active tournament.
		return true
	}

	selected := s.Selected()
	if selected == "" {
		selected = s.View().TournamentID()
	}
	owner := ev.TournamentID()
	return owner == "" || owner == selected
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// MutateMatch writes the given fields to the backing store. The view is not
// touched; it catches up through the change feed. A status that would move
// the match backwards is rejected.
func (s *Store) MutateMatch(ctx context.Context, matchID string, u model.MatchUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Empty() {
		return fmt.Errorf("%w: empty match update", model.ErrInvalid)
	}
	if u.Status != nil {
		if cur, ok := s.View().Match(matchID); ok && !cur.Status.CanMoveTo(*u.Status) {
			return fmt.Errorf("match %s is %s, cannot set %s: %w",
				matchID, cur.Status, *u.Status, model.ErrStatusRegression)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.UpdateMatch(ctx, matchID, u); err != nil {
		s.logger.Warn("Match update rejected", "match_id", matchID, "error", err)
		return err
	}
	return nil
}

// EndTournament completes the selected tournament, clears the selection and
// reloads, which follows the newest remaining active tournament if any.
func (s *Store) EndTournament(ctx context.Context) error {
	id := s.Selected()
	if id == "" {
		return model.ErrNoSelection
	}

	s.writeMu.Lock()
	err := s.backend.SetTournamentStatus(ctx, id, model.TournamentCompleted)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("end tournament %s: %w", id, err)
	}
	s.logger.Info("Tournament ended", "tournament_id", id)

	s.sel.set("")
	return s.Reload(ctx)
}

// AdSpec describes a sponsor ad to add to the selected tournament.
type AdSpec struct {
	Type            model.AdKind     `json:"type"`
	URL             string           `json:"url"`
	Duration        int              `json:"duration"`
	IsActive        bool             `json:"is_active"`
	DisplayLocation model.AdLocation `json:"display_location"`
}

// AddAd inserts a sponsor ad for the selected tournament.
func (s *Store) AddAd(ctx context.Context, spec AdSpec) (model.SponsorAd, error) {
	id := s.Selected()
	if id == "" {
		return model.SponsorAd{}, model.ErrNoSelection
	}
	if spec.URL == "" {
		return model.SponsorAd{}, fmt.Errorf("%w: ad url is required", model.ErrInvalid)
	}
	if spec.Type == "" {
		spec.Type = model.AdImage
	}
	if spec.Type != model.AdImage && spec.Type != model.AdVideo {
		return model.SponsorAd{}, fmt.Errorf("%w: unknown ad type %q", model.ErrInvalid, spec.Type)
	}
	switch spec.DisplayLocation {
	case "":
		spec.DisplayLocation = model.AdFullscreen
	case model.AdFullscreen, model.AdSidebar, model.AdBanner:
	default:
		return model.SponsorAd{}, fmt.Errorf("%w: unknown display location %q", model.ErrInvalid, spec.DisplayLocation)
	}
	if spec.Duration <= 0 {
		spec.Duration = defaultAdDuration
	}

	ad := model.SponsorAd{
		ID:              s.newID(),
		TournamentID:    id,
		Type:            spec.Type,
		URL:             spec.URL,
		Duration:        spec.Duration,
		IsActive:        spec.IsActive,
		DisplayLocation: spec.DisplayLocation,
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.InsertAd(ctx, ad); err != nil {
		return model.SponsorAd{}, err
	}
	return ad, nil
}

// ToggleAd flips an ad's active flag and returns the new value.
func (s *Store) ToggleAd(ctx context.Context, adID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.backend.ToggleAd(ctx, adID)
}

// DeleteAd removes an ad.
func (s *Store) DeleteAd(ctx context.Context, adID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.backend.DeleteAd(ctx, adID)
}

func orAuto(id string) string {
	if id == "" {
		return "(auto)"
	}
	return id
}
