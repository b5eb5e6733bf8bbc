// Package arbitration detects when the shared game-state snapshot and the
// live match disagree and lets an operator force the live state through.
//
// Divergence is never resolved automatically. A warning stays up until the
// operator forces arbitration or both sides happen to converge again.
package arbitration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

type State string

const (
	Consistent State = "consistent"
	Diverged   State = "diverged"
)

// Warning describes a divergence for the operator.
type Warning struct {
	MatchID     string    `json:"match_id"`
	Description string    `json:"description"`
	Since       time.Time `json:"since"`
}

// Status is the supervisor's current verdict.
type Status struct {
	State   State    `json:"state"`
	Warning *Warning `json:"warning,omitempty"`
}

// Live is what the tournament view and the console currently show.
type Live struct {
	Match  model.Match
	Sport  model.SportType
	Locked bool
}

// Snapshots is the shared snapshot holder, normally a *command.Channel.
type Snapshots interface {
	State() (command.GameState, bool)
	PublishState(ctx context.Context, gs command.GameState) error
}

type Supervisor struct {
	snapshots Snapshots
	logger    *slog.Logger

	mu     sync.Mutex
	status Status

	updates *eventbus.Bus[Status]
}

func New(snapshots Snapshots, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		snapshots: snapshots,
		logger:    logger,
		status:    Status{State: Consistent},
		updates:   eventbus.New[Status](),
	}
}

// Status returns the current verdict.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe delivers the status on every state or description change.
func (s *Supervisor) Subscribe(buffer int) (<-chan Status, func()) {
	return s.updates.Subscribe(buffer)
}

// Check compares the snapshot with live and transitions accordingly. A
// missing snapshot, or one about a different match, counts as consistent.
func (s *Supervisor) Check(live Live) Status {
	gs, ok := s.snapshots.State()
	var diffs []string
	if ok && gs.MatchID != "" && gs.MatchID == live.Match.ID {
		diffs = compare(gs, live)
	}
	return s.transition(live.Match.ID, diffs)
}

// Force publishes the live state as the authoritative snapshot and returns
// to consistent. Forcing an already matching snapshot publishes nothing.
func (s *Supervisor) Force(ctx context.Context, live Live) (Status, error) {
	gs, ok := s.snapshots.State()
	if ok && gs.MatchID == live.Match.ID && len(compare(gs, live)) == 0 {
		return s.transition(live.Match.ID, nil), nil
	}

	next := gs.WithMatch(live.Match, live.Sport)
	next.Lock = live.Locked
	if !live.Locked {
		next.LockMsg = ""
	}
	if err := s.snapshots.PublishState(ctx, next); err != nil {
		return s.Status(), fmt.Errorf("force arbitration: %w", err)
	}
	s.logger.Info("Arbitration forced",
		"match_id", live.Match.ID, "score", scoreLine(live.Match.ScoreP1, live.Match.ScoreP2, live.Match.SetsP1, live.Match.SetsP2))
	return s.transition(live.Match.ID, nil), nil
}

func (s *Supervisor) transition(matchID string, diffs []string) Status {
	s.mu.Lock()
	prev := s.status
	var next Status
	if len(diffs) == 0 {
		next = Status{State: Consistent}
	} else {
		w := &Warning{MatchID: matchID, Description: strings.Join(diffs, "; "), Since: time.Now()}
		if prev.Warning != nil && prev.Warning.MatchID == matchID {
			w.Since = prev.Warning.Since
		}
		next = Status{State: Diverged, Warning: w}
	}
	s.status = next
	s.mu.Unlock()

	switch {
	case prev.State == Consistent && next.State == Diverged:
		s.logger.Warn("Snapshot diverged from live match", "match_id", matchID, "description", next.Warning.Description)
	case prev.State == Diverged && next.State == Consistent:
		s.logger.Info("Snapshot consistent with live match", "match_id", matchID)
	}
	if changed(prev, next) {
		s.updates.Publish(next)
	}
	return next
}

func changed(a, b Status) bool {
	if a.State != b.State {
		return true
	}
	if a.Warning == nil || b.Warning == nil {
		return a.Warning != b.Warning
	}
	return a.Warning.Description != b.Warning.Description || a.Warning.MatchID != b.Warning.MatchID
}

// compare lists human-readable differences between the snapshot and live.
func compare(gs command.GameState, live Live) []string {
	var diffs []string
	m := live.Match
	if gs.ScoreP1 != m.ScoreP1 || gs.ScoreP2 != m.ScoreP2 || gs.SetsP1 != m.SetsP1 || gs.SetsP2 != m.SetsP2 {
		diffs = append(diffs, fmt.Sprintf("score: snapshot %s, live %s",
			scoreLine(gs.ScoreP1, gs.ScoreP2, gs.SetsP1, gs.SetsP2),
			scoreLine(m.ScoreP1, m.ScoreP2, m.SetsP1, m.SetsP2)))
	}
	if gs.Lock != live.Locked {
		diffs = append(diffs, fmt.Sprintf("lock: snapshot %s, live %s", lockWord(gs.Lock), lockWord(live.Locked)))
	}
	if gs.Sport != "" && live.Sport != "" && gs.Sport != live.Sport {
		diffs = append(diffs, fmt.Sprintf("sport: snapshot %s, live %s", gs.Sport, live.Sport))
	}
	return diffs
}

func scoreLine(p1, p2, s1, s2 int) string {
	return fmt.Sprintf("%d-%d (sets %d-%d)", p1, p2, s1, s2)
}

func lockWord(locked bool) string {
	if locked {
		return "locked"
	}
	return "unlocked"
}
