package tournament

import (
	"context"
	"sync"
)

// selection is the single owned cell every reader of "which tournament is
// selected" goes through. Feed handlers read it when an event arrives, never
// a value captured at subscribe time.
//
// Each explicit change bumps the generation and cancels the context handed to
// reloads of the previous generation, so their late results are dropped.
type selection struct {
	mu     sync.Mutex
	id     string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func newSelection(id string) *selection {
	ctx, cancel := context.WithCancel(context.Background())
	return &selection{id: id, ctx: ctx, cancel: cancel}
}

// set switches the selection and returns the new generation.
func (s *selection) set(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.id = id
	s.gen++
	return s.gen
}

// resolve records the tournament a reload actually loaded for an automatic
// or vanished selection, without starting a new generation. It is a no-op if
// the generation moved on in the meantime.
func (s *selection) resolve(gen uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.id = id
	}
}

func (s *selection) current() (id string, gen uint64, ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.gen, s.ctx
}

func (s *selection) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *selection) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}
