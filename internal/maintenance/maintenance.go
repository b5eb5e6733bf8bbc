// Package maintenance runs periodic background tasks on cron schedules.
// All scheduled work lives in the console process, which is long-running
// anyway for LISTEN/NOTIFY.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one scheduled job. An empty Spec registers the task for manual
// triggering only.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler owns a cron instance and the registered tasks.
type Scheduler struct {
	c      *cron.Cron
	logger *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	tasks map[string]Task
	// running guards against overlapping runs of the same task.
	running map[string]bool
}

// New validates the specs and registers the tasks. Nothing runs until Run.
func New(tasks []Task, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		c:       cron.New(), // standard 5-field spec, server local time
		logger:  logger,
		ctx:     context.Background(),
		tasks:   make(map[string]Task, len(tasks)),
		running: map[string]bool{},
	}
	for _, t := range tasks {
		if _, dup := s.tasks[t.Name]; dup {
			return nil, fmt.Errorf("duplicate maintenance task %q", t.Name)
		}
		s.tasks[t.Name] = t
		if t.Spec == "" {
			continue
		}
		name := t.Name
		if _, err := s.c.AddFunc(t.Spec, func() { s.run(name) }); err != nil {
			return nil, fmt.Errorf("task %s: invalid schedule %q: %w", t.Name, t.Spec, err)
		}
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs. Intended to be called with `go`.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("Maintenance scheduler started", "tasks", len(s.tasks))
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	s.logger.Info("Maintenance scheduler stopped")
}

// Trigger runs a task now in the background. It reports false for unknown
// tasks or when the task is already running.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	_, ok := s.tasks[name]
	busy := s.running[name]
	s.mu.Unlock()
	if !ok || busy {
		return false
	}
	go s.run(name)
	return true
}

func (s *Scheduler) run(name string) {
	s.mu.Lock()
	t := s.tasks[name]
	ctx := s.ctx
	if s.running[name] {
		s.mu.Unlock()
		s.logger.Debug("Maintenance task still running, skipping", "task", name)
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := t.Run(ctx)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		s.logger.Warn("Maintenance task failed", "task", name, "duration", dur, "error", err)
		return
	}
	s.logger.Debug("Maintenance task done", "task", name, "duration", dur)
}
