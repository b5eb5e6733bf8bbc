// Package settings persists the console's operator settings (audio deck
// targets, fade length, fallback creative, branding) in a YAML file.
//
// The file is loaded once at start, saved on every change made through the
// Manager and watched so that hand edits are picked up without a restart.
// Components receive the *Manager explicitly; there is no package state.
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

const (
	DefaultFallbackURL = "https://placehold.co/1920x1080.png?text=Back+Soon"
	DefaultFadeMillis  = 1000

	debounceDelay      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

type Audio struct {
	MainVolume    float64 `yaml:"main_volume" json:"main_volume"`
	StandbyVolume float64 `yaml:"standby_volume" json:"standby_volume"`
	FadeMillis    int     `yaml:"fade_ms" json:"fade_ms"`
}

type Settings struct {
	Audio       Audio          `yaml:"audio" json:"audio"`
	FallbackURL string         `yaml:"fallback_ad_url" json:"fallback_ad_url"`
	Branding    model.Branding `yaml:"branding" json:"branding"`
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Settings {
	return Settings{
		Audio:       Audio{MainVolume: 1, StandbyVolume: 1, FadeMillis: DefaultFadeMillis},
		FallbackURL: DefaultFallbackURL,
	}
}

// Validate rejects out-of-range values.
func (s Settings) Validate() error {
	for name, v := range map[string]float64{"main_volume": s.Audio.MainVolume, "standby_volume": s.Audio.StandbyVolume} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be within [0, 1], got %v", model.ErrInvalid, name, v)
		}
	}
	if s.Audio.FadeMillis <= 0 {
		return fmt.Errorf("%w: fade_ms must be positive", model.ErrInvalid)
	}
	if strings.TrimSpace(s.FallbackURL) == "" {
		return fmt.Errorf("%w: fallback_ad_url is required", model.ErrInvalid)
	}
	return nil
}

// FadeDuration returns the fade length as a duration.
func (s Settings) FadeDuration() time.Duration {
	return time.Duration(s.Audio.FadeMillis) * time.Millisecond
}

// Manager owns the settings file.
type Manager struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	cur      Settings
	lastHash uint64

	updates *eventbus.Bus[Settings]
}

func NewManager(path string, logger *slog.Logger) *Manager {
	return &Manager{path: path, logger: logger, cur: Defaults(), updates: eventbus.New[Settings]()}
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Subscribe delivers settings after every committed change.
func (m *Manager) Subscribe(buffer int) (<-chan Settings, func()) {
	return m.updates.Subscribe(buffer)
}

// Load reads the file. A missing file is created with defaults.
func (m *Manager) Load() (Settings, error) {
	s, err := m.parse()
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Info("Settings file not found, writing defaults", "path", m.path)
		s = Defaults()
		if err := m.write(s); err != nil {
			return Settings{}, err
		}
	} else if err != nil {
		return Settings{}, err
	}
	m.commit(s)
	return s, nil
}

// Update applies fn to a copy of the settings, validates and saves it.
func (m *Manager) Update(fn func(*Settings)) (Settings, error) {
	m.mu.RLock()
	next := m.cur
	m.mu.RUnlock()

	fn(&next)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := m.write(next); err != nil {
		return Settings{}, err
	}
	if m.commit(next) {
		m.updates.Publish(next)
	}
	return next, nil
}

// Watch reloads the file after external edits until ctx is cancelled. A
// broken watcher is recreated with backoff. Intended to be called with `go`.
func (m *Manager) Watch(ctx context.Context) {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	backoff := restartBackoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, m.reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.logger.Warn("Settings watch failed, retrying", "dir", dir, "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, restartBackoffMax)
			continue
		}
		backoff = restartBackoffBase
		m.logger.Debug("Settings watcher started", "path", m.path)

		m.watchLoop(ctx, w, file, debounce)
		_ = w.Close()
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, debounce func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.logger.Warn("Settings watch overflow, forcing reload", "path", m.path)
				debounce()
				continue
			}
			m.logger.Warn("Settings watch error", "path", m.path, "error", err)
		}
	}
}

func (m *Manager) reload() {
	s, err := m.parse()
	if err != nil {
		m.logger.Warn("Settings reload failed, keeping current settings", "path", m.path, "error", err)
		return
	}
	if err := s.Validate(); err != nil {
		m.logger.Warn("Settings rejected", "path", m.path, "error", err)
		return
	}
	if m.commit(s) {
		m.logger.Info("Settings reloaded", "path", m.path)
		m.updates.Publish(s)
	}
}

func (m *Manager) parse() (Settings, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}
	s := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse %s: %w", m.path, err)
	}
	return s, nil
}

// write saves atomically through a temp file in the same directory.
func (m *Manager) write(s Settings) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// commit installs s and reports whether it differs from the last commit.
func (m *Manager) commit(s Settings) bool {
	h := hashSettings(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == m.lastHash {
		return false
	}
	m.cur, m.lastHash = s, h
	return true
}

func hashSettings(s Settings) uint64 {
	b, _ := yaml.Marshal(s)
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
