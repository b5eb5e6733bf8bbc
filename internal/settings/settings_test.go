package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadWritesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	m := NewManager(path, discardLogger())

	s, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s != Defaults() {
		t.Fatalf("Load = %+v, want defaults", s)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
}

func TestUpdateSavesAndReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	m := NewManager(path, discardLogger())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	_, err := m.Update(func(s *Settings) {
		s.Audio.MainVolume = 0.4
		s.Branding.LogoURL = "https://cdn/logo.png"
	})
	if err != nil {
		t.Fatal(err)
	}

	again := NewManager(path, discardLogger())
	s, err := again.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.Audio.MainVolume != 0.4 || s.Branding.LogoURL != "https://cdn/logo.png" {
		t.Fatalf("reloaded settings = %+v", s)
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "settings.yaml"), discardLogger())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		fn   func(*Settings)
	}{
		{"volume above 1", func(s *Settings) { s.Audio.StandbyVolume = 1.5 }},
		{"zero fade", func(s *Settings) { s.Audio.FadeMillis = 0 }},
		{"no fallback", func(s *Settings) { s.FallbackURL = " " }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Update(tc.fn); !errors.Is(err, model.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
	if m.Get() != Defaults() {
		t.Fatalf("rejected update leaked into current settings: %+v", m.Get())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  main_volume: 0.5\nsurprise: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path, discardLogger()).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestWatchPicksUpExternalEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	m := NewManager(path, discardLogger())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	updates, unsub := m.Subscribe(4)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	edited := "audio:\n  main_volume: 0.25\n  standby_volume: 1\n  fade_ms: 500\nfallback_ad_url: https://cdn/f.png\n"
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-updates:
		if s.Audio.MainVolume != 0.25 || s.FadeDuration() != 500*time.Millisecond {
			t.Fatalf("reloaded settings = %+v", s)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("external edit was not picked up")
	}
}
