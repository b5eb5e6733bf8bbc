package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/console"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/memstore"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingDB struct{}

func (failingDB) HealthCheck(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, role string, db interface {
	HealthCheck(context.Context) error
}) (*httptest.Server, *console.Session) {
	t.Helper()
	logger := discardLogger()
	backend := memstore.New()
	mgr := settings.NewManager(filepath.Join(t.TempDir(), "settings.yaml"), logger)
	if _, err := mgr.Load(); err != nil {
		t.Fatal(err)
	}
	s := console.New(console.Options{
		Role:      role,
		DisplayID: "main",
		Store:     tournament.New(backend, "", logger),
		Feed:      backend,
		Transport: command.NewHub(),
		States:    backend,
		Settings:  mgr,
		FadeTick:  5 * time.Millisecond,
		ReadyPoll: time.Millisecond,
		ReadyMax:  10,
		Logger:    logger,
	})
	s.Start(context.Background())
	t.Cleanup(s.Close)

	cfg := &config.Config{
		CORSAllowOrigins:  []string{"http://localhost:5173"},
		RateLimitEnabled:  false,
		RateLimitRequests: 600,
		RateLimitWindow:   time.Minute,
	}
	srv := httptest.NewServer(NewRouter(s, db, cfg))
	t.Cleanup(srv.Close)
	return srv, s
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e respond.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e.Error.Code
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, config.RoleMaster, nil)

	resp := do(t, http.MethodGet, srv.URL+"/health/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Process-Time") == "" {
		t.Error("missing X-Process-Time header")
	}

	resp = do(t, http.MethodGet, srv.URL+"/health/db", "")
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["database"] != "in-memory" {
		t.Fatalf("/health/db = %d %v", resp.StatusCode, body)
	}

	down, _ := newTestServer(t, config.RoleMaster, failingDB{})
	if resp := do(t, http.MethodGet, down.URL+"/health/db", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unreachable db status = %d", resp.StatusCode)
	}
}

func TestTournamentAndMatchRoutes(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, config.RoleMaster, nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/tournaments", `{"name":"Open","type":"badminton","entrants":["Ann","Bo"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created model.Tournament
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if s.View().TournamentID() != created.ID {
		t.Fatalf("created tournament not selected")
	}
	matchID := s.View().Matches[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad sport", http.MethodPost, "/api/v1/tournaments", `{"name":"X","type":"curling"}`, http.StatusBadRequest, "INVALID"},
		{"unknown field", http.MethodPost, "/api/v1/tournaments", `{"name":"X","colour":"red"}`, http.StatusBadRequest, "INVALID"},
		{"score", http.MethodPatch, "/api/v1/matches/" + matchID, `{"current_score_p1":3}`, http.StatusAccepted, ""},
		{"regression", http.MethodPatch, "/api/v1/matches/" + matchID, `{"status":"scheduled"}`, http.StatusConflict, "STATUS_REGRESSION"},
		{"empty update", http.MethodPatch, "/api/v1/matches/" + matchID, `{}`, http.StatusBadRequest, "INVALID"},
		{"missing match", http.MethodPatch, "/api/v1/matches/nope", `{"current_score_p1":1}`, http.StatusNotFound, "NOT_FOUND"},
		{"bad ad", http.MethodPost, "/api/v1/ads", `{"url":""}`, http.StatusBadRequest, "INVALID"},
		{"ad", http.MethodPost, "/api/v1/ads", `{"url":"https://cdn/a.png","is_active":true}`, http.StatusCreated, ""},
		{"missing ad", http.MethodDelete, "/api/v1/ads/nope", "", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.code != "" {
				if got := errorCode(t, resp); got != tc.code {
					t.Fatalf("code = %q, want %q", got, tc.code)
				}
			}
		})
	}

	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/tournaments/end", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("end status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/tournaments/end", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("end without selection status = %d", resp.StatusCode)
	}
}

func TestCommandRoutes(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, config.RoleMaster, nil)

	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/commands", `{"type":"LOCK_UI","payload":{"locked":true}}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("command without tournament status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/api/v1/snapshot", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("snapshot before any publish status = %d", resp.StatusCode)
	}

	do(t, http.MethodPost, srv.URL+"/api/v1/tournaments", `{"name":"Open","entrants":["A","B"]}`)
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/commands", `{"type":"LOCK_UI","payload":{"locked":true,"msg":"Review"}}`)
		if resp.StatusCode == http.StatusAccepted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("command status = %d", resp.StatusCode)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sf := s.Surface(); !sf.Locked || sf.LockMsg != "Review" {
		t.Fatalf("master surface = %+v", sf)
	}

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/snapshot", "")
	var gs command.GameState
	json.NewDecoder(resp.Body).Decode(&gs)
	if resp.StatusCode != http.StatusOK || !gs.Lock {
		t.Fatalf("snapshot = %d %+v", resp.StatusCode, gs)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/commands", `{"type":"PLAY_FX","payload":{"pattern":"CONFETTI"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid fx status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/arbitration/force", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("force status = %d", resp.StatusCode)
	}
}

func TestRefereeCannotSendCommands(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, config.RoleReferee, nil)
	if _, err := s.CreateTournament(context.Background(), tournament.Spec{Name: "Open"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/commands", `{"type":"LOCK_UI","payload":{"locked":true}}`)
		if resp.StatusCode == http.StatusForbidden {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAudioAndAdBreakRoutes(t *testing.T) {
	t.Parallel()
	srv, s := newTestServer(t, config.RoleDisplay, nil)

	if resp := do(t, http.MethodPut, srv.URL+"/api/v1/audio/main", `{"volume":0.4}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("volume status = %d", resp.StatusCode)
	}
	if got := s.Settings().Audio.MainVolume; got != 0.4 {
		t.Fatalf("persisted main volume = %v", got)
	}
	for _, tc := range []struct{ path, body string }{
		{"/api/v1/audio/booth", `{"volume":0.5}`},
		{"/api/v1/audio/main", `{}`},
	} {
		if resp := do(t, http.MethodPut, srv.URL+tc.path, tc.body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PUT %s %s status = %d", tc.path, tc.body, resp.StatusCode)
		}
	}

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/adbreak/override", `{"on":true}`)
	var slot struct {
		Active   bool `json:"active"`
		Override bool `json:"override"`
	}
	json.NewDecoder(resp.Body).Decode(&slot)
	if !slot.Active || !slot.Override {
		t.Fatalf("override slot = %+v", slot)
	}

	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/player/events", `{"event":"exploded"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad player event status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/player/events", `{"event":"interaction"}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("player event status = %d", resp.StatusCode)
	}
}

func TestStreamSendsInitialFrames(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, config.RoleDisplay, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	seen := map[string]bool{}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() && len(seen) < 3 {
		if kind, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			seen[kind] = true
		}
	}
	for _, kind := range []string{console.KindView, console.KindSurface, console.KindAdBreak} {
		if !seen[kind] {
			t.Errorf("missing initial %q frame", kind)
		}
	}
}
