// Command console runs one event console (master, referee or display) and
// serves its local HTTP surface to the UI.
//
// Usage:
//
//	event-console
//	CONSOLE_ROLE=master API_PORT=8080 event-console
//	CONSOLE_ROLE=display DISPLAY_ID=court-1 DATABASE_URL=postgres://... event-console

// @title Event Console API
// @version 1.0.0
// @description Local HTTP surface of one event console: tournament view, scoring, sponsor ads, console commands, arbitration, ad breaks and audio.
// @BasePath /api/v1
// @schemes http
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/handler"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/console"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/db"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/feed"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/maintenance"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/memstore"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"

	_ "github.com/ztoevent-ui/event-os-cloud-sub000/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Console failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Settings file
	mgr := settings.NewManager(cfg.SettingsFile, logger)
	if _, err := mgr.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	go mgr.Watch(ctx)

	// Backend: Postgres with LISTEN/NOTIFY, or the in-process store
	var (
		backend   tournament.Backend
		source    feed.Source
		transport command.Transport
		states    command.StateStore
		health    handler.HealthChecker
		listener  *feed.Listener
		pool      *db.Pool
	)
	if cfg.UsesDatabase() {
		logger.Info("Connecting to database...")
		var err error
		pool, err = db.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)

		listener = feed.NewListener(cfg.DatabaseURL, logger)
		backend, source, states, health = pool, listener, pool, pool
		transport = command.NewPGTransport(pool, cfg.DatabaseURL, logger)
	} else {
		logger.Warn("DATABASE_URL not set, running on the in-process store; nothing is shared with other consoles")
		mem := memstore.New()
		backend, source, states = mem, mem, mem
		transport = command.NewHub()
	}

	store := tournament.New(backend, cfg.TournamentID, logger)
	session := console.New(console.Options{
		Role:        cfg.Role,
		DisplayID:   cfg.DisplayID,
		Store:       store,
		Feed:        source,
		Transport:   transport,
		States:      states,
		Settings:    mgr,
		CommandRate: cfg.CommandRatePerSec,
		FadeTick:    cfg.FadeTick,
		ReadyPoll:   cfg.PlayerReadyPoll,
		ReadyMax:    cfg.PlayerReadyMax,
		Logger:      logger,
	})

	// Maintenance: scheduled catch-up resync and snapshot cleanup
	tasks := []maintenance.Task{maintenance.Resync(cfg.ResyncCron, store)}
	if pool != nil {
		tasks = append(tasks, maintenance.PurgeGameStates(cfg.PurgeCron, pool, cfg.GameStateRetention, logger))
	}
	sched, err := maintenance.New(tasks, logger)
	if err != nil {
		return fmt.Errorf("maintenance schedule: %w", err)
	}
	go sched.Run(ctx)

	// Start LISTEN/NOTIFY consumer; a reconnect may have missed events
	if listener != nil {
		listener.OnReconnect = func() {
			logger.Info("Change feed reconnected, resyncing view")
			sched.Trigger(maintenance.ResyncTask)
		}
		go listener.Start(ctx)
	}

	session.Start(ctx)
	defer session.Close()

	// Create HTTP server
	router := api.NewRouter(session, health, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		// Event streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting event console",
			"addr", addr,
			"role", cfg.Role,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://%s/docs/", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify failed", "error", err)
	} else if ok {
		logger.Debug("Notified systemd of readiness")
	}

	// Wait for interrupt or server failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("Shutting down...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
	return nil
}
