// Command eventctl is the event console operator CLI. It talks to Postgres
// directly; consoles pick up its writes through the change feed.
//
// Usage:
//
//	eventctl migrate
//	eventctl tournament create --name "City Open" --type badminton --entrant Ann --entrant Bo
//	eventctl tournament create --name "League" --category "Men's Doubles:knockout:roster.txt"
//	eventctl tournament list
//	eventctl tournament end --id <tournament-id>
//	eventctl match set <match-id> --p1 11 --p2 9 --status ongoing
//	eventctl ads add --tournament <id> --url https://cdn/spot.mp4 --duration 30
//	eventctl ads toggle <ad-id>
//	eventctl command send --tournament <id> --type LOCK_UI --payload '{"locked":true,"msg":"Review"}'
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/db"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "eventctl",
		Short:        "Event console operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(tournamentCmd())
	root.AddCommand(matchCmd())
	root.AddCommand(adsCmd())
	root.AddCommand(commandCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema, triggers included",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Schema applied")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.UsesDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// runDB connects, runs fn and closes the pool.
func runDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// runStore is runDB with a tournament store selected on tournamentID
// ("" follows the newest active tournament).
func runStore(tournamentID string, fn func(ctx context.Context, store *tournament.Store, pool *db.Pool) error) error {
	return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		store := tournament.New(pool, tournamentID, logger)
		defer store.Close()
		if err := store.Reload(ctx); err != nil {
			return fmt.Errorf("load tournament: %w", err)
		}
		return fn(ctx, store, pool)
	})
}
