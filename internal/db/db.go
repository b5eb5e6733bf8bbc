// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and the row repository the tournament view,
// command channel and CLI share.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const (
	matchColumns = `id, tournament_id, player1_id, player2_id, COALESCE(round_name, ''),
		COALESCE(court_id, ''), status, current_score_p1, current_score_p2, sets_p1, sets_p2,
		server_side, serving_player_id, winner_id, next_match_id, created_at, updated_at`
	playerColumns = `id, tournament_id, name, COALESCE(avatar_url, ''), COALESCE(flag_url, ''),
		members, COALESCE(category, ''), stats, created_at`
	adColumns = `id, tournament_id, type, url, duration, is_active, display_location, created_at`
)

// registerPreparedStatements registers all statements the console and CLI
// use. Dynamic match updates are built per call and not prepared.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Tournaments
		"active_tournaments": "SELECT id, name, type, status, config, created_at, updated_at FROM tournaments WHERE status = 'active' ORDER BY created_at DESC",
		"all_tournaments":    "SELECT id, name, type, status, config, created_at, updated_at FROM tournaments ORDER BY created_at DESC",
		"tournament_by_id":   "SELECT id, name, type, status, config, created_at, updated_at FROM tournaments WHERE id = $1",
		"tournament_status": `UPDATE tournaments SET status = $2, updated_at = NOW()
			WHERE id = $1 AND tournament_status_rank(status) <= tournament_status_rank($2)`,

		// View
		"matches_by_tournament":    "SELECT " + matchColumns + " FROM matches WHERE tournament_id = $1 ORDER BY created_at ASC",
		"match_status_by_id":       "SELECT status FROM matches WHERE id = $1",
		"players_by_tournament":    "SELECT " + playerColumns + " FROM players WHERE tournament_id = $1 ORDER BY created_at ASC",
		"active_ads_by_tournament": "SELECT " + adColumns + " FROM sponsor_ads WHERE tournament_id = $1 AND is_active = true ORDER BY created_at ASC",
		"ads_by_tournament":        "SELECT " + adColumns + " FROM sponsor_ads WHERE tournament_id = $1 ORDER BY created_at ASC",

		// Sponsor ads
		"ad_toggle": "UPDATE sponsor_ads SET is_active = NOT is_active WHERE id = $1 RETURNING is_active",
		"ad_delete": "DELETE FROM sponsor_ads WHERE id = $1",

		// Command channel
		"notify":            "SELECT pg_notify($1, $2)",
		"game_state_get":    "SELECT doc FROM game_states WHERE tournament_id = $1",
		"game_state_upsert": "INSERT INTO game_states (tournament_id, doc, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (tournament_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
