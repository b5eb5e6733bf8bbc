// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/console and cmd/eventctl.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Console roles.
const (
	RoleMaster  = "master"
	RoleReferee = "referee"
	RoleDisplay = "display"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database. Empty DatabaseURL runs the console on the in-process store.
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Console session
	Role         string // master, referee, display
	TournamentID string // empty = most recent active tournament
	DisplayID    string // addresses PLAY_FX to one screen
	SettingsFile string

	// HTTP surface for the local UI
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	LogLevel    slog.Level

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Command channel send throttle (per console)
	CommandRatePerSec int

	// Audio and ad playback
	FadeTick        time.Duration
	PlayerReadyPoll time.Duration
	PlayerReadyMax  int

	// Catch-up resync schedule; empty disables it
	ResyncCron string

	// Snapshot cleanup for completed tournaments (Postgres only)
	PurgeCron          string
	GameStateRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", "")),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		Role:         strings.ToLower(envOr("CONSOLE_ROLE", RoleDisplay)),
		TournamentID: envOr("TOURNAMENT_ID", ""),
		DisplayID:    envOr("DISPLAY_ID", "main"),
		SettingsFile: envOr("SETTINGS_FILE", "settings.yaml"),

		APIHost:     envOr("API_HOST", "127.0.0.1"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8080)),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envLevel("LOG_LEVEL", slog.LevelInfo),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CommandRatePerSec: envInt("COMMAND_RATE_PER_SEC", 20),

		FadeTick:        envDuration("FADE_TICK", 50*time.Millisecond),
		PlayerReadyPoll: envDuration("PLAYER_READY_POLL", 250*time.Millisecond),
		PlayerReadyMax:  envInt("PLAYER_READY_MAX_POLLS", 40),

		ResyncCron: envOr("RESYNC_CRON", "*/15 * * * *"),

		PurgeCron:          envOr("PURGE_CRON", "30 4 * * *"),
		GameStateRetention: time.Duration(envInt("GAME_STATE_RETENTION_HOURS", 72)) * time.Hour,
	}

	switch cfg.Role {
	case RoleMaster, RoleReferee, RoleDisplay:
	default:
		return nil, fmt.Errorf("CONSOLE_ROLE must be one of master, referee, display (got %q)", cfg.Role)
	}
	if cfg.FadeTick <= 0 {
		return nil, fmt.Errorf("FADE_TICK must be positive")
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesDatabase reports whether a Postgres backend is configured.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
