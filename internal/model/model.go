// Package model defines the row shapes shared by the backing store, the
// change feed and the in-memory tournament view.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStatusRegression = errors.New("status cannot move backwards")
	ErrNoSelection      = errors.New("no tournament selected")
	ErrInvalid          = errors.New("invalid input")
)

// --------------------------------------------------------------------------
// Table names: must match schema.sql and the change-notify trigger
// --------------------------------------------------------------------------

const (
	TournamentsTable = "tournaments"
	MatchesTable     = "matches"
	PlayersTable     = "players"
	SponsorAdsTable  = "sponsor_ads"
	GameStatesTable  = "game_states"
)

// --------------------------------------------------------------------------
// Enums
// --------------------------------------------------------------------------

type SportType string

const (
	SportBadminton  SportType = "badminton"
	SportPickleball SportType = "pickleball"
	SportBasketball SportType = "basketball"
	SportFootball   SportType = "football"
	SportTennis     SportType = "tennis"
	SportOther      SportType = "other"
)

// Valid reports whether s is one of the known sport types.
func (s SportType) Valid() bool {
	switch s {
	case SportBadminton, SportPickleball, SportBasketball, SportFootball, SportTennis, SportOther:
		return true
	}
	return false
}

type TournamentStatus string

const (
	TournamentSetup     TournamentStatus = "setup"
	TournamentActive    TournamentStatus = "active"
	TournamentCompleted TournamentStatus = "completed"
)

// Rank orders tournament statuses along their lifecycle. Unknown values rank -1.
func (s TournamentStatus) Rank() int {
	switch s {
	case TournamentSetup:
		return 0
	case TournamentActive:
		return 1
	case TournamentCompleted:
		return 2
	}
	return -1
}

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchOngoing   MatchStatus = "ongoing"
	MatchCompleted MatchStatus = "completed"
)

// Rank orders match statuses along their lifecycle. Unknown values rank -1.
func (s MatchStatus) Rank() int {
	switch s {
	case MatchScheduled:
		return 0
	case MatchOngoing:
		return 1
	case MatchCompleted:
		return 2
	}
	return -1
}

// CanMoveTo reports whether a match in status s may be set to next.
// Staying in the same status is allowed; moving backwards is not.
func (s MatchStatus) CanMoveTo(next MatchStatus) bool {
	if next.Rank() < 0 {
		return false
	}
	return next.Rank() >= s.Rank()
}

type AdKind string

const (
	AdImage AdKind = "image"
	AdVideo AdKind = "video"
)

type AdLocation string

const (
	AdSidebar    AdLocation = "sidebar"
	AdFullscreen AdLocation = "fullscreen"
	AdBanner     AdLocation = "banner"
)

// --------------------------------------------------------------------------
// Rows
// --------------------------------------------------------------------------

type Tournament struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      SportType        `json:"type"`
	Status    TournamentStatus `json:"status"`
	Config    json.RawMessage  `json:"config,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ParsedConfig decodes the free-form config blob. A missing or malformed
// blob yields an empty config.
func (t Tournament) ParsedConfig() TournamentConfig {
	var cfg TournamentConfig
	if len(t.Config) == 0 {
		return cfg
	}
	_ = json.Unmarshal(t.Config, &cfg)
	return cfg
}

// TournamentConfig is the structured part of the tournament config blob.
type TournamentConfig struct {
	Categories []Category `json:"categories,omitempty"`
	Branding   Branding   `json:"branding,omitempty"`
}

// Category is one draw within a tournament (e.g. "Men's Doubles").
type Category struct {
	Name      string `json:"name"`
	Format    string `json:"format"` // singles | doubles | team
	Roster    string `json:"roster,omitempty"`
	TeamCount int    `json:"team_count"`
}

type Branding struct {
	LogoURL       string `json:"logo_url,omitempty" yaml:"logo_url,omitempty"`
	BackgroundURL string `json:"background_url,omitempty" yaml:"background_url,omitempty"`
	PrimaryColor  string `json:"primary_color,omitempty" yaml:"primary_color,omitempty"`
}

type PlayerStats struct {
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	PointsDiff int `json:"points_diff"`
	SetsDiff   int `json:"sets_diff"`
	Played     int `json:"played"`
}

type Player struct {
	ID           string      `json:"id"`
	TournamentID string      `json:"tournament_id"`
	Name         string      `json:"name"`
	AvatarURL    string      `json:"avatar_url,omitempty"`
	FlagURL      string      `json:"flag_url,omitempty"`
	Members      []string    `json:"members,omitempty"`
	Category     string      `json:"category,omitempty"`
	Stats        PlayerStats `json:"stats"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Match struct {
	ID              string      `json:"id"`
	TournamentID    string      `json:"tournament_id"`
	Player1ID       *string     `json:"player1_id"`
	Player2ID       *string     `json:"player2_id"`
	RoundName       string      `json:"round_name"`
	CourtID         string      `json:"court_id"`
	Status          MatchStatus `json:"status"`
	ScoreP1         int         `json:"current_score_p1"`
	ScoreP2         int         `json:"current_score_p2"`
	SetsP1          int         `json:"sets_p1"`
	SetsP2          int         `json:"sets_p2"`
	ServerSide      int         `json:"server_side"`
	ServingPlayerID *string     `json:"serving_player_id"`
	WinnerID        *string     `json:"winner_id"`
	NextMatchID     *string     `json:"next_match_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type SponsorAd struct {
	ID              string     `json:"id"`
	TournamentID    string     `json:"tournament_id"`
	Type            AdKind     `json:"type"`
	URL             string     `json:"url"`
	Duration        int        `json:"duration"`
	IsActive        bool       `json:"is_active"`
	DisplayLocation AdLocation `json:"display_location"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsFullscreenActive reports whether the ad belongs in the fullscreen playlist.
func (a SponsorAd) IsFullscreenActive() bool {
	return a.IsActive && a.DisplayLocation == AdFullscreen
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TournamentBundle is everything written together when a tournament is
// created: the tournament row, its roster, an optional seeded match and the
// placeholder sponsor ads.
type TournamentBundle struct {
	Tournament Tournament
	Players    []Player
	Match      *Match
	Ads        []SponsorAd
}
