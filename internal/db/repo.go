package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// --------------------------------------------------------------------------
// Tournaments
// --------------------------------------------------------------------------

// ListActiveTournaments returns active tournaments, newest first.
func (p *Pool) ListActiveTournaments(ctx context.Context) ([]model.Tournament, error) {
	return p.queryTournaments(ctx, "active_tournaments")
}

// ListTournaments returns every tournament, newest first.
func (p *Pool) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	return p.queryTournaments(ctx, "all_tournaments")
}

func (p *Pool) queryTournaments(ctx context.Context, stmt string) ([]model.Tournament, error) {
	rows, err := p.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	var out []model.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTournament returns one tournament by id.
func (p *Pool) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	t, err := scanTournament(p.QueryRow(ctx, "tournament_by_id", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Tournament{}, fmt.Errorf("get tournament %s: %w", id, err)
	}
	return t, nil
}

// SetTournamentStatus moves a tournament forward along its lifecycle.
func (p *Pool) SetTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error {
	tag, err := p.Exec(ctx, "tournament_status", id, string(status))
	if err != nil {
		return fmt.Errorf("set tournament status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetTournament(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("tournament %s to %s: %w", id, status, model.ErrStatusRegression)
	}
	return nil
}

// CreateTournament writes the whole bundle in one transaction: tournament,
// roster, optional seeded match, then ads.
func (p *Pool) CreateTournament(ctx context.Context, b model.TournamentBundle) error {
	return pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		t := b.Tournament
		cfg := []byte(t.Config)
		if len(cfg) == 0 {
			cfg = []byte("{}")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tournaments (id, name, type, status, config)
			VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Name, string(t.Type), string(t.Status), cfg,
		); err != nil {
			return fmt.Errorf("insert tournament: %w", err)
		}

		for _, pl := range b.Players {
			stats, _ := json.Marshal(pl.Stats)
			if _, err := tx.Exec(ctx, `
				INSERT INTO players (id, tournament_id, name, avatar_url, flag_url, members, category, stats)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				pl.ID, pl.TournamentID, pl.Name, nilEmpty(pl.AvatarURL), nilEmpty(pl.FlagURL),
				pl.Members, nilEmpty(pl.Category), stats,
			); err != nil {
				return fmt.Errorf("insert player %q: %w", pl.Name, err)
			}
		}

		if m := b.Match; m != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO matches (
					id, tournament_id, player1_id, player2_id, round_name, court_id, status,
					current_score_p1, current_score_p2, sets_p1, sets_p2, server_side, serving_player_id
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
				m.ID, m.TournamentID, m.Player1ID, m.Player2ID, m.RoundName, m.CourtID, string(m.Status),
				m.ScoreP1, m.ScoreP2, m.SetsP1, m.SetsP2, m.ServerSide, m.ServingPlayerID,
			); err != nil {
				return fmt.Errorf("insert match: %w", err)
			}
		}

		for _, ad := range b.Ads {
			if err := insertAd(ctx, tx, ad); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Matches and players
// --------------------------------------------------------------------------

// ListMatches returns a tournament's matches in creation order.
func (p *Pool) ListMatches(ctx context.Context, tournamentID string) ([]model.Match, error) {
	rows, err := p.Query(ctx, "matches_by_tournament", tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		var m model.Match
		var status string
		if err := rows.Scan(
			&m.ID, &m.TournamentID, &m.Player1ID, &m.Player2ID, &m.RoundName,
			&m.CourtID, &status, &m.ScoreP1, &m.ScoreP2, &m.SetsP1, &m.SetsP2,
			&m.ServerSide, &m.ServingPlayerID, &m.WinnerID, &m.NextMatchID,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Status = model.MatchStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMatch writes the set fields of u. A status change that would move the
// match backwards matches no row and is reported as ErrStatusRegression.
func (p *Pool) UpdateMatch(ctx context.Context, id string, u model.MatchUpdate) error {
	cols := u.Columns()
	if len(cols) == 0 {
		return nil
	}

	args := []any{id}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, c.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	where := "id = $1"
	if u.Status != nil {
		args = append(args, string(*u.Status))
		where += fmt.Sprintf(" AND match_status_rank(status) <= match_status_rank($%d)", len(args))
	}

	tag, err := p.Exec(ctx, "UPDATE matches SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return fmt.Errorf("update match %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = p.QueryRow(ctx, "match_status_by_id", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update match %s: %w", id, err)
	}
	return fmt.Errorf("match %s is %s: %w", id, current, model.ErrStatusRegression)
}

// ListPlayers returns a tournament's players in creation order.
func (p *Pool) ListPlayers(ctx context.Context, tournamentID string) ([]model.Player, error) {
	rows, err := p.Query(ctx, "players_by_tournament", tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var pl model.Player
		var stats []byte
		if err := rows.Scan(
			&pl.ID, &pl.TournamentID, &pl.Name, &pl.AvatarURL, &pl.FlagURL,
			&pl.Members, &pl.Category, &stats, &pl.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		if len(stats) > 0 {
			_ = json.Unmarshal(stats, &pl.Stats)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Sponsor ads
// --------------------------------------------------------------------------

// ListActiveAds returns the tournament's active ads in creation order.
func (p *Pool) ListActiveAds(ctx context.Context, tournamentID string) ([]model.SponsorAd, error) {
	return p.queryAds(ctx, "active_ads_by_tournament", tournamentID)
}

// ListAds returns all of the tournament's ads, active or not.
func (p *Pool) ListAds(ctx context.Context, tournamentID string) ([]model.SponsorAd, error) {
	return p.queryAds(ctx, "ads_by_tournament", tournamentID)
}

func (p *Pool) queryAds(ctx context.Context, stmt, tournamentID string) ([]model.SponsorAd, error) {
	rows, err := p.Query(ctx, stmt, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list ads: %w", err)
	}
	defer rows.Close()

	var out []model.SponsorAd
	for rows.Next() {
		var ad model.SponsorAd
		var kind, loc string
		if err := rows.Scan(
			&ad.ID, &ad.TournamentID, &kind, &ad.URL, &ad.Duration,
			&ad.IsActive, &loc, &ad.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		ad.Type = model.AdKind(kind)
		ad.DisplayLocation = model.AdLocation(loc)
		out = append(out, ad)
	}
	return out, rows.Err()
}

// InsertAd adds a sponsor ad.
func (p *Pool) InsertAd(ctx context.Context, ad model.SponsorAd) error {
	return insertAd(ctx, p.Pool, ad)
}

// ToggleAd flips is_active and returns the new value.
func (p *Pool) ToggleAd(ctx context.Context, id string) (bool, error) {
	var active bool
	err := p.QueryRow(ctx, "ad_toggle", id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("ad %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("toggle ad %s: %w", id, err)
	}
	return active, nil
}

// DeleteAd removes a sponsor ad.
func (p *Pool) DeleteAd(ctx context.Context, id string) error {
	tag, err := p.Exec(ctx, "ad_delete", id)
	if err != nil {
		return fmt.Errorf("delete ad %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ad %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// --------------------------------------------------------------------------
// Command channel support
// --------------------------------------------------------------------------

// Notify publishes payload on a NOTIFY channel.
func (p *Pool) Notify(ctx context.Context, channel string, payload []byte) error {
	if _, err := p.Exec(ctx, "notify", channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", channel, err)
	}
	return nil
}

// LoadGameState returns the persisted snapshot document, or ErrNotFound.
func (p *Pool) LoadGameState(ctx context.Context, tournamentID string) ([]byte, error) {
	var doc []byte
	err := p.QueryRow(ctx, "game_state_get", tournamentID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}
	return doc, nil
}

// SaveGameState replaces the persisted snapshot document.
func (p *Pool) SaveGameState(ctx context.Context, tournamentID string, doc []byte) error {
	if _, err := p.Exec(ctx, "game_state_upsert", tournamentID, doc); err != nil {
		return fmt.Errorf("save game state: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAd(ctx context.Context, ex execer, ad model.SponsorAd) error {
	if _, err := ex.Exec(ctx, `
		INSERT INTO sponsor_ads (id, tournament_id, type, url, duration, is_active, display_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ad.ID, ad.TournamentID, string(ad.Type), ad.URL, ad.Duration, ad.IsActive, string(ad.DisplayLocation),
	); err != nil {
		return fmt.Errorf("insert ad: %w", err)
	}
	return nil
}

func scanTournament(row pgx.Row) (model.Tournament, error) {
	var t model.Tournament
	var kind, status string
	var cfg []byte
	if err := row.Scan(&t.ID, &t.Name, &kind, &status, &cfg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Tournament{}, err
	}
	t.Type = model.SportType(kind)
	t.Status = model.TournamentStatus(status)
	t.Config = json.RawMessage(cfg)
	return t, nil
}

func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
