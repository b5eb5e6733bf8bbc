package tournament

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/roster"
)

const (
	defaultAdDuration = 15
	placeholderAdURL  = "https://placehold.co/1920x1080?text=Your+Brand+Here"
	seededRoundName   = "Final"
	seededCourtID     = "1"
)

// Spec describes a tournament to create.
type Spec struct {
	Name       string          `json:"name"`
	Type       model.SportType `json:"type"`
	Categories []CategorySpec  `json:"categories,omitempty"`
	// Entrants is the legacy direct-entry path: one name per entrant, no
	// categories. Exactly two entrants also seed a live match between them.
	Entrants []string       `json:"entrants,omitempty"`
	Branding model.Branding `json:"branding,omitempty"`
}

// CategorySpec is one draw with its free-text roster.
type CategorySpec struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Roster string `json:"roster"`
}

// CreateTournament writes the tournament, its roster, a seeded match for the
// two-entrant path and one placeholder ad as a single backend transaction,
// then selects it. Nothing is retried on failure.
func (s *Store) CreateTournament(ctx context.Context, spec Spec) (model.Tournament, error) {
	b, err := s.buildBundle(spec)
	if err != nil {
		return model.Tournament{}, err
	}

	s.writeMu.Lock()
	err = s.backend.CreateTournament(ctx, b)
	s.writeMu.Unlock()
	if err != nil {
		return model.Tournament{}, fmt.Errorf("create tournament: %w", err)
	}
	s.logger.Info("Tournament created",
		"tournament_id", b.Tournament.ID, "name", b.Tournament.Name,
		"players", len(b.Players), "seeded_match", b.Match != nil)

	if err := s.Select(ctx, b.Tournament.ID); err != nil {
		// The tournament exists; the view will catch up on the next event.
		s.logger.Warn("Reload after create failed", "tournament_id", b.Tournament.ID, "error", err)
	}
	return b.Tournament, nil
}

func (s *Store) buildBundle(spec Spec) (model.TournamentBundle, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return model.TournamentBundle{}, fmt.Errorf("%w: tournament name is required", model.ErrInvalid)
	}
	if spec.Type == "" {
		spec.Type = model.SportOther
	}
	if !spec.Type.Valid() {
		return model.TournamentBundle{}, fmt.Errorf("%w: unknown sport type %q", model.ErrInvalid, spec.Type)
	}

	t := model.Tournament{
		ID:     s.newID(),
		Name:   name,
		Type:   spec.Type,
		Status: model.TournamentActive,
	}
	b := model.TournamentBundle{}
	cfg := model.TournamentConfig{Branding: spec.Branding}

	for _, cat := range spec.Categories {
		res := roster.Parse(cat.Roster)
		if len(res.Skipped) > 0 {
			s.logger.Debug("Skipped roster lines", "category", cat.Name, "lines", res.Skipped)
		}
		for _, team := range res.Teams {
			b.Players = append(b.Players, s.newPlayer(t.ID, cat.Name, team))
		}
		cfg.Categories = append(cfg.Categories, model.Category{
			Name:      cat.Name,
			Format:    formatOr(cat.Format),
			Roster:    cat.Roster,
			TeamCount: len(res.Teams),
		})
	}

	var entrants []model.Player
	for _, e := range spec.Entrants {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		p := s.newPlayer(t.ID, "", roster.Team{Name: e, Players: []string{e}})
		entrants = append(entrants, p)
	}
	b.Players = append(b.Players, entrants...)
	if len(entrants) == 2 {
		p1, p2 := entrants[0].ID, entrants[1].ID
		b.Match = &model.Match{
			ID:              s.newID(),
			TournamentID:    t.ID,
			Player1ID:       &p1,
			Player2ID:       &p2,
			RoundName:       seededRoundName,
			CourtID:         seededCourtID,
			Status:          model.MatchOngoing,
			ServerSide:      1,
			ServingPlayerID: &p1,
		}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return model.TournamentBundle{}, fmt.Errorf("encode config: %w", err)
	}
	t.Config = raw
	b.Tournament = t

	b.Ads = []model.SponsorAd{{
		ID:              s.newID(),
		TournamentID:    t.ID,
		Type:            model.AdImage,
		URL:             placeholderAdURL,
		Duration:        defaultAdDuration,
		IsActive:        true,
		DisplayLocation: model.AdSidebar,
	}}
	return b, nil
}

func (s *Store) newPlayer(tournamentID, category string, team roster.Team) model.Player {
	p := model.Player{
		ID:           s.newID(),
		TournamentID: tournamentID,
		Name:         team.Name,
		Category:     category,
	}
	if len(team.Players) > 1 {
		p.Members = team.Players
	}
	return p
}

func formatOr(f string) string {
	if f == "" {
		return "singles"
	}
	return f
}
