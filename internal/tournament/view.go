package tournament

import (
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Health is the connectivity indicator shown next to the view.
type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
)

// View is the denormalized, read-only picture of the selected tournament.
// Values handed out by the store are copies; mutating them has no effect.
type View struct {
	Tournament *model.Tournament       `json:"tournament"`
	Active     []model.Tournament      `json:"active_tournaments"`
	Matches    []model.Match           `json:"matches"`
	Players    map[string]model.Player `json:"players"`
	Ads        []model.SponsorAd       `json:"ads"`
	LoadedAt   time.Time               `json:"loaded_at"`
	Health     Health                  `json:"health"`
	LastError  string                  `json:"last_error,omitempty"`
}

// TournamentID returns the id of the viewed tournament, or "".
func (v View) TournamentID() string {
	if v.Tournament == nil {
		return ""
	}
	return v.Tournament.ID
}

// Sport returns the viewed tournament's sport type.
func (v View) Sport() model.SportType {
	if v.Tournament == nil {
		return ""
	}
	return v.Tournament.Type
}

// Match looks a match up by id.
func (v View) Match(id string) (model.Match, bool) {
	for _, m := range v.Matches {
		if m.ID == id {
			return m, true
		}
	}
	return model.Match{}, false
}

// LiveMatch returns the first ongoing match, optionally restricted to a court.
func (v View) LiveMatch(courtID string) (model.Match, bool) {
	for _, m := range v.Matches {
		if m.Status != model.MatchOngoing {
			continue
		}
		if courtID == "" || m.CourtID == courtID {
			return m, true
		}
	}
	return model.Match{}, false
}

// PlayerName resolves a nullable player reference for display.
func (v View) PlayerName(id *string) string {
	if id == nil {
		return "TBD"
	}
	if p, ok := v.Players[*id]; ok {
		return p.Name
	}
	return "TBD"
}

func (v View) clone() View {
	out := v
	if v.Tournament != nil {
		t := *v.Tournament
		out.Tournament = &t
	}
	out.Active = append([]model.Tournament(nil), v.Active...)
	out.Matches = append([]model.Match(nil), v.Matches...)
	out.Ads = append([]model.SponsorAd(nil), v.Ads...)
	out.Players = make(map[string]model.Player, len(v.Players))
	for k, p := range v.Players {
		out.Players[k] = p
	}
	return out
}
