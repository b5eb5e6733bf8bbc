// Package feed delivers row-level change events for the tournament tables.
//
// In production the events come from a Postgres trigger that calls
// pg_notify('table_changes', ...) on every insert/update/delete; Listener
// consumes them on a dedicated connection. Consumers only ever see a Source.
package feed

import (
	"encoding/json"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// Channel is the NOTIFY channel the change trigger publishes on.
const Channel = "table_changes"

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row change: {event, table, row}.
type Event struct {
	Op    Op              `json:"event"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// Source is anything that can hand out change-event subscriptions.
type Source interface {
	Subscribe(buffer int) (<-chan Event, func())
}

// Watched reports whether the table is one the tournament view depends on.
func Watched(table string) bool {
	switch table {
	case model.TournamentsTable, model.MatchesTable, model.PlayersTable, model.SponsorAdsTable:
		return true
	}
	return false
}

// TournamentID returns the tournament the changed row belongs to. For
// tournament rows that is the row's own id.
func (e Event) TournamentID() string {
	var row struct {
		ID           string `json:"id"`
		TournamentID string `json:"tournament_id"`
	}
	if err := json.Unmarshal(e.Row, &row); err != nil {
		return ""
	}
	if e.Table == model.TournamentsTable {
		return row.ID
	}
	return row.TournamentID
}
