package model

import "fmt"

// MatchUpdate is a partial match write. Nil fields are left untouched.
// For the nullable reference fields, a pointer to "" clears the column.
type MatchUpdate struct {
	Status          *MatchStatus `json:"status,omitempty"`
	ScoreP1         *int         `json:"current_score_p1,omitempty"`
	ScoreP2         *int         `json:"current_score_p2,omitempty"`
	SetsP1          *int         `json:"sets_p1,omitempty"`
	SetsP2          *int         `json:"sets_p2,omitempty"`
	ServerSide      *int         `json:"server_side,omitempty"`
	ServingPlayerID *string      `json:"serving_player_id,omitempty"`
	WinnerID        *string      `json:"winner_id,omitempty"`
	NextMatchID     *string      `json:"next_match_id,omitempty"`
	Player1ID       *string      `json:"player1_id,omitempty"`
	Player2ID       *string      `json:"player2_id,omitempty"`
	RoundName       *string      `json:"round_name,omitempty"`
	CourtID         *string      `json:"court_id,omitempty"`
}

// Column is one SET clause of a match update.
type Column struct {
	Name  string
	Value any
}

// Columns lists the set fields in a stable order, mapped to column names.
func (u MatchUpdate) Columns() []Column {
	var cols []Column
	if u.Status != nil {
		cols = append(cols, Column{"status", string(*u.Status)})
	}
	if u.ScoreP1 != nil {
		cols = append(cols, Column{"current_score_p1", *u.ScoreP1})
	}
	if u.ScoreP2 != nil {
		cols = append(cols, Column{"current_score_p2", *u.ScoreP2})
	}
	if u.SetsP1 != nil {
		cols = append(cols, Column{"sets_p1", *u.SetsP1})
	}
	if u.SetsP2 != nil {
		cols = append(cols, Column{"sets_p2", *u.SetsP2})
	}
	if u.ServerSide != nil {
		cols = append(cols, Column{"server_side", *u.ServerSide})
	}
	if u.ServingPlayerID != nil {
		cols = append(cols, Column{"serving_player_id", nullableRef(*u.ServingPlayerID)})
	}
	if u.WinnerID != nil {
		cols = append(cols, Column{"winner_id", nullableRef(*u.WinnerID)})
	}
	if u.NextMatchID != nil {
		cols = append(cols, Column{"next_match_id", nullableRef(*u.NextMatchID)})
	}
	if u.Player1ID != nil {
		cols = append(cols, Column{"player1_id", nullableRef(*u.Player1ID)})
	}
	if u.Player2ID != nil {
		cols = append(cols, Column{"player2_id", nullableRef(*u.Player2ID)})
	}
	if u.RoundName != nil {
		cols = append(cols, Column{"round_name", *u.RoundName})
	}
	if u.CourtID != nil {
		cols = append(cols, Column{"court_id", *u.CourtID})
	}
	return cols
}

// Empty reports whether the update sets nothing.
func (u MatchUpdate) Empty() bool {
	return len(u.Columns()) == 0
}

// Validate rejects negative scores and unknown statuses.
func (u MatchUpdate) Validate() error {
	if u.Status != nil && u.Status.Rank() < 0 {
		return fmt.Errorf("%w: unknown match status %q", ErrInvalid, *u.Status)
	}
	for _, v := range []*int{u.ScoreP1, u.ScoreP2, u.SetsP1, u.SetsP2} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: scores must be non-negative", ErrInvalid)
		}
	}
	if u.ServerSide != nil && (*u.ServerSide < 0 || *u.ServerSide > 2) {
		return fmt.Errorf("%w: server_side must be 0, 1 or 2", ErrInvalid)
	}
	return nil
}

// Apply returns m with the update's fields written over it.
func (u MatchUpdate) Apply(m Match) Match {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.ScoreP1 != nil {
		m.ScoreP1 = *u.ScoreP1
	}
	if u.ScoreP2 != nil {
		m.ScoreP2 = *u.ScoreP2
	}
	if u.SetsP1 != nil {
		m.SetsP1 = *u.SetsP1
	}
	if u.SetsP2 != nil {
		m.SetsP2 = *u.SetsP2
	}
	if u.ServerSide != nil {
		m.ServerSide = *u.ServerSide
	}
	if u.ServingPlayerID != nil {
		m.ServingPlayerID = StrPtr(*u.ServingPlayerID)
	}
	if u.WinnerID != nil {
		m.WinnerID = StrPtr(*u.WinnerID)
	}
	if u.NextMatchID != nil {
		m.NextMatchID = StrPtr(*u.NextMatchID)
	}
	if u.Player1ID != nil {
		m.Player1ID = StrPtr(*u.Player1ID)
	}
	if u.Player2ID != nil {
		m.Player2ID = StrPtr(*u.Player2ID)
	}
	if u.RoundName != nil {
		m.RoundName = *u.RoundName
	}
	if u.CourtID != nil {
		m.CourtID = *u.CourtID
	}
	return m
}

func nullableRef(s string) any {
	if s == "" {
		return nil
	}
	return s
}
