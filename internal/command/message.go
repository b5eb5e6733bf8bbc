// Package command implements the per-tournament command channel between the
// master console and the referee and display consoles, plus the shared
// game-state snapshot every participant converges on.
package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// ErrInvalidCommand is returned for unknown command types, targets or
// payload values. It wraps model.ErrInvalid.
var ErrInvalidCommand = fmt.Errorf("%w: command", model.ErrInvalid)

type Type string

const (
	LockUI        Type = "LOCK_UI"
	SwitchView    Type = "SWITCH_VIEW"
	PlayFX        Type = "PLAY_FX"
	AdControl     Type = "AD_CONTROL"
	StateSnapshot Type = "STATE_SNAPSHOT"
)

// Target is the role a message is addressed to.
type Target string

const (
	TargetReferee Target = "referee"
	TargetDisplay Target = "display"
	TargetAll     Target = "all"
)

type ViewMode string

const (
	ViewCourt   ViewMode = "court"
	ViewAds     ViewMode = "ads"
	ViewList    ViewMode = "list"
	ViewBracket ViewMode = "bracket"
)

type FXPattern string

const (
	FXMatchPoint FXPattern = "MATCH_POINT"
	FXVictory    FXPattern = "VICTORY"
	FXFireworks  FXPattern = "FIREWORKS"
)

type AdAction string

const (
	AdMute   AdAction = "mute"
	AdUnmute AdAction = "unmute"
)

// --------------------------------------------------------------------------
// Payloads
// --------------------------------------------------------------------------

type LockPayload struct {
	Locked bool   `json:"locked"`
	Msg    string `json:"msg"`
}

type SwitchViewPayload struct {
	Mode    ViewMode `json:"mode"`
	CourtID string   `json:"court_id,omitempty"`
	AdURL   string   `json:"ad_url,omitempty"`
}

type FXPayload struct {
	Pattern         FXPattern `json:"pattern"`
	SpecificDisplay string    `json:"specificDisplay"`
}

type AdControlPayload struct {
	Action AdAction `json:"action"`
}

// GameState is the shared per-tournament snapshot. Receivers replace their
// copy wholesale; there is no merge.
type GameState struct {
	Lock      bool              `json:"lock"`
	LockMsg   string            `json:"lock_msg,omitempty"`
	AdMuted   bool              `json:"ad_muted"`
	ViewMode  ViewMode          `json:"view_mode,omitempty"`
	MatchID   string            `json:"match_id,omitempty"`
	ScoreP1   int               `json:"score_p1"`
	ScoreP2   int               `json:"score_p2"`
	SetsP1    int               `json:"sets_p1"`
	SetsP2    int               `json:"sets_p2"`
	Status    model.MatchStatus `json:"status,omitempty"`
	Sport     model.SportType   `json:"sport,omitempty"`
	UpdatedBy string            `json:"updated_by,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// WithMatch returns gs with the score fields taken from m.
func (gs GameState) WithMatch(m model.Match, sport model.SportType) GameState {
	gs.MatchID = m.ID
	gs.ScoreP1, gs.ScoreP2 = m.ScoreP1, m.ScoreP2
	gs.SetsP1, gs.SetsP2 = m.SetsP1, m.SetsP2
	gs.Status = m.Status
	gs.Sport = sport
	return gs
}

// --------------------------------------------------------------------------
// Message
// --------------------------------------------------------------------------

// Message is what travels on the channel.
type Message struct {
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	TargetRole Target          `json:"target_role"`
	Sender     string          `json:"sender,omitempty"`
	SentAt     time.Time       `json:"sent_at"`
}

// NewMessage encodes payload and validates the result.
func NewMessage(t Type, payload any, target Target) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	if target == "" {
		target = defaultTarget(t)
	}
	m := Message{Type: t, Payload: raw, TargetRole: target}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func defaultTarget(t Type) Target {
	switch t {
	case LockUI:
		return TargetReferee
	case SwitchView, PlayFX, AdControl:
		return TargetDisplay
	}
	return TargetAll
}

// For reports whether a console with the given role should act on m.
func (m Message) For(role string) bool {
	return m.TargetRole == TargetAll || string(m.TargetRole) == role
}

// Validate checks the type, target and payload values.
func (m Message) Validate() error {
	switch m.TargetRole {
	case TargetReferee, TargetDisplay, TargetAll:
	default:
		return fmt.Errorf("%w: unknown target role %q", ErrInvalidCommand, m.TargetRole)
	}

	switch m.Type {
	case LockUI:
		_, err := Decode[LockPayload](m)
		return err
	case SwitchView:
		p, err := Decode[SwitchViewPayload](m)
		if err != nil {
			return err
		}
		switch p.Mode {
		case ViewCourt, ViewAds, ViewList, ViewBracket:
			return nil
		}
		return fmt.Errorf("%w: unknown view mode %q", ErrInvalidCommand, p.Mode)
	case PlayFX:
		p, err := Decode[FXPayload](m)
		if err != nil {
			return err
		}
		switch p.Pattern {
		case FXMatchPoint, FXVictory, FXFireworks:
			return nil
		}
		return fmt.Errorf("%w: unknown fx pattern %q", ErrInvalidCommand, p.Pattern)
	case AdControl:
		p, err := Decode[AdControlPayload](m)
		if err != nil {
			return err
		}
		if p.Action != AdMute && p.Action != AdUnmute {
			return fmt.Errorf("%w: unknown ad action %q", ErrInvalidCommand, p.Action)
		}
		return nil
	case StateSnapshot:
		_, err := Decode[GameState](m)
		return err
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, m.Type)
}

// Decode unmarshals the message payload into T.
func Decode[T any](m Message) (T, error) {
	var v T
	if len(m.Payload) == 0 {
		return v, fmt.Errorf("%w: %s without payload", ErrInvalidCommand, m.Type)
	}
	if err := json.Unmarshal(m.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", ErrInvalidCommand, m.Type, err)
	}
	return v, nil
}

// ChannelName derives the per-event channel from the tournament id. The
// result is a valid unquoted Postgres identifier for UUID ids.
func ChannelName(tournamentID string) string {
	return "evt_" + strings.ToLower(strings.ReplaceAll(tournamentID, "-", ""))
}
