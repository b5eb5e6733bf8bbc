package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
)

type commandRequest struct {
	Type       command.Type    `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	TargetRole command.Target  `json:"target_role,omitempty"`
}

// SendCommand publishes a command on the selected tournament's channel.
// @Summary Send console command
// @Description Master only. LOCK_UI, SWITCH_VIEW and AD_CONTROL also update the shared game-state snapshot.
// @Tags commands
// @Accept json
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /commands [post]
func (h *Handler) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	m, err := h.session.SendCommand(r.Context(), req.Type, req.Payload, req.TargetRole)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, m)
}

// GetSnapshot returns the shared game-state snapshot.
// @Summary Get game-state snapshot
// @Tags commands
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /snapshot [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	gs, ok := h.session.Snapshot()
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NO_SNAPSHOT", "No snapshot published for this tournament")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, gs)
}

// GetSurface returns what commands currently make this console show.
// @Summary Get console surface
// @Tags commands
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /surface [get]
func (h *Handler) GetSurface(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.Surface())
}

// GetArbitration returns the arbitration status.
// @Summary Get arbitration status
// @Tags arbitration
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /arbitration [get]
func (h *Handler) GetArbitration(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.Arbitration())
}

type forceRequest struct {
	MatchID string `json:"match_id,omitempty"`
}

// ForceArbitration publishes the live match state as the snapshot.
// @Summary Force arbitration
// @Tags arbitration
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /arbitration/force [post]
func (h *Handler) ForceArbitration(w http.ResponseWriter, r *http.Request) {
	var req forceRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			fail(w, err)
			return
		}
	}
	st, err := h.session.ForceArbitration(r.Context(), req.MatchID)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, st)
}
