package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/adbreak"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// GetAdBreak returns the scheduler's current slot.
// @Summary Get ad-break slot
// @Tags adbreak
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /adbreak [get]
func (h *Handler) GetAdBreak(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.AdBreak())
}

type overrideRequest struct {
	On    bool   `json:"on"`
	AdURL string `json:"ad_url,omitempty"`
}

// OverrideAdBreak forces a break on or off on this console.
// @Summary Override ad break
// @Tags adbreak
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /adbreak/override [post]
func (h *Handler) OverrideAdBreak(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.session.OverrideAdBreak(req.On, req.AdURL))
}

type hideRequest struct {
	Hidden bool `json:"hidden"`
}

// HideAds hides the overlay on this console.
// @Summary Hide ads
// @Tags adbreak
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /adbreak/hide [post]
func (h *Handler) HideAds(w http.ResponseWriter, r *http.Request) {
	var req hideRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.session.HideAds(req.Hidden))
}

// AdEnded advances the playlist.
// @Summary Report creative ended
// @Tags adbreak
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /adbreak/ended [post]
func (h *Handler) AdEnded(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.AdEnded())
}

// --------------------------------------------------------------------------
// Audio
// --------------------------------------------------------------------------

// GetAudio returns deck targets and effective levels.
// @Summary Get audio levels
// @Tags audio
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /audio [get]
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.Audio())
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

// SetDeckVolume sets a deck's target volume and persists it.
// @Summary Set deck volume
// @Tags audio
// @Accept json
// @Produce json
// @Param deck path string true "Deck" Enums(main, standby)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /audio/{deck} [put]
func (h *Handler) SetDeckVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.Volume == nil {
		fail(w, fmt.Errorf("%w: volume is required", model.ErrInvalid))
		return
	}
	lv, err := h.session.SetDeckVolume(adbreak.Deck(chi.URLParam(r, "deck")), *req.Volume)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, lv)
}

type forceFadeRequest struct {
	On bool `json:"on"`
}

// ForceFade ducks both decks regardless of ad state.
// @Summary Manual fade
// @Tags audio
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /audio/force-fade [post]
func (h *Handler) ForceFade(w http.ResponseWriter, r *http.Request) {
	var req forceFadeRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.session.ForceFade(req.On))
}

type playerEventRequest struct {
	Event adbreak.PlayerEvent `json:"event"`
}

// PlayerEvent relays an event from the UI's media element.
// @Summary Report player event
// @Tags adbreak
// @Accept json
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Router /player/events [post]
func (h *Handler) PlayerEvent(w http.ResponseWriter, r *http.Request) {
	var req playerEventRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := h.session.PlayerEvent(req.Event); err != nil {
		fail(w, err)
		return
	}
	respond.WriteNoContent(w)
}
