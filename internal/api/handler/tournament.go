package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

// GetView returns the current tournament view.
// @Summary Get tournament view
// @Description Returns the selected tournament with its matches, players, active ads, the active tournament list and the health indicator.
// @Tags tournaments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /view [get]
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.View())
}

type selectRequest struct {
	TournamentID string `json:"tournament_id"`
}

// SelectTournament switches the viewed tournament. An empty id follows the
// most recently created active tournament.
// @Summary Select tournament
// @Tags tournaments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} respond.ErrorResponse
// @Router /tournaments/select [post]
func (h *Handler) SelectTournament(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := h.session.Select(r.Context(), req.TournamentID); err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, h.session.View())
}

// CreateTournament creates a tournament with its roster and selects it.
// @Summary Create tournament
// @Tags tournaments
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /tournaments [post]
func (h *Handler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var spec tournament.Spec
	if err := decode(r, &spec); err != nil {
		fail(w, err)
		return
	}
	t, err := h.session.CreateTournament(r.Context(), spec)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, t)
}

// EndTournament marks the selected tournament completed.
// @Summary End tournament
// @Tags tournaments
// @Success 204
// @Failure 409 {object} respond.ErrorResponse
// @Router /tournaments/end [post]
func (h *Handler) EndTournament(w http.ResponseWriter, r *http.Request) {
	if err := h.session.EndTournament(r.Context()); err != nil {
		fail(w, err)
		return
	}
	respond.WriteNoContent(w)
}

// UpdateMatch applies a partial match update. The view changes only when
// the change feed reports the committed write.
// @Summary Update match
// @Tags matches
// @Accept json
// @Param matchID path string true "Match ID"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 423 {object} respond.ErrorResponse
// @Router /matches/{matchID} [patch]
func (h *Handler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	var u model.MatchUpdate
	if err := decode(r, &u); err != nil {
		fail(w, err)
		return
	}
	matchID := chi.URLParam(r, "matchID")
	if err := h.session.MutateMatch(r.Context(), matchID, u); err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]string{"status": "accepted", "match_id": matchID})
}

// --------------------------------------------------------------------------
// Sponsor ads
// --------------------------------------------------------------------------

// AddAd adds a sponsor ad to the selected tournament.
// @Summary Add sponsor ad
// @Tags ads
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /ads [post]
func (h *Handler) AddAd(w http.ResponseWriter, r *http.Request) {
	var spec tournament.AdSpec
	if err := decode(r, &spec); err != nil {
		fail(w, err)
		return
	}
	ad, err := h.session.AddAd(r.Context(), spec)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, ad)
}

// ToggleAd flips an ad's active flag.
// @Summary Toggle sponsor ad
// @Tags ads
// @Param adID path string true "Ad ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /ads/{adID}/toggle [post]
func (h *Handler) ToggleAd(w http.ResponseWriter, r *http.Request) {
	adID := chi.URLParam(r, "adID")
	active, err := h.session.ToggleAd(r.Context(), adID)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{"id": adID, "is_active": active})
}

// DeleteAd removes an ad.
// @Summary Delete sponsor ad
// @Tags ads
// @Param adID path string true "Ad ID"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /ads/{adID} [delete]
func (h *Handler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DeleteAd(r.Context(), chi.URLParam(r, "adID")); err != nil {
		fail(w, err)
		return
	}
	respond.WriteNoContent(w)
}
