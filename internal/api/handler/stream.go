package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/console"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/settings"
)

const streamKeepAlive = 15 * time.Second

// Stream serves session events as server-sent events. The first frames
// carry the current view, surface, ad slot and audio levels.
// @Summary Console event stream
// @Description Server-sent events: view, command, snapshot, surface, fx, arbitration, adbreak, audio, player and settings frames.
// @Tags stream
// @Produce text/event-stream
// @Success 200
// @Router /stream [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsub := h.session.Subscribe(256)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := []console.Event{
		{Kind: console.KindView, Data: h.session.View()},
		{Kind: console.KindSurface, Data: h.session.Surface()},
		{Kind: console.KindAdBreak, Data: h.session.AdBreak()},
		{Kind: console.KindAudio, Data: h.session.Audio()},
		{Kind: console.KindArbitration, Data: h.session.Arbitration()},
	}
	for _, ev := range initial {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev console.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// --------------------------------------------------------------------------
// Settings
// --------------------------------------------------------------------------

// GetSettings returns the persisted console settings.
// @Summary Get settings
// @Tags settings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.session.Settings())
}

// UpdateSettings replaces and persists the console settings.
// @Summary Update settings
// @Tags settings
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := decode(r, &next); err != nil {
		fail(w, err)
		return
	}
	out, err := h.session.UpdateSettings(next)
	if err != nil {
		fail(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, out)
}
