// Package handler provides HTTP handlers for the local console UI.
// Handlers call the console session directly; there is no service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/api/respond"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/console"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// HealthChecker verifies the backing database. Nil means the console runs
// on the in-process store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	session *console.Session
	cfg     *config.Config
	db      HealthChecker
}

// New creates a Handler with shared dependencies.
func New(session *console.Session, cfg *config.Config, db HealthChecker) *Handler {
	return &Handler{session: session, cfg: cfg, db: db}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, console role and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "Event Console API",
		"version": "1.0.0",
		"status":  "running",
		"role":    h.session.Role(),
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status, including the tournament view's.
// @Summary Health check
// @Description Returns basic health status, the view health indicator and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	v := h.session.View()
	body := map[string]any{
		"status":    "healthy",
		"view":      v.Health,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if v.LastError != "" {
		body["last_error"] = v.LastError
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"database":  "in-memory",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: body: %v", model.ErrInvalid, err)
	}
	return nil
}

// fail maps a domain error onto an HTTP status.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrStatusRegression):
		respond.WriteErrorDetail(w, http.StatusConflict, "STATUS_REGRESSION", "Match status cannot move backwards", err.Error())
	case errors.Is(err, model.ErrNoSelection):
		respond.WriteError(w, http.StatusConflict, "NO_SELECTION", "No tournament selected")
	case errors.Is(err, model.ErrNotFound):
		respond.WriteErrorDetail(w, http.StatusNotFound, "NOT_FOUND", "Not found", err.Error())
	case errors.Is(err, console.ErrLocked):
		respond.WriteErrorDetail(w, http.StatusLocked, "CONSOLE_LOCKED", "Console is locked", err.Error())
	case errors.Is(err, command.ErrNotMaster):
		respond.WriteError(w, http.StatusForbidden, "NOT_MASTER", "Only the master console sends commands")
	case errors.Is(err, model.ErrInvalid):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID", "Invalid request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respond.WriteError(w, http.StatusGatewayTimeout, "TIMEOUT", "Backend did not answer in time")
	default:
		respond.WriteErrorDetail(w, http.StatusBadGateway, "BACKEND_ERROR", "Backend request failed", err.Error())
	}
}
