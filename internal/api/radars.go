// Package api exposes the dashboard-facing HTTP surface: radar CRUD
// (the creation endpoint the flow's adapter targets) and the flow
// session endpoints driving the generative creation flow.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/radarhq/radar/internal/radar"
	"github.com/radarhq/radar/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds the handler's collaborators.
type Deps struct {
	Store    *storage.Store
	Sessions *SessionManager // optional; flow routes are omitted when nil
	Token    string
}

// NewHandler builds the dashboard API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(pr chi.Router) {
		pr.Use(BearerAuth(deps.Token))

		pr.Post("/v1/radars", handleCreateRadar(deps))
		pr.Get("/v1/radars", handleListRadars(deps))
		pr.Get("/v1/radars/{id}", handleGetRadar(deps))
		pr.Patch("/v1/radars/{id}", handleUpdateRadarStatus(deps))
		pr.Delete("/v1/radars/{id}", handleDeleteRadar(deps))

		if deps.Sessions != nil {
			pr.Post("/v1/flow", handleCreateFlow(deps))
			pr.Post("/v1/flow/{id}/input", handleFlowInput(deps))
			pr.Post("/v1/flow/{id}/edit", handleFlowEdit(deps))
			pr.Post("/v1/flow/{id}/confirm", handleFlowConfirm(deps))
			pr.Post("/v1/flow/{id}/restart", handleFlowRestart(deps))
			pr.Get("/v1/flow/{id}/events", handleFlowEvents(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateRadar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req radar.NewRadar
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Topic == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic is required")
			return
		}
		if !radar.ValidCadence(req.Cadence) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown cadence %q", req.Cadence)
			return
		}

		now := time.Now().UTC()
		created := radar.Radar{
			ID:                  uuid.New().String(),
			Topic:               req.Topic,
			Description:         req.Description,
			Cadence:             req.Cadence,
			ScheduleDescription: req.ScheduleDescription,
			Intent:              req.Intent,
			Status:              radar.StatusActive,
			CreatedAt:           now,
			NextCheckAt:         now.Add(radar.CadenceInterval(req.Cadence)),
		}

		if err := deps.Store.SaveRadar(created); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving radar: %v", err)
			return
		}

		respondJSON(w, http.StatusCreated, created)
	}
}

func handleListRadars(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		radars, err := deps.Store.ListRadars(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing radars: %v", err)
			return
		}
		if radars == nil {
			radars = []radar.Radar{}
		}
		respondJSON(w, http.StatusOK, map[string]any{"radars": radars})
	}
}

func handleGetRadar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		got, err := deps.Store.GetRadar(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no radar %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading radar: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, got)
	}
}

func handleUpdateRadarStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Status != radar.StatusActive && req.Status != radar.StatusPaused {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", req.Status)
			return
		}

		err := deps.Store.SetRadarStatus(id, req.Status)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no radar %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating radar: %v", err)
			return
		}

		updated, err := deps.Store.GetRadar(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading radar: %v", err)
			return
		}
		respondJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteRadar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteRadar(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no radar %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting radar: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
