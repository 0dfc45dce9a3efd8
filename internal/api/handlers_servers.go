package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/store"
)

type serverResponse struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ListServers(r.Context())
	if err != nil {
		s.logger.Error("list servers", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list servers")
		return
	}
	res := make([]serverResponse, 0, len(servers))
	for _, server := range servers {
		res = append(res, serverResponse{ID: server.ID, Code: server.Code, Name: server.Name, Active: server.Active})
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": res})
}

func (s *Server) handleUpsertServer(w http.ResponseWriter, r *http.Request) {
	var req serverResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.ID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "id and code are required")
		return
	}
	info := core.ServerInfo{ID: req.ID, Code: req.Code, Name: req.Name, Active: req.Active}
	if err := s.store.UpsertServer(r.Context(), info); err != nil {
		s.logger.Error("upsert server", "server_id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save server")
		return
	}
	// Reconcile plans right away so follow-up calls see the server.
	if err := s.orch.RefreshServers(r.Context()); err != nil {
		s.logger.Error("refresh servers", "err", err)
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleSetServerActive(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "active is required")
		return
	}
	if err := s.store.SetServerActive(r.Context(), serverID, *req.Active); err != nil {
		if errors.Is(err, store.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "server not found")
			return
		}
		s.logger.Error("set server active", "server_id", serverID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update server")
		return
	}
	if err := s.orch.RefreshServers(r.Context()); err != nil {
		s.logger.Error("refresh servers", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": serverID, "active": *req.Active})
}

type activityResponse struct {
	ID          string    `json:"id"`
	ExecutionID *string   `json:"execution_id,omitempty"`
	ServerID    string    `json:"server_id"`
	Event       string    `json:"event"`
	Message     *string   `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)

	activities, err := s.store.ListActivities(r.Context(), serverID, limit)
	if err != nil {
		s.logger.Error("list activities", "server_id", serverID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list activities")
		return
	}
	res := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		res = append(res, activityResponse{
			ID:          a.ID,
			ExecutionID: a.ExecutionID,
			ServerID:    a.ServerID,
			Event:       a.Event,
			Message:     a.Message,
			CreatedAt:   a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": res})
}
