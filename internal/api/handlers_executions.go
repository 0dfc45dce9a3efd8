package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/store"
)

type executionResponse struct {
	ID          string     `json:"id"`
	ServerID    string     `json:"server_id"`
	VillageID   *string    `json:"village_id,omitempty"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func executionToResponse(exec *store.Execution) executionResponse {
	return executionResponse{
		ID:          exec.ID,
		ServerID:    exec.ServerID,
		VillageID:   exec.VillageID,
		Title:       exec.Title,
		Description: exec.Description,
		Status:      exec.Status,
		StartedAt:   exec.StartedAt,
		EndedAt:     exec.EndedAt,
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	execs, err := s.store.ListExecutions(r.Context(), serverID, limit, offset)
	if err != nil {
		s.logger.Error("list executions", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list executions")
		return
	}
	res := make([]executionResponse, 0, len(execs))
	for _, exec := range execs {
		res = append(res, executionToResponse(exec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": res})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	exec, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "execution not found")
			return
		}
		s.logger.Error("get execution", "execution_id", executionID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load execution")
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}
