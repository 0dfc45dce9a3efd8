package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

type queueManualTaskRequest struct {
	Kind     string          `json:"kind"`
	ServerID string          `json:"server_id"`
	Payload  json.RawMessage `json:"payload"`
}

type manualTaskResponse struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	ServerID     string     `json:"server_id"`
	Status       string     `json:"status"`
	QueuedAt     time.Time  `json:"queued_at"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Error        *string    `json:"error,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func manualTaskToResponse(task core.ManualTask) manualTaskResponse {
	return manualTaskResponse{
		ID:           task.ID,
		Kind:         string(task.Kind),
		ServerID:     task.ServerID,
		Status:       string(task.Status),
		QueuedAt:     task.QueuedAt,
		ScheduledFor: task.ScheduledFor,
		Error:        task.Error,
		CompletedAt:  task.CompletedAt,
	}
}

func (s *Server) handleQueueManualTask(w http.ResponseWriter, r *http.Request) {
	var req queueManualTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.ServerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "server_id is required")
		return
	}

	var payload core.ManualPayload
	switch core.ManualTaskKind(req.Kind) {
	case core.ManualSendSupport:
		var p core.SupportPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid sendSupport payload")
			return
		}
		if p.FromVillageID == "" || p.TargetVillageID == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "from_village_id and target_village_id are required")
			return
		}
		payload = p
	case core.ManualFetchVillageUnits:
		var p core.VillageUnitsPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "invalid fetchVillageUnits payload")
				return
			}
		}
		payload = p
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown manual task kind: "+req.Kind)
		return
	}

	receipt, err := s.orch.QueueManualTask(core.ManualTaskKind(req.Kind), req.ServerID, payload)
	if err != nil {
		if errors.Is(err, core.ErrServerNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":                receipt.TaskID,
		"queue_position":         receipt.QueuePosition,
		"estimated_wait_time_ms": receipt.EstimatedWaitTime.Milliseconds(),
	})
}

func (s *Server) handleListManualTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.orch.ListManualTasks()
	res := make([]manualTaskResponse, 0, len(tasks))
	for _, task := range tasks {
		res = append(res, manualTaskToResponse(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": res})
}

func (s *Server) handleGetManualTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task := s.orch.GetManualTaskStatus(taskID)
	if task == nil {
		writeError(w, http.StatusNotFound, "not_found", "manual task not found")
		return
	}
	writeJSON(w, http.StatusOK, manualTaskToResponse(*task))
}
