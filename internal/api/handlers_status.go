package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

type taskStatusResponse struct {
	Enabled         bool       `json:"enabled"`
	NextExecutionAt time.Time  `json:"next_execution_at"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
}

type serverStatusResponse struct {
	ServerID      string                        `json:"server_id"`
	ServerCode    string                        `json:"server_code"`
	ServerName    string                        `json:"server_name"`
	LastSuccessAt *time.Time                    `json:"last_success_at,omitempty"`
	Tasks         map[string]taskStatusResponse `json:"tasks"`
}

type queueStatusResponse struct {
	Pending             int    `json:"pending"`
	Executing           int    `json:"executing"`
	Completed           int    `json:"completed"`
	Failed              int    `json:"failed"`
	EstimatedWaitTimeMS int64  `json:"estimated_wait_time_ms"`
	EstimatedWaitTime   string `json:"estimated_wait_time"`
}

type statusResponse struct {
	MonitoringActive bool                   `json:"monitoring_active"`
	SchedulingActive bool                   `json:"scheduling_active"`
	Servers          []serverStatusResponse `json:"servers"`
	Queue            queueStatusResponse    `json:"queue"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.orch.Status()

	res := statusResponse{
		MonitoringActive: snap.MonitoringActive,
		SchedulingActive: snap.SchedulingActive,
		Servers:          make([]serverStatusResponse, 0, len(snap.Servers)),
		Queue: queueStatusResponse{
			Pending:             snap.Queue.Pending,
			Executing:           snap.Queue.Executing,
			Completed:           snap.Queue.Completed,
			Failed:              snap.Queue.Failed,
			EstimatedWaitTimeMS: snap.Queue.EstimatedWaitTime.Milliseconds(),
			EstimatedWaitTime:   snap.Queue.EstimatedWaitTime.String(),
		},
	}
	for _, server := range snap.Servers {
		entry := serverStatusResponse{
			ServerID:      server.ServerID,
			ServerCode:    server.ServerCode,
			ServerName:    server.ServerName,
			LastSuccessAt: server.LastSuccessAt,
			Tasks:         make(map[string]taskStatusResponse, len(server.Tasks)),
		}
		for kind, task := range server.Tasks {
			entry.Tasks[string(kind)] = taskStatusResponse{
				Enabled:         task.Enabled,
				NextExecutionAt: task.NextExecutionAt,
				LastExecutedAt:  task.LastExecutedAt,
			}
		}
		res.Servers = append(res.Servers, entry)
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOrchestratorStart(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.StartMonitoring(s.baseCtx); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring_active": true})
}

func (s *Server) handleOrchestratorStop(w http.ResponseWriter, r *http.Request) {
	s.orch.StopMonitoring()
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring_active": false})
}

func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	kindStr := chi.URLParam(r, "kind")

	kind, ok := core.ParseTaskKind(kindStr)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown task kind: "+kindStr)
		return
	}

	// Scavenging re-checks its enable flag and may be skipped; every
	// other kind runs unconditionally.
	if kind == core.KindScavenging {
		result, err := s.orch.TriggerScavenging(r.Context(), serverID)
		if err != nil {
			writeTriggerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ran": result.Ran, "reason": result.Reason})
		return
	}

	var err error
	switch kind {
	case core.KindConstruction:
		err = s.orch.TriggerConstruction(r.Context(), serverID)
	case core.KindMiniAttacks:
		err = s.orch.TriggerMiniAttacks(r.Context(), serverID)
	case core.KindPlayerAttacks:
		err = s.orch.TriggerPlayerAttacks(r.Context(), serverID)
	case core.KindArmyTraining:
		err = s.orch.TriggerArmyTraining(r.Context(), serverID)
	case core.KindWorldData:
		err = s.orch.TriggerWorldData(r.Context(), serverID)
	}
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ran": true})
}

// writeTriggerError distinguishes an unknown server from a task that ran
// and failed.
func writeTriggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrServerNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrUnknownTaskKind):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "task_failed", err.Error())
	}
}
