package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type settingResponse struct {
	ServerID  string          `json:"server_id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	entries, err := s.store.ListSettings(r.Context(), serverID)
	if err != nil {
		s.logger.Error("list settings", "server_id", serverID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list settings")
		return
	}
	res := make([]settingResponse, 0, len(entries))
	for _, entry := range entries {
		res = append(res, settingResponse{
			ServerID:  entry.ServerID,
			Key:       entry.Key,
			Value:     entry.Value,
			UpdatedAt: entry.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": res})
}

type setSettingRequest struct {
	ServerID string          `json:"server_id"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req setSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "key is required")
		return
	}
	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "value must be valid JSON")
		return
	}

	if err := s.store.SetSetting(r.Context(), req.ServerID, req.Key, value); err != nil {
		s.logger.Error("set setting", "server_id", req.ServerID, "key", req.Key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save setting")
		return
	}

	// Settings changes re-evaluate task enablement immediately instead
	// of waiting for the next monitoring pass.
	s.orch.ApplySettings(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"server_id": req.ServerID,
		"key":       req.Key,
		"value":     req.Value,
	})
}
