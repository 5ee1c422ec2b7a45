package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"callsight/internal/api"
	"callsight/internal/deps"
	"callsight/internal/logging"
	"callsight/internal/stage"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health := s.engine.Health(r.Context())
	binaries := deps.Check(s.cfg)
	payload := api.DaemonStatus{
		Running:        true,
		PID:            os.Getpid(),
		Ready:          stage.AllReady(health) && len(deps.MissingRequired(binaries)) == 0,
		HistoryEnabled: s.history != nil,
		LockFilePath:   s.lockPath,
		Stages:         api.StageHealthSlice(health),
		Dependencies:   api.DependencyStatuses(binaries),
	}
	if s.history != nil {
		payload.HistoryDBPath = s.history.Path()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	sessions, err := s.historySvc.List(r.Context(), limit)
	if err != nil {
		logging.WithContext(r.Context(), s.logger).Error("history list failed",
			logging.String(logging.FieldEventType, "history_list_failed"),
			logging.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryListResponse{Sessions: sessions})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	detail, err := s.historySvc.Describe(r.Context(), id)
	if err != nil {
		logging.WithContext(r.Context(), s.logger).Error("history lookup failed",
			logging.String(logging.FieldEventType, "history_get_failed"),
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryItemResponse{Session: *detail})
}
