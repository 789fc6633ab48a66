package runner

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/routefleet/routefleet/internal/auth"
	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/scripts"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/scripts", Handler: m.handleListScripts},
		{Method: "POST", Path: "/devices/{device_id}/execute", Handler: m.handleExecute},
		{Method: "GET", Path: "/devices/{device_id}/executions", Handler: m.handleListExecutions},
		{Method: "GET", Path: "/executions/{id}", Handler: m.handleGetExecution},
	}
}

// handleListScripts returns the script catalog. Command text stays
// server-side; clients only see metadata.
func (m *Module) handleListScripts(w http.ResponseWriter, r *http.Request) {
	runnerWriteJSON(w, http.StatusOK, scripts.List())
}

type executeRequest struct {
	ScriptID string `json:"script_id"`
}

func (m *Module) handleExecute(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		runnerWriteError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		runnerWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ScriptID == "" {
		runnerWriteError(w, http.StatusBadRequest, "script_id is required")
		return
	}

	principal := ""
	if claims := auth.UserFromContext(r.Context()); claims != nil {
		principal = claims.Username
	}

	exec, err := m.Submit(r.Context(), deviceID, req.ScriptID, OriginUI, principal)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownScript):
			runnerWriteError(w, http.StatusNotFound, "script not found: "+req.ScriptID)
		case errors.Is(err, fleet.ErrNotFound):
			runnerWriteError(w, http.StatusNotFound, "device not found")
		case errors.Is(err, ErrDeviceOffline):
			runnerWriteError(w, http.StatusConflict, "device is currently offline")
		case errors.Is(err, ErrQueueFull):
			runnerWriteError(w, http.StatusServiceUnavailable, "execution queue is full, try again shortly")
		default:
			m.logger.Warn("failed to submit execution",
				zap.String("device_id", deviceID),
				zap.String("script_id", req.ScriptID),
				zap.Error(err),
			)
			runnerWriteError(w, http.StatusInternalServerError, "failed to submit execution")
		}
		return
	}
	runnerWriteJSON(w, http.StatusAccepted, exec)
}

func (m *Module) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		runnerWriteError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	execs, err := m.store.ListByDevice(r.Context(), deviceID, limit)
	if err != nil {
		m.logger.Warn("failed to list executions", zap.String("device_id", deviceID), zap.Error(err))
		runnerWriteError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []Execution{}
	}
	runnerWriteJSON(w, http.StatusOK, execs)
}

func (m *Module) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		runnerWriteError(w, http.StatusBadRequest, "execution id is required")
		return
	}
	exec, err := m.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			runnerWriteError(w, http.StatusNotFound, "execution not found")
			return
		}
		m.logger.Warn("failed to get execution", zap.String("execution_id", id), zap.Error(err))
		runnerWriteError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	runnerWriteJSON(w, http.StatusOK, exec)
}

// -- helpers --

func runnerWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func runnerWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://routefleet.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
