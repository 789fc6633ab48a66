package pulse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/alerts", Handler: m.handleListAlerts},
		{Method: "GET", Path: "/alerts/device/{device_id}", Handler: m.handleDeviceAlerts},
		{Method: "POST", Path: "/alerts/{id}/resolve", Handler: m.handleResolveAlert},
	}
}

// handleListAlerts returns all active (unresolved) alerts.
func (m *Module) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := m.store.ListActiveAlerts(r.Context(), "")
	if err != nil {
		m.logger.Warn("failed to list alerts", zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	pulseWriteJSON(w, http.StatusOK, alerts)
}

// handleDeviceAlerts returns recent alerts for a device, resolved included.
func (m *Module) handleDeviceAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		pulseWriteError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	alerts, err := m.store.ListAlerts(r.Context(), deviceID, limit)
	if err != nil {
		m.logger.Warn("failed to list device alerts", zap.String("device_id", deviceID), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	pulseWriteJSON(w, http.StatusOK, alerts)
}

// handleResolveAlert marks one alert resolved.
func (m *Module) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		pulseWriteError(w, http.StatusBadRequest, "alert id is required")
		return
	}
	if err := m.store.ResolveAlert(r.Context(), id); err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			pulseWriteError(w, http.StatusNotFound, "alert not found or already resolved")
			return
		}
		m.logger.Warn("failed to resolve alert", zap.String("alert_id", id), zap.Error(err))
		pulseWriteError(w, http.StatusInternalServerError, "failed to resolve alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- helpers --

func pulseWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func pulseWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://routefleet.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
