package metrics

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/signal/{device_id}", Handler: m.handleSignal},
		{Method: "GET", Path: "/heartbeat/{device_id}", Handler: m.handleHeartbeat},
		{Method: "GET", Path: "/summary", Handler: m.handleSummary},
	}
}

// signalResponse groups signal samples by field so clients can plot each
// series directly.
type signalResponse struct {
	DeviceID string              `json:"device_id"`
	Range    string              `json:"range"`
	Series   map[string][]Sample `json:"series"`
}

func (m *Module) handleSignal(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		metricsWriteError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	dur, rangeStr, ok := m.parseRangeParam(w, r)
	if !ok {
		return
	}

	samples, err := m.store.Range(r.Context(), MeasurementSignal, deviceID, time.Now().UTC().Add(-dur))
	if err != nil {
		m.logger.Warn("signal range query failed", zap.String("device_id", deviceID), zap.Error(err))
		metricsWriteError(w, http.StatusInternalServerError, "failed to query signal metrics")
		return
	}

	series := make(map[string][]Sample)
	for _, sm := range samples {
		series[sm.Field] = append(series[sm.Field], sm)
	}
	metricsWriteJSON(w, http.StatusOK, signalResponse{
		DeviceID: deviceID,
		Range:    rangeStr,
		Series:   series,
	})
}

// heartbeatResponse reports liveness over a window. Uptime is the share of
// heartbeat samples where the device answered, as a percentage rounded to
// two decimals.
type heartbeatResponse struct {
	DeviceID      string   `json:"device_id"`
	Range         string   `json:"range"`
	Samples       int      `json:"samples"`
	UptimePercent *float64 `json:"uptime_percent"`
	AvgLatencyMs  *float64 `json:"avg_latency_ms,omitempty"`
	Points        []Sample `json:"points"`
}

func (m *Module) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		metricsWriteError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	dur, rangeStr, ok := m.parseRangeParam(w, r)
	if !ok {
		return
	}

	samples, err := m.store.Range(r.Context(), MeasurementHeartbeat, deviceID, time.Now().UTC().Add(-dur))
	if err != nil {
		m.logger.Warn("heartbeat range query failed", zap.String("device_id", deviceID), zap.Error(err))
		metricsWriteError(w, http.StatusInternalServerError, "failed to query heartbeat metrics")
		return
	}

	resp := heartbeatResponse{
		DeviceID: deviceID,
		Range:    rangeStr,
		Points:   samples,
	}
	if resp.Points == nil {
		resp.Points = []Sample{}
	}

	var total, up int
	var latencySum float64
	var latencyCount int
	for _, sm := range samples {
		switch sm.Field {
		case "online":
			total++
			if sm.Value > 0 {
				up++
			}
		case "latency_ms":
			latencySum += sm.Value
			latencyCount++
		}
	}
	resp.Samples = total
	if total > 0 {
		pct := round2(float64(up) / float64(total) * 100)
		resp.UptimePercent = &pct
	}
	if latencyCount > 0 {
		avg := round2(latencySum / float64(latencyCount))
		resp.AvgLatencyMs = &avg
	}
	metricsWriteJSON(w, http.StatusOK, resp)
}

// deviceSummary is the latest signal reading for one device.
type deviceSummary struct {
	DeviceID string            `json:"device_id"`
	Fields   map[string]float64 `json:"fields"`
	Tags     map[string]string `json:"tags,omitempty"`
	LastSeen time.Time         `json:"last_seen"`
}

func (m *Module) handleSummary(w http.ResponseWriter, r *http.Request) {
	ids, err := m.store.DeviceIDs(r.Context(), MeasurementSignal)
	if err != nil {
		m.logger.Warn("summary device list failed", zap.Error(err))
		metricsWriteError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	// Only devices that reported signal in the last 10 minutes count as
	// current; stale readings drop out of the summary.
	cutoff := time.Now().UTC().Add(-10 * time.Minute)

	summaries := make([]deviceSummary, 0, len(ids))
	for _, id := range ids {
		latest, err := m.store.Latest(r.Context(), MeasurementSignal, id, cutoff)
		if err != nil {
			m.logger.Warn("summary latest query failed", zap.String("device_id", id), zap.Error(err))
			continue
		}
		if len(latest) == 0 {
			continue
		}
		s := deviceSummary{DeviceID: id, Fields: make(map[string]float64, len(latest))}
		for f, sm := range latest {
			s.Fields[f] = round2(sm.Value)
			if sm.Timestamp.After(s.LastSeen) {
				s.LastSeen = sm.Timestamp
				s.Tags = sm.Tags
			}
		}
		summaries = append(summaries, s)
	}
	metricsWriteJSON(w, http.StatusOK, summaries)
}

// parseRangeParam reads and validates the ?range= query parameter,
// defaulting to 24h.
func (m *Module) parseRangeParam(w http.ResponseWriter, r *http.Request) (time.Duration, string, bool) {
	rangeStr := r.URL.Query().Get("range")
	if rangeStr == "" {
		rangeStr = "24h"
	}
	dur, err := ParseRange(rangeStr)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			metricsWriteError(w, http.StatusBadRequest, "range must match a number followed by m, h, d or w, e.g. 24h")
			return 0, "", false
		}
		metricsWriteError(w, http.StatusInternalServerError, "failed to parse range")
		return 0, "", false
	}
	return dur, rangeStr, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// -- helpers --

func metricsWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func metricsWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://routefleet.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
