package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// pingSemaphore limits concurrent ICMP diagnostics to 3.
var pingSemaphore = make(chan struct{}, 3)

func acquirePingSlot() bool {
	select {
	case pingSemaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func releasePingSlot() {
	<-pingSemaphore
}

// PingRequest tunes the ICMP diagnostic.
type PingRequest struct {
	Count   int `json:"count,omitempty"`
	Timeout int `json:"timeout_ms,omitempty"`
}

// PingResult holds ICMP round-trip statistics for a device.
type PingResult struct {
	DeviceID   string  `json:"device_id"`
	Target     string  `json:"target"`
	Sent       int     `json:"sent"`
	Received   int     `json:"received"`
	PacketLoss float64 `json:"packet_loss"`
	MinRTT     float64 `json:"min_rtt_ms"`
	AvgRTT     float64 `json:"avg_rtt_ms"`
	MaxRTT     float64 `json:"max_rtt_ms"`
}

// handlePingDevice sends ICMP echo requests to a device's address. This
// checks IP reachability independently of the shell transport, which helps
// distinguish "host down" from "shell unreachable".
func (m *Module) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := m.deviceFromPath(w, r)
	if !ok {
		return
	}

	if !acquirePingSlot() {
		fleetWriteError(w, http.StatusTooManyRequests, "too many concurrent ping diagnostics, please wait")
		return
	}
	defer releasePingSlot()

	// Body is optional; defaults apply when absent or malformed.
	var req PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = PingRequest{}
	}
	count := req.Count
	if count <= 0 || count > 10 {
		count = 4
	}
	timeoutMs := req.Timeout
	if timeoutMs <= 0 || timeoutMs > 10000 {
		timeoutMs = 2000
	}

	result, err := runPing(r.Context(), d.Address, count, timeoutMs, m.logger)
	if err != nil {
		m.logger.Warn("ping diagnostic failed", zap.String("device_id", d.ID), zap.Error(err))
		fleetWriteError(w, http.StatusInternalServerError, "ping failed")
		return
	}
	result.DeviceID = d.ID
	fleetWriteJSON(w, http.StatusOK, result)
}

func runPing(ctx context.Context, target string, count, timeoutMs int, logger *zap.Logger) (*PingResult, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = count
	pinger.Timeout = time.Duration(count) * time.Duration(timeoutMs) * time.Millisecond
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			logger.Debug("ping run error", zap.String("target", target), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return nil, ctx.Err()
	}

	stats := pinger.Statistics()
	return &PingResult{
		Target:     target,
		Sent:       stats.PacketsSent,
		Received:   stats.PacketsRecv,
		PacketLoss: stats.PacketLoss,
		MinRTT:     float64(stats.MinRtt.Microseconds()) / 1000.0,
		AvgRTT:     float64(stats.AvgRtt.Microseconds()) / 1000.0,
		MaxRTT:     float64(stats.MaxRtt.Microseconds()) / 1000.0,
	}, nil
}
