package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/inbound", Handler: m.handleInbound},
		{Method: "POST", Path: "/broadcast", Handler: m.handleBroadcast},
	}
}

// handleInbound receives a gateway webhook for one incoming SMS. The
// gateway expects a 200 with a plain-text body; errors toward the sender
// travel as friendly reply messages, never as HTTP status codes.
func (m *Module) handleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")
	body := strings.TrimSpace(r.PostFormValue("Body"))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if !m.isAllowed(from) {
		m.logger.Warn("sms from unauthorized number", zap.String("from", from))
		fmt.Fprint(w, "Unauthorized number.")
		return
	}

	ctx := r.Context()

	if upper := strings.ToUpper(body); upper == "HELP" || upper == "?" || body == "" {
		m.send(ctx, from, HelpMessage)
		fmt.Fprint(w, "ok")
		return
	}

	scriptID, deviceToken := ParseCommand(body)
	if scriptID == "" {
		m.send(ctx, from, "Unknown command. Send HELP for list of commands.")
		fmt.Fprint(w, "ok")
		return
	}
	if deviceToken == "" {
		m.send(ctx, from, "Please specify a router. Example: SIGNAL R01")
		fmt.Fprint(w, "ok")
		return
	}

	device, err := m.devices.FindByNameOrAddress(ctx, deviceToken)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			m.send(ctx, from, fmt.Sprintf("Router '%s' not found.", deviceToken))
			fmt.Fprint(w, "ok")
			return
		}
		m.logger.Warn("sms device lookup failed", zap.String("token", deviceToken), zap.Error(err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	if !device.IsOnline {
		// No execution record for an offline target; the sender just
		// gets told and the exchange ends there.
		m.send(ctx, from, fmt.Sprintf("%s is currently OFFLINE.", device.Name))
		fmt.Fprint(w, "ok")
		return
	}

	m.send(ctx, from, fmt.Sprintf("Running %s on %s... Reply in ~30s.", strings.ToUpper(scriptID), device.Name))

	if _, err := m.runner.SubmitForDevice(ctx, device, scriptID, from); err != nil {
		m.logger.Warn("sms execution submit failed",
			zap.String("device_id", device.ID),
			zap.String("script_id", scriptID),
			zap.Error(err),
		)
		m.send(ctx, from, fmt.Sprintf("Could not start %s on %s, try again shortly.", strings.ToUpper(scriptID), device.Name))
	}
	fmt.Fprint(w, "ok")
}

type broadcastRequest struct {
	Message      string   `json:"message"`
	PhoneNumbers []string `json:"phone_numbers"`
}

// handleBroadcast sends one message to several numbers, skipping any that
// are not on the allowlist.
func (m *Module) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		smsWriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" || len(req.PhoneNumbers) == 0 {
		smsWriteError(w, http.StatusBadRequest, "message and phone_numbers are required")
		return
	}

	sent := 0
	for _, number := range req.PhoneNumbers {
		if !m.isAllowed(number) {
			continue
		}
		if err := m.notifier.Notify(r.Context(), number, req.Message); err != nil {
			m.logger.Warn("broadcast send failed", zap.String("destination", number), zap.Error(err))
			continue
		}
		sent++
	}
	smsWriteJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// send delivers one outbound SMS, logging failures instead of surfacing
// them; the inbound webhook must still be acknowledged.
func (m *Module) send(ctx context.Context, to, text string) {
	if err := m.notifier.Notify(ctx, to, text); err != nil {
		m.logger.Warn("sms send failed", zap.String("destination", to), zap.Error(err))
	}
}

// -- helpers --

func smsWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func smsWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://routefleet.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
