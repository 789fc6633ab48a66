package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/routefleet/routefleet/internal/auth"
	"github.com/routefleet/routefleet/internal/pulse"
	"github.com/routefleet/routefleet/internal/runner"
	"github.com/routefleet/routefleet/pkg/plugin"
)

// Handler provides the WebSocket endpoint for real-time fleet events.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	bus    plugin.EventBus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to fleet events.
func NewHandler(tokens *auth.TokenService, bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/events", h.handleEventStream)
}

// handleEventStream upgrades the connection to WebSocket and streams
// execution, alert, and liveness events.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	// Validate JWT from query parameter (browser WS API doesn't support headers).
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Allow any origin since we validate via JWT token.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards bus events to all connected WebSocket clients.
// Event payloads are plain maps, so they pass through as the message data.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	topics := map[string]MessageType{
		runner.TopicExecutionStarted:   MessageExecutionStarted,
		runner.TopicExecutionCompleted: MessageExecutionCompleted,
		pulse.TopicAlertTriggered:      MessageAlertTriggered,
		pulse.TopicAlertResolved:       MessageAlertResolved,
		pulse.TopicDeviceOnline:        MessageDeviceOnline,
		pulse.TopicDeviceOffline:       MessageDeviceOffline,
	}

	for topic, msgType := range topics {
		msgType := msgType
		h.bus.Subscribe(topic, func(_ context.Context, event plugin.Event) {
			h.hub.Broadcast(Message{
				Type:      msgType,
				Timestamp: event.Timestamp,
				Data:      event.Payload,
			})
		})
	}

	h.logger.Info("subscribed to fleet events for WebSocket broadcasting")
}
