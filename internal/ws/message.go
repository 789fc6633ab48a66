package ws

import "time"

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageExecutionStarted   MessageType = "execution.started"
	MessageExecutionCompleted MessageType = "execution.completed"
	MessageAlertTriggered     MessageType = "alert.triggered"
	MessageAlertResolved      MessageType = "alert.resolved"
	MessageDeviceOnline       MessageType = "device.online"
	MessageDeviceOffline      MessageType = "device.offline"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}
