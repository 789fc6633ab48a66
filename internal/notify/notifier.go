// Package notify delivers outbound text messages to device operators.
// The primary channel is an SMS gateway reached over HTTP; a no-op
// implementation stands in when no gateway is configured.
package notify

import "context"

// Notifier delivers a text message to a destination through a specific
// channel type.
type Notifier interface {
	// Notify sends text to the given destination, typically a phone number.
	Notify(ctx context.Context, destination, text string) error
	// Type returns the notifier type identifier (e.g., "sms", "nop").
	Type() string
}

// GatewayConfig holds configuration for SMS gateway delivery.
type GatewayConfig struct {
	URL     string            `mapstructure:"gateway_url" json:"url"`
	Secret  string            `mapstructure:"gateway_secret" json:"secret,omitempty"` //nolint:gosec // G101: config field name, not a credential
	Headers map[string]string `mapstructure:"gateway_headers" json:"headers,omitempty"`
}
