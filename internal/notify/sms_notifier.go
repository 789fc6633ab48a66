package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// maxSMSLength caps outbound message bodies. Gateways concatenate longer
// messages into multipart SMS; past this point the tail is noise.
const maxSMSLength = 1600

// Compile-time interface guard.
var _ Notifier = (*SMSNotifier)(nil)

// smsPayload is the JSON body sent to the SMS gateway.
type smsPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SMSNotifier delivers messages via HTTP POST to an SMS gateway.
type SMSNotifier struct {
	client *http.Client
	cfg    GatewayConfig
}

// NewSMSNotifier creates a new SMS gateway notifier with the given config.
func NewSMSNotifier(cfg GatewayConfig, timeout time.Duration) *SMSNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSNotifier{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Notify sends text to the destination number through the gateway.
// Messages past the SMS concatenation limit are truncated.
func (n *SMSNotifier) Notify(ctx context.Context, destination, text string) error {
	if destination == "" {
		return fmt.Errorf("sms destination is empty")
	}
	text = truncate(text, maxSMSLength)

	body, err := json.Marshal(smsPayload{To: destination, Body: text})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RouteFleet-SMS/0.1")

	// Add HMAC-SHA256 signature if secret is configured.
	if n.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(n.cfg.Secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Signature", sig)
	}

	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms POST %s: %w", n.cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms POST %s: status %d", n.cfg.URL, resp.StatusCode)
	}

	return nil
}

// Type returns the notifier type identifier.
func (n *SMSNotifier) Type() string {
	return "sms"
}

// truncate cuts s to at most max bytes on a rune boundary; gateways reject
// bodies ending in a split multi-byte character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
