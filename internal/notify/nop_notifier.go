package notify

import "context"

// Compile-time interface guard.
var _ Notifier = (*NopNotifier)(nil)

// NopNotifier discards all messages. Used when no SMS gateway is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(_ context.Context, _, _ string) error { return nil }

func (NopNotifier) Type() string { return "nop" }
