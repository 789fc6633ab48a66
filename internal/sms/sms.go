package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/notify"
	"github.com/routefleet/routefleet/internal/runner"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// DeviceFinder resolves devices from free-text identifiers. Satisfied by
// *fleet.Store.
type DeviceFinder interface {
	FindByNameOrAddress(ctx context.Context, token string) (*fleet.Device, error)
}

// Submitter enqueues script executions with an SMS reply destination.
// Satisfied by *runner.Module.
type Submitter interface {
	SubmitForDevice(ctx context.Context, device *fleet.Device, scriptID, replyTo string) (*runner.Execution, error)
}

// Config holds sms plugin settings.
type Config struct {
	// AllowedNumbers is the sender allowlist. Empty means the channel
	// rejects everything.
	AllowedNumbers []string `mapstructure:"allowed_numbers"`
	// GatewayURL is the outbound SMS gateway endpoint.
	GatewayURL string `mapstructure:"gateway_url"`
	// GatewaySecret signs outbound requests when set.
	GatewaySecret string `mapstructure:"gateway_secret"`
	// GatewayTimeout bounds each outbound gateway call.
	GatewayTimeout time.Duration `mapstructure:"gateway_timeout"`
}

// DefaultConfig returns sms defaults.
func DefaultConfig() Config {
	return Config{
		GatewayTimeout: 10 * time.Second,
	}
}

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the SMS command channel plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config

	allowed  map[string]bool
	devices  DeviceFinder
	runner   Submitter
	notifier notify.Notifier
}

// New creates a new sms plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "sms",
		Version:      "0.1.0",
		Description:  "SMS command channel",
		Dependencies: []string{"fleet", "runner"},
		Roles:        []string{"channel"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal sms config: %w", err)
		}
	}

	m.allowed = make(map[string]bool, len(m.cfg.AllowedNumbers))
	for _, n := range m.cfg.AllowedNumbers {
		m.allowed[n] = true
	}

	if m.cfg.GatewayURL != "" {
		m.notifier = notify.NewSMSNotifier(notify.GatewayConfig{
			URL:    m.cfg.GatewayURL,
			Secret: m.cfg.GatewaySecret,
		}, m.cfg.GatewayTimeout)
	} else {
		m.notifier = notify.NopNotifier{}
		m.logger.Warn("no SMS gateway configured, outbound messages are discarded")
	}

	m.logger.Info("sms module initialized",
		zap.Int("allowed_numbers", len(m.cfg.AllowedNumbers)),
		zap.String("notifier", m.notifier.Type()),
	)
	return nil
}

// SetDevices wires the roster lookup. Called by the composition root
// before Start.
func (m *Module) SetDevices(f DeviceFinder) { m.devices = f }

// SetRunner wires the execution submitter.
func (m *Module) SetRunner(s Submitter) { m.runner = s }

func (m *Module) Start(_ context.Context) error {
	if m.devices == nil || m.runner == nil {
		return fmt.Errorf("sms requires device finder and runner")
	}
	m.logger.Info("sms module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sms module stopped")
	return nil
}

// Notifier exposes the outbound channel for composition-root wiring, so
// pulse alerts and runner replies go through the same gateway.
func (m *Module) Notifier() notify.Notifier {
	return m.notifier
}

func (m *Module) isAllowed(number string) bool {
	return m.allowed[number]
}
