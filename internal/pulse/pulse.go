// Package pulse keeps the fleet liveness picture current. A periodic poller
// probes every active device over the shell transport, records heartbeat
// telemetry, raises alerts on offline transitions, and pulls a full signal
// sample when a device recovers.
package pulse

import (
	"context"
	"fmt"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/metrics"
	"github.com/routefleet/routefleet/internal/notify"
	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the liveness monitoring plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *PulseStore
	bus    plugin.EventBus

	roster    *fleet.Store
	remote    remote.Runner
	points    *metrics.Store
	notifier  notify.Notifier
	collector *SignalCollector
	poller    *Poller
}

// New creates a new pulse plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "pulse",
		Version:      "0.1.0",
		Description:  "Fleet liveness polling and alerting",
		Required:     true,
		Dependencies: []string{"fleet", "metrics"},
		Roles:        []string{"monitor"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal pulse config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("pulse requires a store")
	}
	if err := deps.Store.Migrate(ctx, "pulse", migrations()); err != nil {
		return fmt.Errorf("pulse migrations: %w", err)
	}
	m.store = NewPulseStore(deps.Store.DB())

	m.logger.Info("pulse module initialized",
		zap.Duration("poll_interval", m.cfg.PollInterval),
		zap.Int("max_workers", m.cfg.MaxWorkers),
	)
	return nil
}

// SetRoster wires the fleet store. Called by the composition root before Start.
func (m *Module) SetRoster(s *fleet.Store) { m.roster = s }

// SetRemote wires the command transport.
func (m *Module) SetRemote(r remote.Runner) { m.remote = r }

// SetMetrics wires the telemetry store.
func (m *Module) SetMetrics(s *metrics.Store) { m.points = s }

// SetNotifier wires the alert SMS channel. Optional.
func (m *Module) SetNotifier(n notify.Notifier) { m.notifier = n }

func (m *Module) Start(_ context.Context) error {
	if m.roster == nil || m.remote == nil || m.points == nil {
		return fmt.Errorf("pulse requires roster, remote transport and metrics store")
	}

	m.collector = NewSignalCollector(m.points, m.logger.Named("signal"))
	m.poller = NewPoller(m.roster, m.remote, m.points, m.collector, m.handleOffline, m.handleOnline, m.cfg, m.logger.Named("poller"))
	m.poller.Start(context.Background())

	m.logger.Info("pulse module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.poller != nil {
		m.poller.Stop()
	}
	m.logger.Info("pulse module stopped")
	return nil
}

// handleOnline fires once per recovery transition. Open offline alerts for
// the device are closed.
func (m *Module) handleOnline(ctx context.Context, device fleet.Device) {
	n, err := m.store.ResolveDeviceAlerts(ctx, device.ID, CategoryOffline)
	if err != nil {
		m.logger.Warn("failed to resolve offline alerts", zap.String("device_id", device.ID), zap.Error(err))
		return
	}
	m.logger.Info("device recovered",
		zap.String("device_id", device.ID),
		zap.String("device", device.Name),
		zap.Int64("alerts_resolved", n),
	)
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicDeviceOnline,
			Source:  "pulse",
			Payload: map[string]any{"device_id": device.ID},
		})
		if n > 0 {
			m.bus.PublishAsync(ctx, plugin.Event{
				Topic:   TopicAlertResolved,
				Source:  "pulse",
				Payload: map[string]any{"device_id": device.ID, "category": CategoryOffline},
			})
		}
	}
}

// handleOffline fires once per online-to-offline transition: one alert
// record, one bus event, one SMS broadcast.
func (m *Module) handleOffline(ctx context.Context, device fleet.Device) {
	alert := NewAlert(device.ID, CategoryOffline, SeverityCritical,
		fmt.Sprintf("%s (%s) stopped responding to liveness probes", device.Name, device.Address))
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		m.logger.Warn("failed to record offline alert", zap.String("device_id", device.ID), zap.Error(err))
		return
	}
	m.logger.Warn("device went offline",
		zap.String("device_id", device.ID),
		zap.String("device", device.Name),
	)

	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:  TopicAlertTriggered,
			Source: "pulse",
			Payload: map[string]any{
				"alert_id":  alert.ID,
				"device_id": device.ID,
				"category":  alert.Category,
				"severity":  alert.Severity,
				"message":   alert.Message,
			},
		})
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:   TopicDeviceOffline,
			Source:  "pulse",
			Payload: map[string]any{"device_id": device.ID},
		})
	}

	if m.notifier != nil {
		text := fmt.Sprintf("⚠ %s is OFFLINE (%s)", device.Name, device.Address)
		for _, number := range m.cfg.AlertNumbers {
			if err := m.notifier.Notify(ctx, number, text); err != nil {
				m.logger.Warn("failed to send offline alert",
					zap.String("destination", number),
					zap.Error(err),
				)
			}
		}
	}
}
