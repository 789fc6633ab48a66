// Package runner executes catalog scripts on fleet devices and tracks each
// run as an execution record moving through a small state machine: pending,
// running, then exactly one of success or error. Submissions are queued and
// drained by a worker pool so slow devices never block the API.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/notify"
	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/scripts"
	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Sentinel errors surfaced to HTTP and SMS callers.
var (
	ErrUnknownScript = errors.New("unknown script")
	ErrDeviceOffline = errors.New("device is offline")
	ErrQueueFull     = errors.New("execution queue is full")
)

// DeviceSource resolves devices from the roster. Satisfied by *fleet.Store.
type DeviceSource interface {
	Get(ctx context.Context, id string) (*fleet.Device, error)
	FindByNameOrAddress(ctx context.Context, token string) (*fleet.Device, error)
}

// TelemetrySink receives parsed signal readings from successful
// signal-strength runs.
type TelemetrySink interface {
	RecordSignal(ctx context.Context, deviceID string, kv *scripts.KV)
}

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the script execution plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *Store
	bus    plugin.EventBus

	devices   DeviceSource
	remote    remote.Runner
	telemetry TelemetrySink
	notifier  notify.Notifier

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new runner plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "runner",
		Version:      "0.1.0",
		Description:  "Queued script execution on fleet devices",
		Required:     true,
		Dependencies: []string{"fleet", "metrics"},
		Roles:        []string{"executor"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal runner config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("runner requires a store")
	}
	if err := deps.Store.Migrate(ctx, "runner", migrations()); err != nil {
		return fmt.Errorf("runner migrations: %w", err)
	}
	m.store = NewStore(deps.Store.DB())
	m.queue = make(chan string, m.cfg.QueueSize)

	m.logger.Info("runner module initialized",
		zap.Int("workers", m.cfg.Workers),
		zap.Int("queue_size", m.cfg.QueueSize),
	)
	return nil
}

// SetDevices wires the roster source. Called by the composition root
// before Start.
func (m *Module) SetDevices(src DeviceSource) { m.devices = src }

// SetRemote wires the command transport.
func (m *Module) SetRemote(r remote.Runner) { m.remote = r }

// SetTelemetry wires the signal sink. Optional.
func (m *Module) SetTelemetry(t TelemetrySink) { m.telemetry = t }

// SetNotifier wires the SMS reply channel. Optional.
func (m *Module) SetNotifier(n notify.Notifier) { m.notifier = n }

func (m *Module) Start(_ context.Context) error {
	if m.devices == nil || m.remote == nil {
		return fmt.Errorf("runner requires device source and remote transport")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(runCtx)
	}

	m.logger.Info("runner module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("runner module stopped")
	return nil
}

func (m *Module) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.run(ctx, id)
		}
	}
}

// Submit validates a request and enqueues one execution. The record is
// created in pending state before the queue send, so callers always get an
// ID they can poll. Validation failures create no record at all.
func (m *Module) Submit(ctx context.Context, deviceID, scriptID, origin, principal string) (*Execution, error) {
	script := scripts.Get(scriptID)
	if script == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, scriptID)
	}
	device, err := m.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, device, script, origin, principal, "")
}

// SubmitForDevice enqueues an execution for an already-resolved device.
// Used by the SMS channel, which resolves devices by name. The sender's
// number doubles as the reply destination and the recorded principal.
func (m *Module) SubmitForDevice(ctx context.Context, device *fleet.Device, scriptID, replyTo string) (*Execution, error) {
	script := scripts.Get(scriptID)
	if script == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, scriptID)
	}
	return m.submit(ctx, device, script, OriginSMS, replyTo, replyTo)
}

func (m *Module) submit(ctx context.Context, device *fleet.Device, script *scripts.Definition, origin, principal, replyTo string) (*Execution, error) {
	if !device.IsOnline {
		return nil, fmt.Errorf("%w: %s", ErrDeviceOffline, device.Name)
	}

	exec := NewExecution(device.ID, script.ID, origin, principal, replyTo)
	if err := m.store.Insert(ctx, exec); err != nil {
		return nil, err
	}

	select {
	case m.queue <- exec.ID:
	default:
		// Queue saturated. Fail the record rather than block the caller.
		if err := m.store.Finish(ctx, exec.ID, StatusError, "", "execution queue is full", -1, 0); err != nil {
			m.logger.Warn("failed to mark queue-full execution", zap.String("execution_id", exec.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}

	m.logger.Info("execution queued",
		zap.String("execution_id", exec.ID),
		zap.String("device_id", device.ID),
		zap.String("script_id", script.ID),
	)
	return exec, nil
}

// run drives one execution from pending to a terminal state.
func (m *Module) run(ctx context.Context, executionID string) {
	exec, err := m.store.Get(ctx, executionID)
	if err != nil {
		m.logger.Warn("queued execution vanished", zap.String("execution_id", executionID), zap.Error(err))
		return
	}

	script := scripts.Get(exec.ScriptID)
	if script == nil {
		m.finish(ctx, exec, StatusError, "", "script no longer exists: "+exec.ScriptID, -1, 0)
		return
	}
	device, err := m.devices.Get(ctx, exec.DeviceID)
	if err != nil {
		m.finish(ctx, exec, StatusError, "", "device no longer exists: "+exec.DeviceID, -1, 0)
		return
	}

	if err := m.store.MarkRunning(ctx, exec.ID); err != nil {
		m.logger.Warn("failed to mark execution running", zap.String("execution_id", exec.ID), zap.Error(err))
		return
	}
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:  TopicExecutionStarted,
			Source: "runner",
			Payload: map[string]any{
				"execution_id": exec.ID,
				"device_id":    exec.DeviceID,
				"script_id":    exec.ScriptID,
			},
		})
	}

	target := remote.Target{
		Host:       device.Address,
		Port:       device.SSHPort,
		User:       device.SSHUser,
		Password:   device.SSHPassword,
		PrivateKey: device.SSHKey,
	}
	result := m.remote.Execute(ctx, target, script.Command, m.cfg.ScriptTimeout)

	status := StatusError
	if result.Success {
		status = StatusSuccess
	}
	m.finish(ctx, exec, status, result.Stdout, result.Stderr, result.ExitStatus, result.DurationMs)

	if result.Success && exec.ScriptID == scripts.ScriptSignalStrength && m.telemetry != nil {
		m.telemetry.RecordSignal(ctx, exec.DeviceID, scripts.ParseKeyValue(result.Stdout))
	}

	if exec.ReplyTo != "" && m.notifier != nil {
		reply := formatReply(device.Name, script, result)
		if err := m.notifier.Notify(ctx, exec.ReplyTo, reply); err != nil {
			m.logger.Warn("failed to send execution reply",
				zap.String("execution_id", exec.ID),
				zap.String("destination", exec.ReplyTo),
				zap.Error(err),
			)
		}
	}
}

func (m *Module) finish(ctx context.Context, exec *Execution, status, stdout, stderr string, exitStatus int, durationMs int64) {
	if err := m.store.Finish(ctx, exec.ID, status, stdout, stderr, exitStatus, durationMs); err != nil {
		m.logger.Warn("failed to finish execution", zap.String("execution_id", exec.ID), zap.Error(err))
		return
	}
	m.logger.Info("execution finished",
		zap.String("execution_id", exec.ID),
		zap.String("device_id", exec.DeviceID),
		zap.String("script_id", exec.ScriptID),
		zap.String("status", status),
		zap.Int64("duration_ms", durationMs),
	)
	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:  TopicExecutionCompleted,
			Source: "runner",
			Payload: map[string]any{
				"execution_id": exec.ID,
				"device_id":    exec.DeviceID,
				"script_id":    exec.ScriptID,
				"status":       status,
			},
		})
	}
}

// Store exposes the execution store for composition-root wiring.
func (m *Module) Store() *Store {
	return m.store
}
