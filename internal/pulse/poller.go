package pulse

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/metrics"
	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/scripts"
)

// Prometheus fleet liveness metrics.
var (
	devicesOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routefleet_devices_online",
		Help: "Number of fleet devices answering the liveness probe.",
	})
	devicesPolled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routefleet_devices_polled",
		Help: "Number of active fleet devices in the last poll cycle.",
	})
	pollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routefleet_poll_cycles_total",
		Help: "Total number of completed poll cycles.",
	})
)

func init() {
	prometheus.MustRegister(devicesOnline, devicesPolled, pollCycles)
}

// TransitionHandler is called once per liveness edge, offline or recovery.
type TransitionHandler func(ctx context.Context, device fleet.Device)

// Poller probes every active device on a periodic interval using a worker
// pool. One device's failure never touches its siblings: each probe outcome
// is committed independently.
type Poller struct {
	fleet     *fleet.Store
	remote    remote.Runner
	metrics   *metrics.Store
	collector *SignalCollector
	onOffline TransitionHandler
	onOnline  TransitionHandler
	cfg       Config
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a fleet liveness poller.
func NewPoller(roster *fleet.Store, runner remote.Runner, points *metrics.Store, collector *SignalCollector, onOffline, onOnline TransitionHandler, cfg Config, logger *zap.Logger) *Poller {
	return &Poller{
		fleet:     roster,
		remote:    runner,
		metrics:   points,
		collector: collector,
		onOffline: onOffline,
		onOnline:  onOnline,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start begins the polling loop. Returns immediately.
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		// Run immediately on start, then on each tick.
		p.tick()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Stop signals the poller to stop and waits for in-flight probes.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// tick probes the whole active roster through a semaphore worker pool.
func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.PollInterval)
	defer cancel()

	devices, err := p.fleet.ListActive(ctx)
	if err != nil {
		p.logger.Warn("poller: failed to load roster", zap.Error(err))
		return
	}
	devicesPolled.Set(float64(len(devices)))
	if len(devices) == 0 {
		pollCycles.Inc()
		return
	}

	sem := make(chan struct{}, p.cfg.MaxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	online := 0

dispatch:
	for i := range devices {
		select {
		case <-p.ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(d fleet.Device) {
			defer wg.Done()
			defer func() { <-sem }()
			if p.pollDevice(ctx, d) {
				mu.Lock()
				online++
				mu.Unlock()
			}
		}(devices[i])
	}

	wg.Wait()
	devicesOnline.Set(float64(online))
	pollCycles.Inc()
}

// pollDevice probes one device and applies the liveness policy. Reports
// whether the device answered.
func (p *Poller) pollDevice(ctx context.Context, d fleet.Device) bool {
	ok, latencyMs := remote.Probe(ctx, p.remote, targetFor(d), scripts.ProbeCommand, p.cfg.ProbeTimeout)
	decision := Decide(d.IsOnline, ok)

	if err := p.fleet.SetOnline(ctx, d.ID, decision.NewOnline, time.Now().UTC()); err != nil {
		// Device may have been deleted mid-cycle; nothing else to record.
		p.logger.Debug("poller: failed to record liveness", zap.String("device_id", d.ID), zap.Error(err))
		return decision.NewOnline
	}

	p.writeHeartbeat(ctx, d.ID, ok, latencyMs)

	if decision.EmitAlert && p.onOffline != nil {
		p.onOffline(ctx, d)
	}
	if decision.TriggerDeepPoll {
		if p.onOnline != nil {
			p.onOnline(ctx, d)
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			// The recovery pull is an independent task that outlives the
			// poll cycle; deriving its context from the cycle would cancel
			// it the moment the cycle's probes finish.
			base := p.ctx
			if base == nil {
				base = context.Background()
			}
			dctx, cancel := context.WithTimeout(base, 2*p.cfg.ProbeTimeout)
			defer cancel()
			p.deepPoll(dctx, d)
		}()
	}
	return decision.NewOnline
}

// writeHeartbeat stores exactly one liveness point per device per cycle.
// Latency is only meaningful when the probe answered.
func (p *Poller) writeHeartbeat(ctx context.Context, deviceID string, online bool, latencyMs int64) {
	fields := map[string]float64{"online": 0}
	if online {
		fields["online"] = 1
		fields["latency_ms"] = float64(latencyMs)
	}
	err := p.metrics.WritePoint(ctx, metrics.Point{
		Measurement: metrics.MeasurementHeartbeat,
		DeviceID:    deviceID,
		Fields:      fields,
	})
	if err != nil {
		p.logger.Warn("poller: failed to write heartbeat", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// deepPoll pulls full signal telemetry from a device that just recovered.
func (p *Poller) deepPoll(ctx context.Context, d fleet.Device) {
	script := scripts.Get(scripts.ScriptSignalStrength)
	if script == nil || p.collector == nil {
		return
	}
	result := p.remote.Execute(ctx, targetFor(d), script.Command, p.cfg.ProbeTimeout)
	if !result.Success {
		p.logger.Debug("poller: deep poll failed",
			zap.String("device_id", d.ID),
			zap.String("stderr", result.Stderr),
		)
		return
	}
	p.collector.RecordSignal(ctx, d.ID, scripts.ParseKeyValue(result.Stdout))
	p.logger.Info("poller: recovered device telemetry collected", zap.String("device_id", d.ID))
}

func targetFor(d fleet.Device) remote.Target {
	return remote.Target{
		Host:       d.Address,
		Port:       d.SSHPort,
		User:       d.SSHUser,
		Password:   d.SSHPassword,
		PrivateKey: d.SSHKey,
	}
}

