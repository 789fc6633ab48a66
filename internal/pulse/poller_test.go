package pulse

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/metrics"
	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/scripts"
	"github.com/routefleet/routefleet/internal/store"
)

// fakeRunner answers the liveness probe and the signal script from canned
// results. A non-zero signalDelay makes the signal script slow, honoring
// context cancellation the way the real transport does.
type fakeRunner struct {
	mu           sync.Mutex
	probeOK      bool
	signalOutput string
	signalDelay  time.Duration
	commands     []string
}

func (f *fakeRunner) Execute(ctx context.Context, _ remote.Target, command string, _ time.Duration) *remote.Result {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	delay := f.signalDelay
	f.mu.Unlock()

	if command == scripts.ProbeCommand {
		if f.probeOK {
			return &remote.Result{Stdout: "ok", Success: true, DurationMs: 12}
		}
		return &remote.Result{Stderr: "connection refused", ExitStatus: -1}
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return &remote.Result{Stderr: "command timed out", ExitStatus: 1}
		case <-time.After(delay):
		}
	}
	return &remote.Result{Stdout: f.signalOutput, Success: true, DurationMs: 40}
}

type pollerFixture struct {
	poller  *Poller
	fleet   *fleet.Store
	metrics *metrics.Store
	runner  *fakeRunner

	mu      sync.Mutex
	offline []string
	online  []string
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx, "fleet", fleet.Migrations()); err != nil {
		t.Fatalf("fleet migrate: %v", err)
	}
	if err := db.Migrate(ctx, "metrics", metrics.Migrations()); err != nil {
		t.Fatalf("metrics migrate: %v", err)
	}

	fx := &pollerFixture{
		fleet:   fleet.NewStore(db.DB()),
		metrics: metrics.NewStore(db.DB()),
		runner:  &fakeRunner{},
	}
	logger := zap.NewNop()
	collector := NewSignalCollector(fx.metrics, logger)
	fx.poller = NewPoller(fx.fleet, fx.runner, fx.metrics, collector,
		func(_ context.Context, d fleet.Device) {
			fx.mu.Lock()
			fx.offline = append(fx.offline, d.ID)
			fx.mu.Unlock()
		},
		func(_ context.Context, d fleet.Device) {
			fx.mu.Lock()
			fx.online = append(fx.online, d.ID)
			fx.mu.Unlock()
		},
		DefaultConfig(), logger)
	return fx
}

func (fx *pollerFixture) addDevice(t *testing.T, id string, online bool) {
	t.Helper()
	now := time.Now().UTC()
	d := &fleet.Device{
		ID: id, Name: "router-" + id, Address: "10.0.0.1",
		SSHPort: 22, SSHUser: "admin", SSHPassword: "pw",
		IsActive: true, IsOnline: online,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := fx.fleet.Insert(context.Background(), d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestPollDevice_OfflineTransition(t *testing.T) {
	fx := newPollerFixture(t)
	ctx := context.Background()

	fx.addDevice(t, "dev-001", true)
	fx.runner.probeOK = false

	d, err := fx.fleet.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fx.poller.pollDevice(ctx, *d)
	fx.poller.wg.Wait()

	got, err := fx.fleet.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsOnline {
		t.Error("device still online after failed probe")
	}
	if len(fx.offline) != 1 || fx.offline[0] != "dev-001" {
		t.Errorf("offline handler calls = %v, want [dev-001]", fx.offline)
	}
	if len(fx.online) != 0 {
		t.Errorf("online handler calls = %v, want none", fx.online)
	}

	samples, err := fx.metrics.Range(ctx, metrics.MeasurementHeartbeat, "dev-001", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("heartbeat samples = %d, want 1 (online only, no latency when down)", len(samples))
	}
	if samples[0].Field != "online" || samples[0].Value != 0 {
		t.Errorf("heartbeat = %+v, want online=0", samples[0])
	}
}

func TestPollDevice_RecoveryTriggersDeepPoll(t *testing.T) {
	fx := newPollerFixture(t)
	ctx := context.Background()

	fx.addDevice(t, "dev-001", false)
	fx.runner.probeOK = true
	fx.runner.signalOutput = "iface=lte1\nrssi=-85\nrsrp=-110\nrsrq=none\nsinr=8\nband=B20\noperator=telco"

	d, err := fx.fleet.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fx.poller.pollDevice(ctx, *d)
	fx.poller.wg.Wait()

	got, err := fx.fleet.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsOnline {
		t.Error("device still offline after successful probe")
	}
	if got.LastSeen == nil {
		t.Error("LastSeen not set on recovery")
	}
	if len(fx.online) != 1 {
		t.Errorf("online handler calls = %v, want one", fx.online)
	}
	if len(fx.offline) != 0 {
		t.Errorf("offline handler calls = %v, want none", fx.offline)
	}

	// Heartbeat carries latency when the device answered.
	hb, err := fx.metrics.Range(ctx, metrics.MeasurementHeartbeat, "dev-001", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Range heartbeat: %v", err)
	}
	fields := map[string]float64{}
	for _, sm := range hb {
		fields[sm.Field] = sm.Value
	}
	if fields["online"] != 1 {
		t.Errorf("heartbeat online = %v, want 1", fields["online"])
	}
	if fields["latency_ms"] != 12 {
		t.Errorf("heartbeat latency_ms = %v, want 12", fields["latency_ms"])
	}

	// Deep poll parsed the signal output; the unparseable rsrq was dropped.
	sig, err := fx.metrics.Range(ctx, metrics.MeasurementSignal, "dev-001", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Range signal: %v", err)
	}
	sigFields := map[string]float64{}
	var tags map[string]string
	for _, sm := range sig {
		sigFields[sm.Field] = sm.Value
		tags = sm.Tags
	}
	if sigFields["rssi"] != -85 || sigFields["sinr"] != 8 {
		t.Errorf("signal fields = %v", sigFields)
	}
	if _, ok := sigFields["rsrq"]; ok {
		t.Error("rsrq=none should have been dropped")
	}
	if tags["operator"] != "telco" || tags["band"] != "B20" {
		t.Errorf("signal tags = %v", tags)
	}
}

func TestStart_RecoveryDeepPollOutlivesCycle(t *testing.T) {
	fx := newPollerFixture(t)
	ctx := context.Background()

	fx.addDevice(t, "dev-001", false)
	fx.runner.probeOK = true
	fx.runner.signalDelay = 50 * time.Millisecond
	fx.runner.signalOutput = "rssi=-90\noperator=telco\nband=B3"

	// Short cycles so the poll cycle ends well before the slow signal pull;
	// the telemetry must still arrive.
	fx.poller.cfg.PollInterval = 25 * time.Millisecond
	fx.poller.cfg.ProbeTimeout = time.Second

	fx.poller.Start(ctx)
	defer fx.poller.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sig, err := fx.metrics.Range(ctx, metrics.MeasurementSignal, "dev-001", time.Now().Add(-time.Minute))
		if err != nil {
			t.Fatalf("Range signal: %v", err)
		}
		if len(sig) > 0 {
			for _, sm := range sig {
				if sm.Field == "rssi" && sm.Value != -90 {
					t.Errorf("signal rssi = %v, want -90", sm.Value)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("signal telemetry never arrived after recovery")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPollDevice_SteadyOfflineStaysQuiet(t *testing.T) {
	fx := newPollerFixture(t)
	ctx := context.Background()

	fx.addDevice(t, "dev-001", false)
	fx.runner.probeOK = false

	d, err := fx.fleet.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fx.poller.pollDevice(ctx, *d)
	fx.poller.wg.Wait()

	if len(fx.offline)+len(fx.online) != 0 {
		t.Errorf("handlers called on steady state: offline=%v online=%v", fx.offline, fx.online)
	}
}
