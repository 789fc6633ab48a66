// Package metrics stores device telemetry as timestamped measurement points
// and serves range queries over them. Signal samples and liveness heartbeats
// land here; a background sweep prunes points past the retention period.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the telemetry storage plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *Store

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new metrics plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "metrics",
		Version:     "0.1.0",
		Description: "Telemetry point storage and range queries",
		Required:    true,
		Roles:       []string{"telemetry"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal metrics config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("metrics requires a store")
	}
	if err := deps.Store.Migrate(ctx, "metrics", Migrations()); err != nil {
		return fmt.Errorf("metrics migrations: %w", err)
	}
	m.store = NewStore(deps.Store.DB())

	m.logger.Info("metrics module initialized",
		zap.Duration("retention", m.cfg.RetentionPeriod),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.retentionLoop(runCtx)

	m.logger.Info("metrics module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("metrics module stopped")
	return nil
}

// Store exposes the point store for composition-root wiring.
func (m *Module) Store() *Store {
	return m.store
}

// retentionLoop deletes points older than the retention period on a fixed
// interval. Runs one sweep immediately at startup.
func (m *Module) retentionLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Module) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.RetentionPeriod)
	n, err := m.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		m.logger.Warn("retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("retention sweep pruned points",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff),
		)
	}
}
