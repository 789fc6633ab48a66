// Package fleet owns the router roster: device identity, shell credentials,
// and operational state. The online flag and last-seen timestamp are mutated
// by the poller; script execution never touches the roster.
package fleet

import (
	"context"
	"fmt"

	"github.com/routefleet/routefleet/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the fleet roster plugin.
type Module struct {
	logger *zap.Logger
	config plugin.Config
	cfg    FleetConfig
	store  *Store
	bus    plugin.EventBus
}

// New creates a new fleet plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "fleet",
		Version:     "0.1.0",
		Description: "Router roster and credentials",
		Required:    true,
		Roles:       []string{"roster"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.config = deps.Config
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal fleet config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("fleet requires a store")
	}
	if err := deps.Store.Migrate(ctx, "fleet", Migrations()); err != nil {
		return fmt.Errorf("fleet migrations: %w", err)
	}
	m.store = NewStore(deps.Store.DB())

	m.logger.Info("fleet module initialized",
		zap.Int("default_ssh_port", m.cfg.DefaultSSHPort),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("fleet module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("fleet module stopped")
	return nil
}

// Store exposes the roster store for composition-root wiring.
func (m *Module) Store() *Store {
	return m.store
}
