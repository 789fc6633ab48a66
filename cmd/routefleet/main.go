package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/routefleet/routefleet/internal/auth"
	"github.com/routefleet/routefleet/internal/config"
	"github.com/routefleet/routefleet/internal/event"
	"github.com/routefleet/routefleet/internal/fleet"
	"github.com/routefleet/routefleet/internal/metrics"
	"github.com/routefleet/routefleet/internal/pulse"
	"github.com/routefleet/routefleet/internal/registry"
	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/runner"
	"github.com/routefleet/routefleet/internal/server"
	"github.com/routefleet/routefleet/internal/sms"
	"github.com/routefleet/routefleet/internal/store"
	"github.com/routefleet/routefleet/internal/version"
	"github.com/routefleet/routefleet/internal/ws"
	"github.com/routefleet/routefleet/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("RouteFleet server starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "routefleet.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database schema check failed", zap.Error(err))
	}

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Create shared services
	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))

	// Register all plugins (compile-time composition)
	fleetMod := fleet.New()
	metricsMod := metrics.New()
	runnerMod := runner.New()
	pulseMod := pulse.New()
	smsMod := sms.New()

	modules := []plugin.Plugin{fleetMod, metricsMod, runnerMod, pulseMod, smsMod}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	// Validate dependency graph and API versions
	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	// Wire cross-module collaborators. All modules are initialized at this
	// point; wiring must precede StartAll since Start validates it.
	sshRunner := remote.NewSSHRunner(logger.Named("ssh"))
	signalSink := pulse.NewSignalCollector(metricsMod.Store(), logger.Named("signal"))

	runnerMod.SetDevices(fleetMod.Store())
	runnerMod.SetRemote(sshRunner)
	runnerMod.SetTelemetry(signalSink)
	runnerMod.SetNotifier(smsMod.Notifier())

	pulseMod.SetRoster(fleetMod.Store())
	pulseMod.SetRemote(sshRunner)
	pulseMod.SetMetrics(metricsMod.Store())
	pulseMod.SetNotifier(smsMod.Notifier())

	smsMod.SetDevices(fleetMod.Store())
	smsMod.SetRunner(runnerMod)

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Create auth service
	authStore, err := auth.NewUserStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize auth store", zap.Error(err))
	}

	jwtSecret := viperCfg.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		// Generate an ephemeral secret -- tokens won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("failed to generate JWT secret", zap.Error(err))
		}
		jwtSecret = hex.EncodeToString(b)
		logger.Info("using auto-generated JWT secret (set auth.jwt_secret in config to persist sessions across restarts)",
			zap.String("component", "auth"),
		)
	}

	accessTTL := viperCfg.GetDuration("auth.access_token_ttl")
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := viperCfg.GetDuration("auth.refresh_token_ttl")
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	tokens := auth.NewTokenService([]byte(jwtSecret), accessTTL, refreshTTL)
	authService := auth.NewService(authStore, tokens, logger.Named("auth"))
	authHandler := auth.NewHandler(authService, logger.Named("auth"))
	logger.Info("auth service initialized",
		zap.String("component", "auth"),
		zap.Duration("access_token_ttl", accessTTL),
		zap.Duration("refresh_token_ttl", refreshTTL),
	)

	// Create WebSocket handler for real-time fleet events
	wsHandler := ws.NewHandler(tokens, bus, logger.Named("ws"))

	// Create and start HTTP server
	addr := viperCfg.GetString("server.host") + ":" + viperCfg.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8080"
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, reg, logger, readyCheck, authHandler, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("RouteFleet server ready", zap.String("addr", addr))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("RouteFleet server stopped")
}
