package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"chewbridge/internal/bridge"
	"chewbridge/internal/config"
	"chewbridge/internal/dbusbridge"
	"chewbridge/internal/health"
	"chewbridge/internal/ipc"
	"chewbridge/internal/logging"
	"chewbridge/internal/metrics"
	"chewbridge/internal/phonetic"
	"chewbridge/internal/wsserver"
)

const shutdownTimeout = 5 * time.Second

// Daemon owns the session manager and the transports serving it.
type Daemon struct {
	version  string
	logger   *logging.Logger
	override func(*config.Config)

	cfg      *config.Config
	registry *metrics.Registry
	checker  *health.Checker
	manager  *bridge.Manager

	ipc     *ipc.Server
	ws      *wsserver.Server
	dbus    *dbusbridge.Service
	busConn *dbus.Conn
}

// NewDaemon creates a daemon for cfg. override, when set, is applied to cfg
// and to every reloaded configuration so that command-line flags keep
// precedence over the file.
func NewDaemon(cfg *config.Config, logger *logging.Logger, version string, override func(*config.Config)) *Daemon {
	if override == nil {
		override = func(*config.Config) {}
	}
	cfg = cfg.Clone()
	override(cfg)
	return &Daemon{
		version:  version,
		logger:   logger,
		override: override,
		cfg:      cfg,
		registry: metrics.Default(),
		checker:  health.NewChecker(),
	}
}

// Start opens the session manager and every configured transport. A
// transport that fails to start stops the ones already running.
func (d *Daemon) Start() error {
	cfg := d.cfg
	d.manager = bridge.NewManager(bridge.ManagerConfig{
		Factory: phonetic.NewFactory(phonetic.FactoryConfig{
			Logger:         d.logger.WithComponent("engine").Logger,
			UserPhrasePath: cfg.Storage.UserPhrasePath,
			BusyTimeout:    cfg.BusyTimeout(),
		}),
		Paths:       cfg.Paths(),
		Startup:     cfg.StartupOptions(),
		Logger:      d.logger.WithComponent("bridge").Logger,
		Metrics:     metrics.NewBridgeMetrics(d.registry),
		MaxSessions: cfg.Server.MaxConnections,
	})

	d.checker.RegisterFunc("dictionary", true,
		health.FileCheck(filepath.Join(cfg.Engine.DataDir, phonetic.DictionaryFile)))
	if limit := cfg.Server.MaxConnections; limit > 0 {
		d.checker.RegisterFunc("sessions", false, health.ThresholdCheck("sessions", func() float64 {
			return float64(d.manager.Len())
		}, float64(limit)))
	}

	if err := d.startTransports(); err != nil {
		_ = d.Stop()
		return err
	}
	if d.ipc == nil && d.ws == nil && d.dbus == nil {
		_ = d.Stop()
		return errors.New("no transport enabled")
	}

	d.checker.SetReady(true)
	d.logger.Debug("health checks registered", "checks", d.checker.Names())
	return nil
}

func (d *Daemon) startTransports() error {
	cfg := d.cfg

	if cfg.Server.SocketPath != "" {
		sc := ipc.DefaultServerConfig(cfg.Server.SocketPath)
		if rt := cfg.ReadTimeout(); rt > 0 {
			sc.ReadTimeout = rt
		}
		sc.MaxConnections = cfg.Server.MaxConnections
		sc.Logger = d.logger.Logger
		server, err := ipc.NewServer(sc, d.manager)
		if err != nil {
			return fmt.Errorf("create ipc server: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("start ipc server: %w", err)
		}
		d.ipc = server
		d.checker.RegisterFunc("socket", true, health.PingCheck("socket", server.Ping))
	}

	if cfg.Server.WebSocketAddr != "" {
		server := wsserver.New(wsserver.Config{
			Addr:           cfg.Server.WebSocketAddr,
			Path:           cfg.Server.WebSocketPath,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxConnections: cfg.Server.MaxConnections,
			PingInterval:   cfg.ReadTimeout() / 2,
			Logger:         d.logger.Logger,
		}, d.manager, wsserver.WithHealth(d.checker), wsserver.WithMetrics(d.registry))
		if err := server.Start(); err != nil {
			return fmt.Errorf("start websocket server: %w", err)
		}
		d.ws = server
		d.checker.RegisterFunc("websocket", true, health.PingCheck("websocket", server.Ping))
	}

	if cfg.Server.DBus {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return fmt.Errorf("connect session bus: %w", err)
		}
		d.busConn = conn
		if err := dbusbridge.RequestName(conn); err != nil {
			return err
		}
		svc := dbusbridge.NewService(d.manager, d.logger.Logger)
		if err := svc.Export(conn); err != nil {
			return err
		}
		d.dbus = svc
		d.checker.RegisterFunc("dbus", false, health.PingCheck("session bus", func(ctx context.Context) error {
			return conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.Peer.Ping", 0).Err
		}))
	}
	return nil
}

// Stop shuts the transports down, then closes every session.
func (d *Daemon) Stop() error {
	d.checker.SetReady(false)

	var errs []error
	if d.ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.ws.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("websocket: %w", err))
		}
		cancel()
		d.checker.Unregister("websocket")
	}
	if d.ipc != nil {
		if err := d.ipc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("ipc: %w", err))
		}
		d.checker.Unregister("socket")
	}
	if d.dbus != nil {
		if err := d.dbus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dbus: %w", err))
		}
		d.checker.Unregister("dbus")
	}
	if d.busConn != nil {
		_ = d.busConn.Close()
	}
	if d.manager != nil {
		if err := d.manager.CloseAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload applies a changed configuration. Engine options and the log level
// take effect at once; engine options reach sessions opened afterwards.
// Everything else needs a restart.
func (d *Daemon) Reload(cur *config.Config) {
	cur = cur.Clone()
	d.override(cur)
	old := d.cfg

	if old.Logging.Level != cur.Logging.Level {
		if level, err := logging.ParseLevel(cur.Logging.Level); err == nil {
			d.logger.SetLevel(level)
			d.logger.Info("log level changed", "level", cur.Logging.Level)
		}
	}

	if engineOptionsChanged(old.Engine, cur.Engine) {
		d.manager.SetStartup(cur.StartupOptions())
		d.logger.Info("engine options changed", "layout", cur.Engine.Layout, "sessions", d.manager.Len())
	}

	var restart []string
	if old.Engine.DataDir != cur.Engine.DataDir || old.Engine.UserDataDir != cur.Engine.UserDataDir {
		restart = append(restart, "engine paths")
	}
	if !reflect.DeepEqual(old.Server, cur.Server) {
		restart = append(restart, "server")
	}
	if old.Storage != cur.Storage {
		restart = append(restart, "storage")
	}
	logOutput := old.Logging
	logOutput.Level = cur.Logging.Level
	if logOutput != cur.Logging {
		restart = append(restart, "logging")
	}
	if len(restart) > 0 {
		d.logger.Warn("restart required to apply changes", "sections", restart)
	}

	d.cfg = cur
}

func engineOptionsChanged(old, cur config.EngineConfig) bool {
	old.DataDir, old.UserDataDir = "", ""
	cur.DataDir, cur.UserDataDir = "", ""
	return old != cur
}

// Status logs the session count and overall health.
func (d *Daemon) Status(ctx context.Context) {
	d.logger.Info("status", d.statusAttrs(ctx)...)
}

// statusCounters are the registry counters the status line reports.
var statusCounters = []string{
	"messages_handled_total",
	"messages_dropped_total",
	"messages_unrecognized_total",
	"engine_init_failures_total",
}

func (d *Daemon) statusAttrs(ctx context.Context) []any {
	report := d.checker.Report(ctx)
	ready := 0
	d.manager.Each(func(b *bridge.Bridge) {
		if b.State() == bridge.StateReady {
			ready++
		}
	})
	attrs := []any{"sessions", d.manager.Len(), "ready_sessions", ready, "health", report.Status}
	if d.ipc != nil {
		attrs = append(attrs, "socket_conns", d.ipc.ConnCount())
	}
	if d.ws != nil {
		attrs = append(attrs, "ws_conns", d.ws.ConnCount())
	}
	if d.dbus != nil {
		attrs = append(attrs, "dbus_peers", d.dbus.SessionCount())
	}

	snap := d.registry.Snapshot()
	for _, name := range statusCounters {
		for key, v := range snap {
			if key == name || strings.HasSuffix(key, "_"+name) {
				attrs = append(attrs, strings.TrimSuffix(name, "_total"), int64(v))
				break
			}
		}
	}
	return attrs
}

// SocketPath returns the Unix socket path, or "" when disabled.
func (d *Daemon) SocketPath() string {
	if d.ipc == nil {
		return ""
	}
	return d.ipc.SocketPath()
}
