// chewbridged serves bopomofo composition bridges over a Unix socket, a
// WebSocket endpoint and the D-Bus session bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"chewbridge/internal/config"
	"chewbridge/internal/logging"
	"chewbridge/internal/phonetic"
	"chewbridge/internal/store"
)

// Version is set at build time.
var Version = "dev"

const statusInterval = 5 * time.Minute

type options struct {
	configPath string
	logLevel   string
	wsAddr     string
	socketPath string
	dbus       bool
	initConfig bool
	check      bool
	version    bool
	help       bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chewbridged: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("chewbridged", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: "+config.ConfigPath()+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&opts.wsAddr, "ws", "", `WebSocket listen address; "off" disables it`)
	fs.StringVar(&opts.socketPath, "socket", "", `Unix socket path; "off" disables it`)
	fs.BoolVar(&opts.dbus, "dbus", false, "export the bridge on the D-Bus session bus")
	fs.BoolVar(&opts.initConfig, "init", false, "write the default config file if it does not exist")
	fs.BoolVar(&opts.check, "check", false, "validate the configuration and exit")
	fs.BoolVarP(&opts.version, "version", "v", false, "print the version and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "show help")
	return fs
}

// overrides returns a function applying the flags that were set.
func overrides(fs *pflag.FlagSet, opts *options) func(*config.Config) {
	return func(cfg *config.Config) {
		if fs.Changed("log-level") {
			cfg.Logging.Level = opts.logLevel
		}
		if fs.Changed("ws") {
			cfg.Server.WebSocketAddr = offToEmpty(opts.wsAddr)
		}
		if fs.Changed("socket") {
			cfg.Server.SocketPath = offToEmpty(opts.socketPath)
		}
		if fs.Changed("dbus") {
			cfg.Server.DBus = opts.dbus
		}
	}
}

func offToEmpty(s string) string {
	if s == "off" {
		return ""
	}
	return s
}

func run(args []string) error {
	var opts options
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			usage(fs)
			return nil
		}
		return err
	}
	if opts.help {
		usage(fs)
		return nil
	}
	if opts.version {
		fmt.Printf("chewbridged %s\n", Version)
		return nil
	}

	path := opts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	if opts.initConfig {
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Wrote default configuration to %s\n", path)
		}
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	override := overrides(fs, &opts)
	effective := cfg.Clone()
	override(effective)
	if err := effective.Validate(); err != nil {
		return err
	}
	if opts.check {
		fmt.Printf("%s: ok\n", path)
		return checkUserPhrases(effective, os.Stdout)
	}

	logger, err := logging.New(effective.LoggerConfig())
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir:  logging.DefaultCrashDir(),
		Version:   Version,
		Component: "chewbridged",
		Logger:    logger.Logger,
	})
	logging.SetDefaultCrashHandler(crash)
	if err := crash.Prune(30 * 24 * time.Hour); err != nil {
		logger.Warn("prune crash reports", "error", err)
	}
	defer logging.RecoverPanic(map[string]any{"stage": "main"})

	daemon := NewDaemon(cfg, logger, Version, override)
	if err := daemon.Start(); err != nil {
		return err
	}
	logger.Info("started", "version", Version, "config", path, "socket", daemon.SocketPath())

	loader.OnChange(func(_, cur *config.Config) { daemon.Reload(cur) })
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	}
	defer loader.Close()

	return wait(daemon, loader, logger)
}

// checkUserPhrases inspects the user phrase database without migrating it.
func checkUserPhrases(cfg *config.Config, out io.Writer) error {
	path := phonetic.UserPhrasePath(cfg.Storage.UserPhrasePath, cfg.Paths())
	if path == "" {
		return nil
	}
	status, err := store.Inspect(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "%s: not created yet\n", path)
		return nil
	case err != nil:
		return fmt.Errorf("user phrases %s: %w", path, err)
	}
	fmt.Fprintf(out, "%s: schema v%d/%d", path, status.CurrentVersion, status.LatestVersion)
	if n := len(status.Pending); n > 0 {
		fmt.Fprintf(out, ", %d migration(s) pending", n)
	}
	fmt.Fprintln(out)
	return nil
}

func wait(daemon *Daemon, loader *config.Loader, logger *logging.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := logger.Rotate(); err != nil {
					logger.Warn("rotate log file", "error", err)
				}
				logger.Info("reloading configuration")
				loader.Reload()
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			return daemon.Stop()

		case err := <-loader.Errors():
			logger.Warn("config reload failed", "error", err)

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			daemon.Status(ctx)
			cancel()
		}
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chewbridged - bopomofo composition bridge daemon

Each client connection gets its own engine. Clients send key: and layout:
messages and receive debug:, context: and layout: messages back.

Usage: chewbridged [flags]

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
