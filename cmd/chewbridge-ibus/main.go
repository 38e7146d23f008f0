//go:build linux

// chewbridge-ibus is the Linux IBus input method engine.
//
// It runs one composition bridge in-process and mirrors its state into the
// focused client through the IBus engine signals.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/chewbridge-ibus
//  2. Run chewbridge-ibus --install
//  3. Restart IBus: ibus restart
//  4. Enable via ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"chewbridge/internal/bridge"
	"chewbridge/internal/config"
	"chewbridge/internal/logging"
	"chewbridge/internal/metrics"
	"chewbridge/internal/phonetic"
)

const (
	busName       = "org.chewbridge.IBus"
	componentName = "org.chewbridge.ibus"
	componentFile = "chewbridge.xml"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chewbridge-ibus: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("chewbridge-ibus", pflag.ContinueOnError)
	install := fs.Bool("install", false, "install the IBus component")
	uninstall := fs.Bool("uninstall", false, "uninstall the IBus component")
	configPath := fs.StringP("config", "c", "", "path to config file (default: "+config.ConfigPath()+")")
	_ = fs.Bool("ibus", false, "set by ibus-daemon when it launches the engine")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *install {
		path, err := installComponent(componentDir())
		if err != nil {
			return fmt.Errorf("install: %w", err)
		}
		fmt.Printf("Installed %s. Run 'ibus restart' to load.\n", path)
		return nil
	}
	if *uninstall {
		if err := uninstallComponent(componentDir()); err != nil {
			return fmt.Errorf("uninstall: %w", err)
		}
		fmt.Println("Uninstalled.")
		return nil
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = "file"
	logCfg.FilePath = filepath.Join(filepath.Dir(logging.DefaultLogPath()), "ibus.log")
	logCfg.Component = "chewbridge-ibus"
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	logging.SetDefaultCrashHandler(logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir:  logging.DefaultCrashDir(),
		Version:   Version,
		Component: "chewbridge-ibus",
		Logger:    logger.Logger,
	}))

	manager := bridge.NewManager(bridge.ManagerConfig{
		Factory: phonetic.NewFactory(phonetic.FactoryConfig{
			Logger:         logger.Logger,
			UserPhrasePath: cfg.Storage.UserPhrasePath,
			BusyTimeout:    cfg.BusyTimeout(),
		}),
		Paths:   cfg.Paths(),
		Startup: cfg.StartupOptions(),
		Logger:  logger.Logger,
		Metrics: metrics.NewBridgeMetrics(nil),
	})
	defer manager.CloseAll()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	defer conn.Close()

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("bus name already taken")
	}

	emit := func(member string, args ...any) error {
		return conn.Emit(enginePath, engineInterface+"."+member, args...)
	}
	eng, err := newIBusEngine(manager, emit, logger.Logger)
	if err != nil {
		return err
	}
	if err := conn.Export(eng, enginePath, engineInterface); err != nil {
		return fmt.Errorf("export engine: %w", err)
	}

	logger.Info("engine started", "path", enginePath, "layout", cfg.Engine.Layout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")
	return eng.Close()
}

func componentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ibus", "component")
	}
	return filepath.Join(home, ".local", "share", "ibus", "component")
}

func componentXML(binPath string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>` + componentName + `</name>
    <description>Chewbridge bopomofo input</description>
    <exec>` + binPath + ` --ibus</exec>
    <version>` + Version + `</version>
    <author>Chewbridge</author>
    <license>LGPL-2.1</license>
    <textdomain>chewbridge</textdomain>
    <engines>
        <engine>
            <name>chewbridge</name>
            <language>zh_TW</language>
            <license>LGPL-2.1</license>
            <author>Chewbridge</author>
            <layout>us</layout>
            <longname>Chewbridge</longname>
            <description>Bopomofo phonetic input</description>
            <rank>50</rank>
            <symbol>酷</symbol>
        </engine>
    </engines>
</component>`
}

func installComponent(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	binPath, err := os.Executable()
	if err != nil {
		binPath = "/usr/local/bin/chewbridge-ibus"
	}
	path := filepath.Join(dir, componentFile)
	return path, os.WriteFile(path, []byte(componentXML(binPath)), 0o644)
}

func uninstallComponent(dir string) error {
	return os.Remove(filepath.Join(dir, componentFile))
}
