// Package config loads, validates and watches the chewbridge daemon
// configuration.
//
// A configuration file may be TOML, YAML or JSON with comments. Values from
// the file are layered over DefaultConfig, then CHEWBRIDGE_* environment
// variables are applied on top.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"chewbridge/internal/engine"
	"chewbridge/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config is the daemon configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version" env:"VERSION"`

	Engine  EngineConfig  `toml:"engine" json:"engine" yaml:"engine" envPrefix:"ENGINE_"`
	Server  ServerConfig  `toml:"server" json:"server" yaml:"server" envPrefix:"SERVER_"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// EngineConfig configures every engine the daemon creates.
type EngineConfig struct {
	// DataDir holds the system dictionary.
	DataDir string `toml:"data_dir" json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	// UserDataDir holds learned phrases. Empty disables learning.
	UserDataDir string `toml:"user_data_dir" json:"user_data_dir" yaml:"user_data_dir" env:"USER_DATA_DIR"`

	Layout             string `toml:"layout" json:"layout" yaml:"layout" env:"LAYOUT"`
	MaxSymbolLen       int    `toml:"max_symbol_len" json:"max_symbol_len" yaml:"max_symbol_len" env:"MAX_SYMBOL_LEN"`
	AddPhraseDirection int    `toml:"add_phrase_direction" json:"add_phrase_direction" yaml:"add_phrase_direction" env:"ADD_PHRASE_DIRECTION"`
	SpaceAsSelection   bool   `toml:"space_as_selection" json:"space_as_selection" yaml:"space_as_selection" env:"SPACE_AS_SELECTION"`
	SelectionKeys      string `toml:"selection_keys" json:"selection_keys" yaml:"selection_keys" env:"SELECTION_KEYS"`
}

// ServerConfig configures the transports.
type ServerConfig struct {
	// WebSocketAddr is the listen address of the WebSocket server. Empty
	// disables it.
	WebSocketAddr string `toml:"websocket_addr" json:"websocket_addr" yaml:"websocket_addr" env:"WEBSOCKET_ADDR"`
	WebSocketPath string `toml:"websocket_path" json:"websocket_path" yaml:"websocket_path" env:"WEBSOCKET_PATH"`

	// SocketPath is the Unix socket path. Empty disables it.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path" env:"SOCKET_PATH"`

	// DBus exports a bridge on the session bus.
	DBus bool `toml:"dbus" json:"dbus" yaml:"dbus" env:"DBUS"`

	// AllowedOrigins are accepted in addition to loopback origins.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`

	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections" env:"MAX_CONNECTIONS"`

	// ReadTimeoutSec closes idle connections. Zero means no timeout.
	ReadTimeoutSec int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec" env:"READ_TIMEOUT_SEC"`
}

// StorageConfig configures the user phrase database.
type StorageConfig struct {
	// UserPhrasePath overrides the database location inside UserDataDir.
	UserPhrasePath string `toml:"user_phrase_path" json:"user_phrase_path" yaml:"user_phrase_path" env:"USER_PHRASE_PATH"`
	BusyTimeoutMs  int    `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level" env:"LEVEL"`
	Format     string `toml:"format" json:"format" yaml:"format" env:"FORMAT"`
	Output     string `toml:"output" json:"output" yaml:"output" env:"OUTPUT"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path" env:"FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress" env:"COMPRESS"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	startup := engine.DefaultStartupOptions()
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			DataDir:            defaultDataDir(),
			UserDataDir:        defaultUserDataDir(),
			Layout:             startup.Layout,
			MaxSymbolLen:       startup.MaxSymbolLen,
			AddPhraseDirection: startup.AddPhraseDirection,
			SpaceAsSelection:   startup.SpaceAsSelection,
			SelectionKeys:      string(startup.SelectionKeys),
		},
		Server: ServerConfig{
			WebSocketAddr:  "127.0.0.1:8765",
			WebSocketPath:  "/ws",
			SocketPath:     defaultSocketPath(),
			MaxConnections: 16,
			ReadTimeoutSec: 0,
		},
		Storage: StorageConfig{
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  20,
			MaxBackups: 5,
			Compress:   true,
		},
	}
}

// ConfigDir returns the platform configuration directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "chewbridge")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "chewbridge")
	default:
		dir := os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, ".config")
		}
		return filepath.Join(dir, "chewbridge")
	}
}

// ConfigPath returns the default configuration file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

func defaultDataDir() string {
	if runtime.GOOS == "linux" {
		return "/usr/share/chewbridge"
	}
	return filepath.Join(defaultUserDataDir(), "data")
}

func defaultUserDataDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return ConfigDir()
	default:
		dir := os.Getenv("XDG_DATA_HOME")
		if dir == "" {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dir, "chewbridge")
	}
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "chewbridge.sock")
	}
	return filepath.Join(os.TempDir(), "chewbridge-"+currentUser()+".sock")
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}

// StartupOptions converts the engine section for engine.ApplyStartup.
func (c *Config) StartupOptions() engine.StartupOptions {
	return engine.StartupOptions{
		Layout:             c.Engine.Layout,
		MaxSymbolLen:       c.Engine.MaxSymbolLen,
		AddPhraseDirection: c.Engine.AddPhraseDirection,
		SpaceAsSelection:   c.Engine.SpaceAsSelection,
		SelectionKeys:      []rune(c.Engine.SelectionKeys),
	}
}

// Paths returns the engine data directories.
func (c *Config) Paths() engine.Paths {
	return engine.Paths{DataDir: c.Engine.DataDir, UserDataDir: c.Engine.UserDataDir}
}

// BusyTimeout returns the store busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the idle connection timeout, or zero.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

// LoggerConfig converts the logging section. It assumes c has been
// validated.
func (c *Config) LoggerConfig() *logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format, _ := logging.ParseFormat(c.Logging.Format)
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     30,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  "chewbridged",
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &out
}
