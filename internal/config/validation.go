package config

import (
	"fmt"
	"net"
	"strings"
	"unicode/utf8"

	"chewbridge/internal/engine"
	"chewbridge/internal/logging"
)

// ValidationError is one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field is among the errors.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the whole configuration and returns ValidationErrors
// listing every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	e := &c.Engine
	if e.DataDir == "" {
		add("engine.data_dir", "is required")
	}
	if !engine.ParseLayout(e.Layout).Valid() {
		add("engine.layout", "unknown layout %q", e.Layout)
	}
	if e.MaxSymbolLen < 1 || e.MaxSymbolLen > 39 {
		add("engine.max_symbol_len", "must be between 1 and 39, got %d", e.MaxSymbolLen)
	}
	if e.AddPhraseDirection != 0 && e.AddPhraseDirection != 1 {
		add("engine.add_phrase_direction", "must be 0 or 1, got %d", e.AddPhraseDirection)
	}
	if n := utf8.RuneCountInString(e.SelectionKeys); n == 0 || n > engine.MaxSelectionKeys {
		add("engine.selection_keys", "must have 1 to %d keys, got %d", engine.MaxSelectionKeys, n)
	} else if dup := duplicateRune(e.SelectionKeys); dup != 0 {
		add("engine.selection_keys", "key %q appears twice", dup)
	}

	s := &c.Server
	if s.WebSocketAddr != "" {
		if _, _, err := net.SplitHostPort(s.WebSocketAddr); err != nil {
			add("server.websocket_addr", "%v", err)
		}
		if !strings.HasPrefix(s.WebSocketPath, "/") {
			add("server.websocket_path", "must start with /")
		}
	}
	if s.MaxConnections < 1 {
		add("server.max_connections", "must be positive, got %d", s.MaxConnections)
	}
	if s.ReadTimeoutSec < 0 {
		add("server.read_timeout_sec", "must not be negative")
	}

	if c.Storage.BusyTimeoutMs < 0 {
		add("storage.busy_timeout_ms", "must not be negative")
	}

	l := &c.Logging
	if _, err := logging.ParseLevel(l.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		add("logging.format", "%v", err)
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			add("logging.file_path", "is required for output %q", l.Output)
		}
		if l.MaxSizeMB < 1 {
			add("logging.max_size_mb", "must be positive, got %d", l.MaxSizeMB)
		}
	default:
		add("logging.output", "unknown output %q", l.Output)
	}
	if l.MaxBackups < 0 {
		add("logging.max_backups", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func duplicateRune(s string) rune {
	seen := make(map[rune]bool)
	for _, r := range s {
		if seen[r] {
			return r
		}
		seen[r] = true
	}
	return 0
}
