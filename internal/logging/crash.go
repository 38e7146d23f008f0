package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version,omitempty"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandlerConfig configures a CrashHandler.
type CrashHandlerConfig struct {
	// CrashDir receives one JSON file per report. Empty disables dumps.
	CrashDir  string
	Version   string
	Component string
	Logger    *slog.Logger

	// OnCrash runs after the report has been written.
	OnCrash func(CrashReport)
}

// CrashHandler turns panics into logged, persisted reports.
type CrashHandler struct {
	mu      sync.Mutex
	dir     string
	version string
	comp    string
	logger  *slog.Logger
	onCrash func(CrashReport)
	seq     int
}

// DefaultCrashDir returns the platform crash report directory.
func DefaultCrashDir() string {
	return filepath.Join(stateDir(), "crashes")
}

// NewCrashHandler creates a handler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{
		dir:     cfg.CrashDir,
		version: cfg.Version,
		comp:    cfg.Component,
		logger:  logger,
		onCrash: cfg.OnCrash,
	}
}

var (
	defaultCrash   *CrashHandler
	defaultCrashMu sync.Mutex
)

// DefaultCrashHandler returns the process crash handler. Until one is set it
// only logs.
func DefaultCrashHandler() *CrashHandler {
	defaultCrashMu.Lock()
	defer defaultCrashMu.Unlock()
	if defaultCrash == nil {
		defaultCrash = NewCrashHandler(CrashHandlerConfig{Component: "chewbridge"})
	}
	return defaultCrash
}

// SetDefaultCrashHandler installs h as the process crash handler.
func SetDefaultCrashHandler(h *CrashHandler) {
	defaultCrashMu.Lock()
	defer defaultCrashMu.Unlock()
	defaultCrash = h
}

// Recover runs fn and reports a panic instead of propagating it. It
// reports whether fn panicked.
func (h *CrashHandler) Recover(ctx map[string]any, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r, ctx)
		}
	}()
	fn()
	return false
}

// HandlePanic records a recovered panic value.
func (h *CrashHandler) HandlePanic(value any, ctx map[string]any) CrashReport {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(value),
		StackTrace:   string(debug.Stack()),
		Component:    h.comp,
		Context:      ctx,
	}

	h.mu.Lock()
	path, err := h.write(report)
	h.mu.Unlock()

	attrs := []any{"panic", report.PanicValue}
	if path != "" {
		attrs = append(attrs, "report", path)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	h.logger.Error("recovered panic", attrs...)

	if h.onCrash != nil {
		h.onCrash(report)
	}
	return report
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if h.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	h.seq++
	name := fmt.Sprintf("crash-%s-%s-%d.json", report.Component, report.Timestamp.Format("20060102-150405"), h.seq)
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	if h.dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var r CrashReport
		if json.Unmarshal(data, &r) == nil {
			reports = append(reports, r)
		}
	}
	return reports, nil
}

// Prune removes reports older than maxAge.
func (h *CrashHandler) Prune(maxAge time.Duration) error {
	if h.dir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(f)
		}
	}
	return nil
}

// RecoverPanic reports a panic through the default crash handler.
//
//	defer logging.RecoverPanic(map[string]any{"conn": id})
func RecoverPanic(ctx map[string]any) {
	if r := recover(); r != nil {
		DefaultCrashHandler().HandlePanic(r, ctx)
	}
}
