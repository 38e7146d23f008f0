package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"chewbridge/internal/engine"
	"chewbridge/internal/metrics"
)

// ErrTooManySessions is returned by Manager.Open when the session limit has
// been reached.
var ErrTooManySessions = errors.New("bridge: too many sessions")

// ErrManagerClosed is returned by Manager.Open after CloseAll.
var ErrManagerClosed = errors.New("bridge: manager closed")

// Session is the host-facing side of a bridge as seen by a transport.
type Session interface {
	ID() string
	HandleMessage(msg any)
	Close() error
}

// Opener creates one session per connected host.
type Opener interface {
	Open(poster Poster) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(poster Poster) (Session, error)

func (f OpenerFunc) Open(poster Poster) (Session, error) {
	return f(poster)
}

// ManagerConfig holds what every bridge opened by a Manager shares.
type ManagerConfig struct {
	Factory     engine.Factory
	Paths       engine.Paths
	Startup     engine.StartupOptions
	Logger      *slog.Logger
	Metrics     *metrics.BridgeMetrics
	MaxSessions int // zero means unlimited
}

// Manager opens bridges for transports and tracks the live ones.
type Manager struct {
	mu       sync.Mutex
	cfg      ManagerConfig
	sessions map[string]*managedBridge
	closed   bool
}

// NewManager returns a Manager. The factory is checked when a session is
// opened.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*managedBridge),
	}
}

// Open starts a new bridge posting to poster.
func (m *Manager) Open(poster Poster) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManySessions, m.cfg.MaxSessions)
	}

	startup := m.cfg.Startup
	b, err := New(Config{
		Factory: m.cfg.Factory,
		Poster:  poster,
		Paths:   m.cfg.Paths,
		Startup: &startup,
		Logger:  m.cfg.Logger,
		Metrics: m.cfg.Metrics,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	s := &managedBridge{Bridge: b, m: m}
	m.sessions[b.ID()] = s
	return s, nil
}

// SetStartup replaces the options applied to bridges opened from now on.
// Live bridges keep their engines as they are.
func (m *Manager) SetStartup(o engine.StartupOptions) {
	m.mu.Lock()
	m.cfg.Startup = o
	m.mu.Unlock()
}

// Startup returns the options new bridges will be opened with.
func (m *Manager) Startup() engine.StartupOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Startup
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns the bridge with the given ID.
func (m *Manager) Get(id string) (*Bridge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Bridge, true
}

// Each calls fn for every open bridge, without the manager lock held.
func (m *Manager) Each(fn func(*Bridge)) {
	m.mu.Lock()
	open := make([]*Bridge, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s.Bridge)
	}
	m.mu.Unlock()
	for _, b := range open {
		fn(b)
	}
}

// CloseAll closes every open session and refuses new ones.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	m.closed = true
	open := make([]*managedBridge, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

type managedBridge struct {
	*Bridge
	m *Manager
}

func (s *managedBridge) Close() error {
	s.m.remove(s.ID())
	return s.Bridge.Close()
}
