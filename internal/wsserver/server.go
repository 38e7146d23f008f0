// Package wsserver serves bridge sessions over WebSocket. Each connection
// gets its own bridge; text frames are inbound protocol messages and every
// posted message goes back as a text frame.
package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chewbridge/internal/bridge"
	"chewbridge/internal/health"
	"chewbridge/internal/logging"
	"chewbridge/internal/metrics"
	"chewbridge/internal/protocol"
)

const (
	defaultMaxMessageSize = 64 << 10
	defaultOutboxSize     = 64
	defaultWriteTimeout   = 10 * time.Second
)

// Config configures the WebSocket server.
type Config struct {
	Addr           string
	Path           string
	AllowedOrigins []string // loopback origins are always allowed
	MaxConnections int
	MaxMessageSize int64
	OutboxSize     int
	WriteTimeout   time.Duration
	// PingInterval enables keepalive pings. A peer that does not answer
	// within twice the interval is dropped.
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithHealth mounts the checker's /healthz, /readyz and /health routes.
func WithHealth(c *health.Checker) Option {
	return func(s *Server) { s.health = c }
}

// WithMetrics serves the registry at /metrics.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Server) { s.metrics = r }
}

// Server is a gin engine with a WebSocket endpoint for bridge sessions.
type Server struct {
	cfg      Config
	opener   bridge.Opener
	logger   *slog.Logger
	health   *health.Checker
	metrics  *metrics.Registry
	upgrader websocket.Upgrader
	router   *gin.Engine

	mu      sync.RWMutex
	conns   map[string]*conn
	httpSrv *http.Server
	running atomic.Bool
}

// New builds the server and its routes. It does not listen yet.
func New(cfg Config, opener bridge.Opener, opts ...Option) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		opener: opener,
		logger: logger.With("component", "wsserver"),
		conns:  make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET(cfg.Path, s.handleUpgrade)
	r.GET("/schema/context", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/schema+json", protocol.ContextSchema())
	})
	if s.health != nil {
		s.health.Routes(r)
	}
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.HTTPHandler()))
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		ln.Close()
		return errors.New("wsserver: already running")
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Shutdown stops accepting connections and closes the open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	srv := s.httpSrv
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	// Hijacked connections are not tracked by http.Server.
	for _, c := range open {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Ping reports whether the server is serving.
func (s *Server) Ping(context.Context) error {
	if !s.running.Load() {
		return errors.New("websocket server stopped")
	}
	return nil
}

// ConnCount returns the number of open WebSocket connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// checkOrigin accepts requests without an Origin header, loopback origins
// and the configured ones.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err == nil {
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	s.logger.Warn("rejected origin", "origin", origin)
	return false
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) handleUpgrade(c *gin.Context) {
	s.mu.RLock()
	count := len(s.conns)
	s.mu.RUnlock()
	if s.cfg.MaxConnections > 0 && count >= s.cfg.MaxConnections {
		s.logger.Warn("connection rejected", "reason", "too many connections", "max", s.cfg.MaxConnections)
		c.String(http.StatusServiceUnavailable, "too many connections")
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	id := uuid.NewString()
	cn := &conn{
		id:      id,
		ws:      ws,
		server:  s,
		outbox:  make(chan []byte, s.cfg.OutboxSize),
		closeCh: make(chan struct{}),
		logger:  logging.FromContext(logging.ContextWithConnID(c.Request.Context(), id), s.logger),
	}

	session, err := s.opener.Open(bridge.PosterFunc(cn.post))
	if err != nil {
		cn.logger.Warn("open session failed", "error", err)
		cn.closeWith(websocket.CloseTryAgainLater, err.Error())
		return
	}
	cn.session = session

	s.mu.Lock()
	s.conns[id] = cn
	s.mu.Unlock()
	cn.logger.Info("client connected", "remote", c.Request.RemoteAddr, "session", session.ID())

	go func() {
		if err := cn.writeLoop(); err != nil {
			cn.logger.Warn("write loop failed", "error", err)
			cn.closeNow()
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		cn.closeNow()
		if err := session.Close(); err != nil {
			cn.logger.Warn("close session", "error", err)
		}
		cn.logger.Info("client disconnected")
	}()
	cn.readLoop()
}
