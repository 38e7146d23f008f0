package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chewbridge/internal/bridge"
	"chewbridge/internal/logging"
	"chewbridge/internal/protocol"
)

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string
	ReadTimeout    time.Duration // idle time before the server pings; zero disables
	WriteTimeout   time.Duration
	MaxConnections int
	// SameUserOnly refuses peers whose uid differs from the server's.
	SameUserOnly bool
	Logger       *slog.Logger
}

// DefaultServerConfig returns the defaults for a socket at path.
func DefaultServerConfig(path string) ServerConfig {
	return ServerConfig{
		SocketPath:     path,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxConnections: 16,
		SameUserOnly:   true,
	}
}

// Server accepts connections on a Unix socket and opens one bridge session
// per connection.
type Server struct {
	cfg    ServerConfig
	opener bridge.Opener
	logger *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	conns    map[string]*Conn

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// Conn is one connected client.
type Conn struct {
	ID          string
	ConnectedAt time.Time
	Peer        *PeerCredentials

	conn    net.Conn
	server  *Server
	session bridge.Session
	logger  *slog.Logger

	writeMu sync.Mutex
	// request is the ID of the command being handled, stamped on the
	// outbound frames it produces.
	request atomic.Uint32
	closed  atomic.Bool

	// failed is set by the read loop when the session panicked.
	failed bool
}

// NewServer creates a server. Sessions are opened through opener.
func NewServer(cfg ServerConfig, opener bridge.Opener) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("ipc: socket path is required")
	}
	if opener == nil {
		return nil, errors.New("ipc: session opener is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		opener: opener,
		logger: logger.With("component", "ipc"),
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins listening for connections
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("socket %s is already in use", s.cfg.SocketPath)
	}
	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := SetSocketPermissions(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info("listening", "socket", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and every connection, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for connections to finish")
	}

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// ConnCount returns the number of connected clients
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Ping reports whether the server is accepting connections.
func (s *Server) Ping(context.Context) error {
	if !s.running.Load() {
		return errors.New("ipc server stopped")
	}
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.mu.RLock()
		count := len(s.conns)
		s.mu.RUnlock()
		if s.cfg.MaxConnections > 0 && count >= s.cfg.MaxConnections {
			s.refuse(nc, ErrCodeUnavailable, "too many connections")
			continue
		}

		s.wg.Add(1)
		go s.serve(nc)
	}
}

func (s *Server) refuse(nc net.Conn, code int, reason string) {
	s.logger.Warn("connection refused", "reason", reason)
	nc.SetWriteDeadline(time.Now().Add(time.Second))
	_ = NewErrorMessage(0, code, reason).Write(nc)
	nc.Close()
}

func (s *Server) serve(nc net.Conn) {
	defer s.wg.Done()

	c := &Conn{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        nc,
		server:      s,
	}
	c.logger = logging.FromContext(logging.ContextWithConnID(s.ctx, c.ID), s.logger)

	if peer, err := GetPeerCredentials(nc); err == nil {
		c.Peer = peer
		if s.cfg.SameUserOnly && peer.UID != os.Getuid() {
			s.refuse(nc, ErrCodeForbidden, fmt.Sprintf("peer uid %d not allowed", peer.UID))
			return
		}
	} else if s.cfg.SameUserOnly {
		c.logger.Debug("peer credentials unavailable", "error", err)
	}

	session, err := s.opener.Open(bridge.PosterFunc(c.post))
	if err != nil {
		code := ErrCodeInternal
		if errors.Is(err, bridge.ErrTooManySessions) || errors.Is(err, bridge.ErrManagerClosed) {
			code = ErrCodeUnavailable
		}
		s.refuse(nc, code, err.Error())
		return
	}
	c.session = session

	s.mu.Lock()
	s.conns[c.ID] = c
	s.mu.Unlock()
	c.logger.Info("client connected", "session", session.ID())

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.ID)
		s.mu.Unlock()
		c.close()
		if err := session.Close(); err != nil {
			c.logger.Warn("close session", "error", err)
		}
		c.logger.Info("client disconnected")
	}()

	c.readLoop()
}

func (c *Conn) readLoop() {
	idle := 0
	for {
		if t := c.server.cfg.ReadTimeout; t > 0 {
			c.conn.SetReadDeadline(time.Now().Add(t))
		}

		msg, err := ReadMessage(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && idle == 0 {
				idle++
				if c.send(NewMessage(MsgPing, 0, nil)) != nil {
					return
				}
				continue
			}
			c.logger.Debug("read failed", "error", err)
			if errors.Is(err, ErrBadMagic) || errors.Is(err, ErrBadVersion) || errors.Is(err, ErrPayloadTooLarge) {
				_ = c.send(NewErrorMessage(0, ErrCodeInvalidRequest, err.Error()))
			}
			return
		}
		idle = 0

		if reply := c.process(msg); reply != nil {
			if c.send(reply) != nil {
				return
			}
		}
		if c.failed {
			return
		}
	}
}

func (c *Conn) process(msg *Message) *Message {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil)

	case MsgPong:
		return nil

	case MsgCommand:
		c.request.Store(id)
		defer c.request.Store(0)
		var payload any = msg.Text()
		if msg.IsBinary() {
			payload = msg.Payload
		}
		crash := map[string]any{"conn_id": c.ID, "session": c.session.ID()}
		if logging.DefaultCrashHandler().Recover(crash, func() { c.session.HandleMessage(payload) }) {
			// The engine may be half-updated; drop the client.
			c.failed = true
			c.logger.Error("session panicked", "request_id", id)
			return NewErrorMessage(id, ErrCodeInternal, "session failed")
		}
		return nil

	case MsgSnapshot:
		snap, ok := c.session.(interface {
			Snapshot() (*protocol.Context, error)
		})
		if !ok {
			return NewErrorMessage(id, ErrCodeInvalidRequest, "snapshot not supported")
		}
		ctx, err := snap.Snapshot()
		if err != nil {
			return NewErrorMessage(id, ErrCodeUnavailable, err.Error())
		}
		text, err := protocol.EncodeContext(ctx)
		if err != nil {
			return NewErrorMessage(id, ErrCodeInternal, err.Error())
		}
		return NewTextMessage(MsgOutbound, id, text)

	default:
		return NewErrorMessage(id, ErrCodeInvalidRequest, "unexpected "+msg.Header.Type.String()+" frame")
	}
}

// post is the bridge poster of this connection.
func (c *Conn) post(text string) {
	if err := c.send(NewTextMessage(MsgOutbound, c.request.Load(), text)); err != nil {
		c.logger.Warn("post failed", "error", err)
		c.close()
	}
}

func (c *Conn) send(m *Message) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if t := c.server.cfg.WriteTimeout; t > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(t))
	}
	return m.Write(c.conn)
}

func (c *Conn) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
	}
}
