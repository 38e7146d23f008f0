package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("ipc: not connected")
	ErrDaemonNotRunning = errors.New("ipc: daemon is not running")
)

// Client is a connection to a bridge over the IPC socket. Writes are safe
// for concurrent use; Receive must be called from one goroutine.
type Client struct {
	conn      net.Conn
	writeMu   sync.Mutex
	nextReqID atomic.Uint32
	closed    atomic.Bool
}

// Dial connects to the socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) write(m *Message) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return m.Write(c.conn)
}

// Send sends one protocol message and returns its request ID. Outbound
// frames caused by it carry the same ID.
func (c *Client) Send(text string) (uint32, error) {
	id := c.nextReqID.Add(1)
	return id, c.write(NewTextMessage(MsgCommand, id, text))
}

// RequestSnapshot asks for the current context. The reply arrives as an
// outbound frame, or an error frame while the engine is not ready.
func (c *Client) RequestSnapshot() (uint32, error) {
	id := c.nextReqID.Add(1)
	return id, c.write(NewMessage(MsgSnapshot, id, nil))
}

// Ping sends a ping frame.
func (c *Client) Ping() (uint32, error) {
	id := c.nextReqID.Add(1)
	return id, c.write(NewMessage(MsgPing, id, nil))
}

// Receive reads the next frame. Server pings are answered and skipped.
func (c *Client) Receive(ctx context.Context) (*Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	for {
		m, err := ReadMessage(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if m.Header.Type == MsgPing {
			if err := c.write(NewMessage(MsgPong, m.Header.RequestID, nil)); err != nil {
				return nil, err
			}
			continue
		}
		return m, nil
	}
}

// ReceiveText waits for the next outbound message. Error frames are
// returned as *ErrorResponse.
func (c *Client) ReceiveText(ctx context.Context) (string, error) {
	for {
		m, err := c.Receive(ctx)
		if err != nil {
			return "", err
		}
		switch m.Header.Type {
		case MsgOutbound:
			return m.Text(), nil
		case MsgError:
			return "", DecodeError(m)
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
