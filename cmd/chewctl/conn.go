package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"chewbridge/internal/ipc"
	"chewbridge/internal/protocol"
)

// conn is one bridge session on the daemon.
type conn interface {
	Send(text string) error
	// Next returns the next outbound message.
	Next(ctx context.Context) (string, error)
	Close() error
}

// socketConn talks to the daemon over its Unix socket.
type socketConn struct {
	c *ipc.Client
}

func dialSocket(ctx context.Context, path string) (*socketConn, error) {
	c, err := ipc.Dial(ctx, path)
	if err != nil {
		return nil, err
	}
	return &socketConn{c: c}, nil
}

func (s *socketConn) Send(text string) error {
	_, err := s.c.Send(text)
	return err
}

func (s *socketConn) Next(ctx context.Context) (string, error) {
	return s.c.ReceiveText(ctx)
}

func (s *socketConn) Close() error {
	return s.c.Close()
}

// waitReady polls snapshots until the session's engine is up. Messages sent
// earlier would be dropped.
func (s *socketConn) waitReady(ctx context.Context) error {
	for {
		if _, err := s.c.RequestSnapshot(); err != nil {
			return err
		}
		text, err := s.c.ReceiveText(ctx)
		if err == nil {
			if kind, _ := protocol.ParseOutbound(text); kind != protocol.KindContext {
				return fmt.Errorf("bridge: %s", text)
			}
			return nil
		}
		var resp *ipc.ErrorResponse
		if !errors.As(err, &resp) || resp.Code != ipc.ErrCodeUnavailable {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// readyProbe is an unrecognized command. The bridge answers it with a
// debug message once its engine is ready and drops it before.
const readyProbe = "chewctl:ready?"

var probeReply = protocol.Debug("unrecognized command", readyProbe)

// wsConn talks to the daemon's WebSocket endpoint. A reader goroutine
// feeds msgs so that a cancelled Next leaves the connection usable.
type wsConn struct {
	ws   *websocket.Conn
	msgs chan string
	err  error // set before msgs is closed
	done chan struct{}
}

func dialWebSocket(ctx context.Context, url string) (*wsConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	w := &wsConn{ws: ws, msgs: make(chan string, 16), done: make(chan struct{})}
	go w.readLoop()
	return w, nil
}

func (w *wsConn) readLoop() {
	defer close(w.msgs)
	for {
		msgType, data, err := w.ws.ReadMessage()
		if err != nil {
			w.err = err
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case w.msgs <- string(data):
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Send(text string) error {
	return w.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (w *wsConn) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg, ok := <-w.msgs:
		if !ok {
			return "", w.err
		}
		return msg, nil
	}
}

func (w *wsConn) Next(ctx context.Context) (string, error) {
	for {
		msg, err := w.next(ctx)
		if err != nil || msg != probeReply {
			return msg, err
		}
	}
}

// waitReady probes until the bridge answers.
func (w *wsConn) waitReady(ctx context.Context) error {
	for {
		if err := w.Send(readyProbe); err != nil {
			return err
		}
		probeCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		msg, err := w.next(probeCtx)
		cancel()
		switch {
		case err == nil && msg == probeReply:
			return nil
		case err == nil:
			return fmt.Errorf("bridge: %s", msg)
		case ctx.Err() != nil:
			return ctx.Err()
		case !errors.Is(err, context.DeadlineExceeded):
			return err
		}
	}
}

func (w *wsConn) Close() error {
	close(w.done)
	_ = w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.ws.Close()
}
