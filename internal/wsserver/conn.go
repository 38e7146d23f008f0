package wsserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chewbridge/internal/bridge"
)

// conn is one WebSocket client. gorilla/websocket allows one concurrent
// writer, so every write goes through wrMu.
type conn struct {
	id      string
	ws      *websocket.Conn
	server  *Server
	session bridge.Session
	logger  *slog.Logger

	wrMu      sync.Mutex
	outbox    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// post queues a message for the write loop. A client that cannot keep up
// is disconnected.
func (c *conn) post(msg string) {
	select {
	case <-c.closeCh:
		return
	default:
	}
	select {
	case c.outbox <- []byte(msg):
	default:
		c.logger.Warn("send queue full, disconnecting", "outbox_cap", cap(c.outbox))
		c.closeNow()
	}
}

func (c *conn) writeMsg(msgType int, data []byte) error {
	c.wrMu.Lock()
	defer c.wrMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	return c.ws.WriteMessage(msgType, data)
}

func (c *conn) writeLoop() error {
	var tick <-chan time.Time
	if iv := c.server.cfg.PingInterval; iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-c.closeCh:
			return nil
		case msg := <-c.outbox:
			if err := c.writeMsg(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-tick:
			if err := c.writeMsg(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *conn) readLoop() {
	if iv := c.server.cfg.PingInterval; iv > 0 {
		wait := 2 * iv
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		switch msgType {
		case websocket.TextMessage:
			c.session.HandleMessage(string(data))
		case websocket.BinaryMessage:
			c.session.HandleMessage(data)
		}
	}
}

// closeWith sends a close frame before closing.
func (c *conn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	c.wrMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wrMu.Unlock()
	c.closeNow()
}

func (c *conn) closeNow() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		_ = c.ws.Close()
	})
}
