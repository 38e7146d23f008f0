//go:build linux

package main

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"chewbridge/internal/bridge"
	"chewbridge/internal/dbusbridge"
	"chewbridge/internal/protocol"
)

// readyTimeout bounds how long a key waits for the engine to load.
const readyTimeout = 2 * time.Second

// readyWaiter is implemented by sessions that load their engine in the
// background.
type readyWaiter interface {
	WaitReady(ctx context.Context) (bool, error)
}

const (
	engineInterface = "org.freedesktop.IBus.Engine"
	enginePath      = dbus.ObjectPath("/org/freedesktop/IBus/Engine/Chewbridge")
)

// emitFunc sends an IBus engine signal.
type emitFunc func(member string, args ...any) error

// ibusText builds the IBusText variant IBus expects in text arguments.
func ibusText(s string) dbus.Variant {
	attrs := struct {
		Name        string
		Attachments map[string]dbus.Variant
		Attrs       []dbus.Variant
	}{"IBusAttrList", map[string]dbus.Variant{}, []dbus.Variant{}}
	return dbus.MakeVariant(struct {
		Name        string
		Attachments map[string]dbus.Variant
		Text        string
		AttrList    dbus.Variant
	}{"IBusText", map[string]dbus.Variant{}, s, dbus.MakeVariant(attrs)})
}

// IBusEngine implements the IBus Engine D-Bus interface on top of one
// bridge session.
type IBusEngine struct {
	logger *slog.Logger
	emit   emitFunc

	keyMu   sync.Mutex
	session bridge.Session

	mu      sync.Mutex
	last    string
	preedit bool
}

func newIBusEngine(opener bridge.Opener, emit emitFunc, logger *slog.Logger) (*IBusEngine, error) {
	e := &IBusEngine{logger: logger, emit: emit}
	sess, err := opener.Open(bridge.PosterFunc(e.receive))
	if err != nil {
		return nil, err
	}
	e.session = sess
	return e, nil
}

// receive is the session's poster. Context messages are mirrored to IBus.
func (e *IBusEngine) receive(msg string) {
	e.mu.Lock()
	e.last = msg
	e.mu.Unlock()

	kind, payload := protocol.ParseOutbound(msg)
	switch kind {
	case protocol.KindContext:
		state, err := protocol.DecodeContext(payload)
		if err != nil {
			e.logger.Warn("bad context", "error", err)
			return
		}
		e.render(state)
	case protocol.KindDebug:
		e.logger.Debug("bridge", "message", payload)
	}
}

func (e *IBusEngine) render(state *protocol.Context) {
	if state.Commit != nil && *state.Commit != "" {
		e.signal("CommitText", ibusText(*state.Commit))
	}

	text, cursor := state.Preedit()
	e.mu.Lock()
	wasShown := e.preedit
	e.preedit = text != ""
	e.mu.Unlock()
	if text != "" || wasShown {
		e.signal("UpdatePreeditText", ibusText(text), uint32(cursor), text != "")
	}

	aux := auxText(state)
	e.signal("UpdateAuxiliaryText", ibusText(aux), aux != "")
}

func (e *IBusEngine) signal(member string, args ...any) {
	if err := e.emit(member, args...); err != nil {
		e.logger.Warn("emit failed", "signal", member, "error", err)
	}
}

// auxText shows the candidate page, or the engine's aux message.
func auxText(state *protocol.Context) string {
	if state.Cand != nil && len(*state.Cand) > 0 {
		var b strings.Builder
		for i, c := range *state.Cand {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteByte('.')
			b.WriteString(c)
		}
		if state.CandTotalPage != nil && state.CandCurrentPage != nil && *state.CandTotalPage > 1 {
			b.WriteString(" (")
			b.WriteString(strconv.Itoa(*state.CandCurrentPage + 1))
			b.WriteByte('/')
			b.WriteString(strconv.Itoa(*state.CandTotalPage))
			b.WriteByte(')')
		}
		return b.String()
	}
	if state.Aux != nil {
		return *state.Aux
	}
	return ""
}

// send forwards one message and returns what the bridge posted in reply.
func (e *IBusEngine) send(msg string) string {
	e.mu.Lock()
	e.last = ""
	e.mu.Unlock()

	if w, ok := e.session.(readyWaiter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		if _, err := w.WaitReady(ctx); err != nil {
			e.logger.Warn("engine not ready", "error", err)
		}
		cancel()
	}
	e.session.HandleMessage(msg)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// ProcessKeyEvent handles key press/release events.
// Returns true if the key was consumed by the composition.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	name, ok := dbusbridge.KeyName(keyval, state)
	if !ok {
		return false, nil
	}

	e.keyMu.Lock()
	defer e.keyMu.Unlock()

	reply := e.send(protocol.KeyCommand(name))
	kind, payload := protocol.ParseOutbound(reply)
	if kind != protocol.KindContext {
		// Not ready yet, or an error: let the application have the key.
		return false, nil
	}
	ctx, err := protocol.DecodeContext(payload)
	if err != nil {
		return false, nil
	}
	return !ctx.Ignore, nil
}

// FocusIn is called when the engine gains focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.logger.Debug("focus in")
	return nil
}

// FocusOut clears the composition shown in the client.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.logger.Debug("focus out")
	e.hidePreedit()
	return nil
}

// Reset discards the pending composition.
func (e *IBusEngine) Reset() *dbus.Error {
	e.keyMu.Lock()
	e.send(protocol.KeyCommand("Esc"))
	e.keyMu.Unlock()

	e.mu.Lock()
	e.preedit = false
	e.mu.Unlock()
	e.signal("HidePreeditText")
	return nil
}

func (e *IBusEngine) hidePreedit() {
	e.mu.Lock()
	shown := e.preedit
	e.preedit = false
	e.mu.Unlock()
	if shown {
		e.signal("HidePreeditText")
	}
}

// Enable is called when the engine is enabled.
func (e *IBusEngine) Enable() *dbus.Error {
	e.logger.Debug("enable")
	return nil
}

// Disable is called when the engine is disabled.
func (e *IBusEngine) Disable() *dbus.Error {
	e.logger.Debug("disable")
	e.hidePreedit()
	return nil
}

// SetContentType informs about the type of content being edited.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error {
	e.logger.Debug("content type", "purpose", purpose, "hints", hints)
	return nil
}

// Close releases the session.
func (e *IBusEngine) Close() error {
	return e.session.Close()
}
