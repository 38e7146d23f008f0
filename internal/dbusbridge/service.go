// Package dbusbridge exposes bridge sessions on a D-Bus connection.
//
// Each calling bus peer gets its own bridge. Inbound messages arrive through
// the PostMessage and ProcessKeyEvent methods; every posted message is sent
// back to that peer alone as a Message signal.
package dbusbridge

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"chewbridge/internal/bridge"
	"chewbridge/internal/protocol"
)

// D-Bus names
const (
	BusName    = "org.chewbridge.Bridge"
	ObjectPath = dbus.ObjectPath("/org/chewbridge/Bridge")
	Interface  = "org.chewbridge.Bridge"
	SignalName = "Message"

	// ErrorOpenFailed is the D-Bus error name returned when no session can
	// be opened for the caller.
	ErrorOpenFailed = Interface + ".Error.OpenFailed"
)

const introspectXML = `
	<interface name="` + Interface + `">
		<method name="PostMessage">
			<arg name="message" direction="in" type="s"/>
		</method>
		<method name="ProcessKeyEvent">
			<arg name="keyval" direction="in" type="u"/>
			<arg name="keycode" direction="in" type="u"/>
			<arg name="state" direction="in" type="u"/>
			<arg name="handled" direction="out" type="b"/>
		</method>
		<method name="CloseSession"/>
		<signal name="` + SignalName + `">
			<arg name="message" type="s"/>
		</signal>
	</interface>`

// sendFunc delivers one outbound message to a bus peer.
type sendFunc func(dest, text string) error

// Service maps bus peers to bridge sessions.
type Service struct {
	opener bridge.Opener
	logger *slog.Logger

	mu       sync.Mutex
	send     sendFunc
	sessions map[string]bridge.Session
	conn     *dbus.Conn
	signals  chan *dbus.Signal
	done     chan struct{}
}

// NewService returns a service that is not yet exported.
func NewService(opener bridge.Opener, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opener:   opener,
		logger:   logger.With("component", "dbus"),
		sessions: make(map[string]bridge.Session),
	}
}

// Export publishes the service object on conn and starts watching for
// peers leaving the bus. It does not request a well-known name.
func (s *Service) Export(conn *dbus.Conn) error {
	obj := &object{s: s}
	if err := conn.Export(obj, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export %s: %w", ObjectPath, err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			mustParseInterface(),
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		return fmt.Errorf("watch name owners: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	s.mu.Lock()
	s.conn = conn
	s.send = signalSender(conn)
	s.signals = signals
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watchPeers(signals, s.done)
	s.logger.Info("exported", "path", ObjectPath, "interface", Interface)
	return nil
}

// RequestName claims the well-known bus name.
func RequestName(conn *dbus.Conn) error {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("bus name already taken")
	}
	return nil
}

// signalSender sends a signal addressed to a single peer.
func signalSender(conn *dbus.Conn) sendFunc {
	return func(dest, text string) error {
		msg := &dbus.Message{
			Type: dbus.TypeSignal,
			Headers: map[dbus.HeaderField]dbus.Variant{
				dbus.FieldPath:        dbus.MakeVariant(ObjectPath),
				dbus.FieldInterface:   dbus.MakeVariant(Interface),
				dbus.FieldMember:      dbus.MakeVariant(SignalName),
				dbus.FieldDestination: dbus.MakeVariant(dest),
				dbus.FieldSignature:   dbus.MakeVariant(dbus.SignatureOf(text)),
			},
			Body: []any{text},
		}
		return conn.Send(msg, nil).Err
	}
}

func (s *Service) watchPeers(signals <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if newOwner == "" {
				s.drop(name)
			}
		}
	}
}

// session returns the caller's session, opening one on first use.
func (s *Service) session(peer string) (bridge.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[peer]; ok {
		return sess, nil
	}
	send := s.send
	if send == nil {
		return nil, errors.New("dbusbridge: service not exported")
	}
	poster := bridge.PosterFunc(func(text string) {
		if err := send(peer, text); err != nil {
			s.logger.Warn("emit failed", "peer", peer, "error", err)
		}
	})
	sess, err := s.opener.Open(poster)
	if err != nil {
		return nil, err
	}
	s.sessions[peer] = sess
	s.logger.Info("session opened", "peer", peer, "session", sess.ID())
	return sess, nil
}

// drop closes the session of a peer that left.
func (s *Service) drop(peer string) {
	s.mu.Lock()
	sess, ok := s.sessions[peer]
	delete(s.sessions, peer)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		s.logger.Warn("close session", "peer", peer, "error", err)
	}
	s.logger.Info("session closed", "peer", peer)
}

// SessionCount returns the number of peers with an open session.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close unexports the object and closes every session.
func (s *Service) Close() error {
	s.mu.Lock()
	conn, signals, done := s.conn, s.signals, s.done
	s.conn, s.signals, s.done, s.send = nil, nil, nil, nil
	open := s.sessions
	s.sessions = make(map[string]bridge.Session)
	s.mu.Unlock()

	if conn != nil {
		conn.RemoveSignal(signals)
		close(done)
		_ = conn.Export(nil, ObjectPath, Interface)
		_ = conn.Export(nil, ObjectPath, "org.freedesktop.DBus.Introspectable")
	}

	var errs []error
	for peer, sess := range open {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session of %s: %w", peer, err))
		}
	}
	return errors.Join(errs...)
}

// object carries the exported D-Bus methods.
type object struct {
	s *Service
}

// PostMessage handles one inbound protocol message from the caller.
func (o *object) PostMessage(sender dbus.Sender, msg string) *dbus.Error {
	sess, err := o.s.session(string(sender))
	if err != nil {
		return dbus.NewError(ErrorOpenFailed, []any{err.Error()})
	}
	sess.HandleMessage(msg)
	return nil
}

// ProcessKeyEvent translates an IBus key event into a key: command. It
// reports whether the event was forwarded.
func (o *object) ProcessKeyEvent(sender dbus.Sender, keyval, keycode, state uint32) (bool, *dbus.Error) {
	name, ok := KeyName(keyval, state)
	if !ok {
		return false, nil
	}
	sess, err := o.s.session(string(sender))
	if err != nil {
		return false, dbus.NewError(ErrorOpenFailed, []any{err.Error()})
	}
	sess.HandleMessage(protocol.KeyCommand(name))
	return true, nil
}

// CloseSession closes the caller's session. The next call opens a new one.
func (o *object) CloseSession(sender dbus.Sender) *dbus.Error {
	o.s.drop(string(sender))
	return nil
}

func mustParseInterface() introspect.Interface {
	var node introspect.Node
	if err := xml.Unmarshal([]byte("<node>"+introspectXML+"</node>"), &node); err != nil || len(node.Interfaces) != 1 {
		panic(fmt.Sprintf("dbusbridge: bad introspection data: %v", err))
	}
	return node.Interfaces[0]
}
