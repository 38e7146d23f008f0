// Package ipc carries the bridge text protocol over a local Unix socket.
//
// Every frame starts with a fixed 16-byte header followed by the payload.
// Command frames hold one inbound protocol message, outbound frames hold one
// message posted by the bridge. Each connection gets its own bridge session.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x43484252 // "CHBR"
)

// MaxPayload bounds the payload of a single frame.
const MaxPayload = 1 << 20

// MessageType identifies the type of a frame.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	// Bridge traffic (0x01xx)
	MsgCommand  MessageType = 0x0100 // client to bridge
	MsgOutbound MessageType = 0x0101 // bridge to client
	MsgSnapshot MessageType = 0x0102 // request the current context
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgError:
		return "error"
	case MsgCommand:
		return "command"
	case MsgOutbound:
		return "outbound"
	case MsgSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("MessageType(%#04x)", uint16(t))
	}
}

// Header flags
const (
	// FlagBinary marks a command payload that is not a text message. The
	// bridge rejects it, but the frame is still delivered.
	FlagBinary uint8 = 0x01
)

// Error codes carried in MsgError payloads.
const (
	ErrCodeInvalidRequest = 400
	ErrCodeForbidden      = 403
	ErrCodeUnavailable    = 503
	ErrCodeInternal       = 500
)

var (
	ErrBadMagic        = errors.New("ipc: invalid magic number")
	ErrBadVersion      = errors.New("ipc: unsupported protocol version")
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

// Header is the fixed-size frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32 // echoed on replies and on outbound frames a command caused
	Length    uint32 // payload length, header excluded
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a frame with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewTextMessage creates a frame whose payload is a protocol message.
func NewTextMessage(msgType MessageType, requestID uint32, text string) *Message {
	return NewMessage(msgType, requestID, []byte(text))
}

// Text returns the payload as a string.
func (m *Message) Text() string {
	return string(m.Payload)
}

// IsBinary reports whether the payload is flagged as non-text.
func (m *Message) IsBinary() bool {
	return m.Header.Flags&FlagBinary != 0
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, h.Magic)
	}
	if h.Version == 0 || h.Version > ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	return h, nil
}

// Write writes the whole frame to w in a single call.
func (m *Message) Write(w io.Writer) error {
	if len(m.Payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(m.Payload))
	}
	m.Header.Length = uint32(len(m.Payload))

	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	var hb headerBuffer
	if err := m.Header.Write(&hb); err != nil {
		return err
	}
	buf = append(buf, hb[:]...)
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

type headerBuffer [HeaderSize]byte

func (b *headerBuffer) Write(p []byte) (int, error) {
	return copy(b[:], p), nil
}

// ReadMessage reads a complete frame.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ErrorResponse is the payload of a MsgError frame.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("ipc error %d: %s", e.Code, e.Message)
}

// NewErrorMessage creates an error frame.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := json.Marshal(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// DecodeError parses the payload of a MsgError frame.
func DecodeError(m *Message) *ErrorResponse {
	var e ErrorResponse
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		return &ErrorResponse{Code: ErrCodeInternal, Message: string(m.Payload)}
	}
	return &e
}
