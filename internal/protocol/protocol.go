// Package protocol defines the text message protocol spoken between a host
// UI and a bridge.
//
// Every message is a single string. Inbound messages carry a command:
//
//	key:<name>         a named key (Backspace, Left, ...) or one literal character
//	layout:<id>        switch the keyboard layout (KB_DEFAULT, KB_HSU, ...)
//
// Outbound messages carry a response:
//
//	debug:<message>[, <detail>]   free-text diagnostics
//	context:<json>                the composition state after a key command
//	layout:<json>                 the active layout after a layout command
//
// Payloads after the prefix are used verbatim; nothing is trimmed or decoded.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Inbound prefixes.
const (
	PrefixKey    = "key:"
	PrefixLayout = "layout:"
)

// Outbound prefixes.
const (
	PrefixDebug   = "debug:"
	PrefixContext = "context:"
	// PrefixLayoutResult is shared with the inbound layout command.
	PrefixLayoutResult = PrefixLayout
)

// Kind classifies an outbound message.
type Kind int

const (
	KindUnknown Kind = iota
	KindDebug
	KindContext
	KindLayout
)

func (k Kind) String() string {
	switch k {
	case KindDebug:
		return "debug"
	case KindContext:
		return "context"
	case KindLayout:
		return "layout"
	default:
		return "unknown"
	}
}

// Interval is the wire form of a fixed buffer range.
type Interval struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Context is the composition-state payload of a context: message. Optional
// fields are pointers or omitempty so that an unset field is absent from the
// encoded JSON rather than present as a zero value.
type Context struct {
	Cand              *[]string   `json:"cand,omitempty"`
	CandChoicePerPage *int        `json:"cand_ChoicePerPage,omitempty"`
	CandTotalPage     *int        `json:"cand_TotalPage,omitempty"`
	CandCurrentPage   *int        `json:"cand_CurrentPage,omitempty"`
	Buffer            *string     `json:"buffer,omitempty"`
	Interval          *[]Interval `json:"interval,omitempty"`
	Lcch              *[]string   `json:"lcch,omitempty"`
	Bopomofo          *string     `json:"bopomofo,omitempty"`
	Aux               *string     `json:"aux,omitempty"`
	Commit            *string     `json:"commit,omitempty"`
	Cursor            int         `json:"cursor"`
	Ignore            bool        `json:"ignore,omitempty"`
	Absorb            bool        `json:"absorb,omitempty"`

	// Aliases kept for consumers of the older XCIN-style protocol.
	Keystroke *string   `json:"keystroke,omitempty"`
	Mcch      *[]string `json:"mcch,omitempty"`
	Cch       *string   `json:"cch,omitempty"`
	EditPos   *int      `json:"edit_pos,omitempty"`
}

// LayoutPayload is the payload of a layout: response.
type LayoutPayload struct {
	Layout string `json:"layout"`
}

// KeyCommand builds an inbound key message.
func KeyCommand(name string) string {
	return PrefixKey + name
}

// LayoutCommand builds an inbound layout message.
func LayoutCommand(id string) string {
	return PrefixLayout + id
}

// Debug builds an outbound debug message. The detail is appended after a
// comma only when it is non-empty.
func Debug(message, detail string) string {
	if detail == "" {
		return PrefixDebug + message
	}
	return PrefixDebug + message + ", " + detail
}

// EncodeContext builds an outbound context message.
func EncodeContext(c *Context) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return PrefixContext + string(data), nil
}

// EncodeLayout builds an outbound layout message.
func EncodeLayout(layout string) (string, error) {
	data, err := json.Marshal(LayoutPayload{Layout: layout})
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}
	return PrefixLayoutResult + string(data), nil
}

// ParseOutbound splits an outbound message into its kind and payload.
func ParseOutbound(msg string) (Kind, string) {
	switch {
	case strings.HasPrefix(msg, PrefixDebug):
		return KindDebug, msg[len(PrefixDebug):]
	case strings.HasPrefix(msg, PrefixContext):
		return KindContext, msg[len(PrefixContext):]
	case strings.HasPrefix(msg, PrefixLayoutResult):
		return KindLayout, msg[len(PrefixLayoutResult):]
	default:
		return KindUnknown, msg
	}
}

// DecodeContext parses the payload of a context: message.
func DecodeContext(payload string) (*Context, error) {
	var c Context
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &c, nil
}

// DecodeLayout parses the payload of a layout: message.
func DecodeLayout(payload string) (*LayoutPayload, error) {
	var p LayoutPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return &p, nil
}

// Preedit places the pending bopomofo at the cursor of the buffer, the way
// a client displays the composition. It returns the text and the cursor
// position in runes after the bopomofo.
func (c *Context) Preedit() (string, int) {
	var buf []rune
	if c.Buffer != nil {
		buf = []rune(*c.Buffer)
	}
	cursor := c.Cursor
	if cursor < 0 || cursor > len(buf) {
		cursor = len(buf)
	}
	zhuyin := ""
	if c.Bopomofo != nil {
		zhuyin = *c.Bopomofo
	}
	return string(buf[:cursor]) + zhuyin + string(buf[cursor:]), cursor + utf8.RuneCountInString(zhuyin)
}
