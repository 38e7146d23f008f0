package bridge

import (
	"strings"

	"chewbridge/internal/protocol"
)

// Command is a parsed inbound message.
type Command interface {
	command()
}

// KeyEvent asks the engine to process a named key or literal character.
type KeyEvent struct {
	Name string
}

// LayoutChange asks the engine to switch keyboard layouts.
type LayoutChange struct {
	ID string
}

// Unrecognized is any message without a known prefix.
type Unrecognized struct {
	Raw string
}

func (KeyEvent) command()     {}
func (LayoutChange) command() {}
func (Unrecognized) command() {}

// ParseCommand classifies an inbound message by prefix. The payload after
// the prefix is kept verbatim.
func ParseCommand(msg string) Command {
	switch {
	case strings.HasPrefix(msg, protocol.PrefixKey):
		return KeyEvent{Name: msg[len(protocol.PrefixKey):]}
	case strings.HasPrefix(msg, protocol.PrefixLayout):
		return LayoutChange{ID: msg[len(protocol.PrefixLayout):]}
	default:
		return Unrecognized{Raw: msg}
	}
}
