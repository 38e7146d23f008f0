package bridge

import (
	"unicode/utf8"

	"chewbridge/internal/engine"
)

// keyOps maps key names to engine operations. It is never mutated.
var keyOps = map[string]engine.Op{
	"Backspace": engine.OpBackspace,
	"Tab":       engine.OpTab,
	"Enter":     engine.OpEnter,
	"Shift":     engine.OpShift,
	"CapsLock":  engine.OpCapsLock,
	"Esc":       engine.OpEsc,
	"Space":     engine.OpSpace,
	" ":         engine.OpSpace,
	"PageUp":    engine.OpPageUp,
	"PageDown":  engine.OpPageDown,
	"End":       engine.OpEnd,
	"Home":      engine.OpHome,
	"Left":      engine.OpLeft,
	"Up":        engine.OpUp,
	"Right":     engine.OpRight,
	"Down":      engine.OpDown,
	"Delete":    engine.OpDelete,
}

// KeyAction describes what ApplyKey did with a key name.
type KeyAction int

const (
	// KeyIgnored means the name was neither a known key nor a single
	// character, and the engine was not touched.
	KeyIgnored KeyAction = iota
	// KeyNamed means a named operation was applied.
	KeyNamed
	// KeyDefault means a literal character was inserted.
	KeyDefault
)

func (a KeyAction) String() string {
	switch a {
	case KeyNamed:
		return "named"
	case KeyDefault:
		return "default"
	default:
		return "ignored"
	}
}

// LookupKey returns the operation bound to a key name.
func LookupKey(name string) (engine.Op, bool) {
	op, ok := keyOps[name]
	return op, ok
}

// ApplyKey applies a key name to the engine. Table names win over the
// single-character rule, so " " is Space rather than a literal blank.
func ApplyKey(e engine.KeyHandler, name string) KeyAction {
	if op, ok := keyOps[name]; ok {
		e.Handle(op)
		return KeyNamed
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		e.HandleDefault(r)
		return KeyDefault
	}
	return KeyIgnored
}
