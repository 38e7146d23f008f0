package dbusbridge

// Key event state masks, as sent by IBus.
const (
	ShiftMask   uint32 = 1 << 0
	LockMask    uint32 = 1 << 1
	ControlMask uint32 = 1 << 2
	Mod1Mask    uint32 = 1 << 3 // Alt
	Mod4Mask    uint32 = 1 << 6 // Super
	ReleaseMask uint32 = 1 << 30
)

// X11 keysyms with a bridge key name.
var keysymNames = map[uint32]string{
	0xff08: "Backspace",
	0xff09: "Tab",
	0xff0d: "Enter",
	0xff8d: "Enter", // KP_Enter
	0xff1b: "Esc",
	0xffe1: "Shift", // Shift_L
	0xffe2: "Shift", // Shift_R
	0xffe5: "CapsLock",
	0x0020: "Space",
	0xff55: "PageUp",
	0xff56: "PageDown",
	0xff57: "End",
	0xff50: "Home",
	0xff51: "Left",
	0xff52: "Up",
	0xff53: "Right",
	0xff54: "Down",
	0xffff: "Delete",
}

// KeyName translates a key event to the name used in a key: command. It
// reports false for releases, chords with Control, Alt or Super, and
// keysyms that have no character.
func KeyName(keyval, state uint32) (string, bool) {
	if state&ReleaseMask != 0 {
		return "", false
	}
	if state&(ControlMask|Mod1Mask|Mod4Mask) != 0 {
		return "", false
	}
	if name, ok := keysymNames[keyval]; ok {
		return name, true
	}
	if r := keyvalToRune(keyval); r != 0 {
		return string(r), true
	}
	return "", false
}

// keyvalToRune converts an X11 keysym to a Unicode rune.
func keyvalToRune(keyval uint32) rune {
	// Latin-1 maps directly.
	if keyval >= 0x20 && keyval <= 0x7e {
		return rune(keyval)
	}
	if keyval >= 0xa0 && keyval <= 0xff {
		return rune(keyval)
	}
	// Unicode keysyms (0x01000000 + codepoint)
	if keyval >= 0x01000100 && keyval <= 0x0110ffff {
		return rune(keyval - 0x01000000)
	}
	return 0
}
