package engine

// Op is a parameterless engine operation bound to a named key.
type Op uint8

// Named key operations.
const (
	OpNone Op = iota
	OpBackspace
	OpTab
	OpEnter
	OpShift
	OpCapsLock
	OpEsc
	OpSpace
	OpPageUp
	OpPageDown
	OpEnd
	OpHome
	OpLeft
	OpUp
	OpRight
	OpDown
	OpDelete
)

var opNames = [...]string{
	OpNone:      "None",
	OpBackspace: "Backspace",
	OpTab:       "Tab",
	OpEnter:     "Enter",
	OpShift:     "Shift",
	OpCapsLock:  "CapsLock",
	OpEsc:       "Esc",
	OpSpace:     "Space",
	OpPageUp:    "PageUp",
	OpPageDown:  "PageDown",
	OpEnd:       "End",
	OpHome:      "Home",
	OpLeft:      "Left",
	OpUp:        "Up",
	OpRight:     "Right",
	OpDown:      "Down",
	OpDelete:    "Delete",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Op(?)"
}

// Layout is a keyboard layout code.
type Layout int

// LayoutUnknown is the code an unrecognized layout identifier resolves to.
const LayoutUnknown Layout = -1

// Known layout codes, in the order the host's options page lists them.
const (
	LayoutDefault Layout = iota
	LayoutHsu
	LayoutIBM
	LayoutGinYieh
	LayoutET
	LayoutET26
	LayoutDvorak
	LayoutDvorakHsu
	LayoutDachenCP26
	LayoutHanyuPinyin
	LayoutTHLPinyin
	LayoutMPS2Pinyin
)

// LayoutIDs maps each known layout code to its identifier.
var LayoutIDs = [...]string{
	LayoutDefault:     "KB_DEFAULT",
	LayoutHsu:         "KB_HSU",
	LayoutIBM:         "KB_IBM",
	LayoutGinYieh:     "KB_GIN_YIEH",
	LayoutET:          "KB_ET",
	LayoutET26:        "KB_ET26",
	LayoutDvorak:      "KB_DVORAK",
	LayoutDvorakHsu:   "KB_DVORAK_HSU",
	LayoutDachenCP26:  "KB_DACHEN_CP26",
	LayoutHanyuPinyin: "KB_HANYU_PINYIN",
	LayoutTHLPinyin:   "KB_THL_PINYIN",
	LayoutMPS2Pinyin:  "KB_MPS2_PINYIN",
}

// ParseLayout resolves an identifier to its code, or LayoutUnknown.
func ParseLayout(id string) Layout {
	for code, name := range LayoutIDs {
		if name == id {
			return Layout(code)
		}
	}
	return LayoutUnknown
}

// Valid reports whether the code names a known layout.
func (l Layout) Valid() bool {
	return l >= 0 && int(l) < len(LayoutIDs)
}

func (l Layout) String() string {
	if l.Valid() {
		return LayoutIDs[l]
	}
	return "KB_UNKNOWN"
}
