package phonetic

import (
	"chewbridge/internal/engine"
)

// Keyboard maps keys to bopomofo symbols.
type Keyboard struct {
	keys map[rune][]bopomofo

	// fuzzyPalatal rewrites ㄐㄑㄒ without a medial to ㄓㄔㄕ when a
	// syllable completes, for layouts that share those keys.
	fuzzyPalatal bool
}

func newKeyboard(table map[rune]string, fuzzyPalatal bool) *Keyboard {
	kb := &Keyboard{keys: make(map[rune][]bopomofo, len(table)), fuzzyPalatal: fuzzyPalatal}
	for key, symbols := range table {
		for _, r := range symbols {
			b, ok := classify(r)
			if !ok {
				panic("phonetic: bad keyboard symbol " + string(r))
			}
			kb.keys[key] = append(kb.keys[key], b)
		}
	}
	return kb
}

// Feed applies a key to a reading. It reports whether the key belongs to
// the keyboard at all, and whether the reading accepted it.
func (kb *Keyboard) Feed(s *Syllable, key rune) (mapped, accepted bool) {
	syms, ok := kb.keys[key]
	if !ok {
		return false, false
	}
	strict := len(syms) > 1
	for _, b := range syms {
		if s.accepts(b, strict) {
			s.set(b)
			return true, true
		}
	}
	if strict && s.accepts(syms[0], false) {
		s.set(syms[0])
		return true, true
	}
	return true, false
}

// Complete finishes a reading with the given tone.
func (kb *Keyboard) Complete(s Syllable, tone uint8) Syllable {
	s.Tone = tone
	if kb.fuzzyPalatal && s.Medial == 0 {
		// ㄐㄑㄒ are initials 12-14, ㄓㄔㄕ 15-17.
		if s.Initial >= 12 && s.Initial <= 14 {
			s.Initial += 3
		}
	}
	return s
}

var dachen = newKeyboard(map[rune]string{
	'1': "ㄅ", 'q': "ㄆ", 'a': "ㄇ", 'z': "ㄈ",
	'2': "ㄉ", 'w': "ㄊ", 's': "ㄋ", 'x': "ㄌ",
	'e': "ㄍ", 'd': "ㄎ", 'c': "ㄏ",
	'r': "ㄐ", 'f': "ㄑ", 'v': "ㄒ",
	'5': "ㄓ", 't': "ㄔ", 'g': "ㄕ", 'b': "ㄖ",
	'y': "ㄗ", 'h': "ㄘ", 'n': "ㄙ",
	'u': "ㄧ", 'j': "ㄨ", 'm': "ㄩ",
	'8': "ㄚ", 'i': "ㄛ", 'k': "ㄜ", ',': "ㄝ",
	'9': "ㄞ", 'o': "ㄟ", 'l': "ㄠ", '.': "ㄡ",
	'0': "ㄢ", 'p': "ㄣ", ';': "ㄤ", '/': "ㄥ", '-': "ㄦ",
	'6': "ˊ", '3': "ˇ", '4': "ˋ", '7': "˙",
}, false)

var eten = newKeyboard(map[rune]string{
	'b': "ㄅ", 'p': "ㄆ", 'm': "ㄇ", 'f': "ㄈ",
	'd': "ㄉ", 't': "ㄊ", 'n': "ㄋ", 'l': "ㄌ",
	'v': "ㄍ", 'k': "ㄎ", 'h': "ㄏ",
	'g': "ㄐ", '7': "ㄑ", 'c': "ㄒ",
	',': "ㄓ", '.': "ㄔ", '/': "ㄕ", 'j': "ㄖ",
	';': "ㄗ", '\'': "ㄘ", 's': "ㄙ",
	'e': "ㄧ", 'x': "ㄨ", 'u': "ㄩ",
	'a': "ㄚ", 'o': "ㄛ", 'r': "ㄜ", 'w': "ㄝ",
	'i': "ㄞ", 'q': "ㄟ", 'z': "ㄠ", 'y': "ㄡ",
	'8': "ㄢ", '9': "ㄣ", '0': "ㄤ", '-': "ㄥ", '=': "ㄦ",
	'2': "ˊ", '3': "ˇ", '4': "ˋ", '1': "˙",
}, false)

var hsu = newKeyboard(map[rune]string{
	'a': "ㄘㄟ", 'b': "ㄅ", 'c': "ㄒ", 'd': "ㄉˊ",
	'e': "ㄧㄝ", 'f': "ㄈˇ", 'g': "ㄍㄜ", 'h': "ㄏㄛ",
	'i': "ㄞ", 'j': "ㄐˋ", 'k': "ㄎㄤ", 'l': "ㄌㄥㄦ",
	'm': "ㄇㄢ", 'n': "ㄋㄣ", 'o': "ㄡ", 'p': "ㄆ",
	'r': "ㄖ", 's': "ㄙ˙", 't': "ㄊ", 'u': "ㄩ",
	'v': "ㄑ", 'w': "ㄠ", 'x': "ㄨ", 'y': "ㄚ",
	'z': "ㄗ",
}, true)

// KeyboardFor returns the key table of a layout. Layouts without a table
// of their own type with the standard one.
func KeyboardFor(l engine.Layout) *Keyboard {
	switch l {
	case engine.LayoutET, engine.LayoutET26:
		return eten
	case engine.LayoutHsu, engine.LayoutDvorakHsu:
		return hsu
	default:
		return dachen
	}
}
