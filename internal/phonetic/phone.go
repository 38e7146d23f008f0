package phonetic

import (
	"fmt"
	"strings"
)

var (
	initials = []rune("ㄅㄆㄇㄈㄉㄊㄋㄌㄍㄎㄏㄐㄑㄒㄓㄔㄕㄖㄗㄘㄙ")
	medials  = []rune("ㄧㄨㄩ")
	finals   = []rune("ㄚㄛㄜㄝㄞㄟㄠㄡㄢㄣㄤㄥㄦ")
	// toneMarks is indexed by tone; tone 1 carries no mark.
	toneMarks = []rune{0, 'ˉ', 'ˊ', 'ˇ', 'ˋ', '˙'}
)

type slot uint8

const (
	slotInitial slot = iota
	slotMedial
	slotFinal
	slotTone
)

// bopomofo is one symbol of a reading: a slot and its 1-based index.
type bopomofo struct {
	slot  slot
	index uint8
}

func classify(r rune) (bopomofo, bool) {
	for _, set := range []struct {
		slot  slot
		runes []rune
	}{
		{slotInitial, initials},
		{slotMedial, medials},
		{slotFinal, finals},
	} {
		for i, c := range set.runes {
			if c == r {
				return bopomofo{set.slot, uint8(i + 1)}, true
			}
		}
	}
	for t := 1; t < len(toneMarks); t++ {
		if toneMarks[t] == r {
			return bopomofo{slotTone, uint8(t)}, true
		}
	}
	return bopomofo{}, false
}

// Syllable is a bopomofo reading. Zero fields are unset.
type Syllable struct {
	Initial uint8
	Medial  uint8
	Final   uint8
	Tone    uint8
}

// Empty reports whether no sound has been entered.
func (s Syllable) Empty() bool {
	return s.Initial == 0 && s.Medial == 0 && s.Final == 0
}

// Encode packs the syllable into the 16-bit phone code used by the
// dictionary and the user phrase store.
func (s Syllable) Encode() uint16 {
	return uint16(s.Initial)<<9 | uint16(s.Medial)<<7 | uint16(s.Final)<<3 | uint16(s.Tone)
}

// DecodePhone unpacks a phone code.
func DecodePhone(p uint16) Syllable {
	return Syllable{
		Initial: uint8(p >> 9),
		Medial:  uint8(p>>7) & 0x3,
		Final:   uint8(p>>3) & 0xf,
		Tone:    uint8(p) & 0x7,
	}
}

// Reading returns the bopomofo symbols without the tone.
func (s Syllable) Reading() string {
	var b strings.Builder
	if s.Initial > 0 {
		b.WriteRune(initials[s.Initial-1])
	}
	if s.Medial > 0 {
		b.WriteRune(medials[s.Medial-1])
	}
	if s.Final > 0 {
		b.WriteRune(finals[s.Final-1])
	}
	return b.String()
}

// String returns the reading with its tone mark. The first tone is
// written without a mark.
func (s Syllable) String() string {
	if s.Tone > 1 && int(s.Tone) < len(toneMarks) {
		return s.Reading() + string(toneMarks[s.Tone])
	}
	return s.Reading()
}

func (s *Syllable) set(b bopomofo) {
	switch b.slot {
	case slotInitial:
		s.Initial = b.index
	case slotMedial:
		s.Medial = b.index
	case slotFinal:
		s.Final = b.index
	case slotTone:
		s.Tone = b.index
	}
}

// accepts reports whether b may be entered next. Loose acceptance lets a
// symbol replace the one already in its slot; strict acceptance, used for
// keys with more than one symbol, only fills empty slots.
func (s Syllable) accepts(b bopomofo, strict bool) bool {
	switch b.slot {
	case slotInitial:
		if strict {
			return s.Empty()
		}
		return s.Medial == 0 && s.Final == 0
	case slotMedial:
		if strict {
			return s.Medial == 0 && s.Final == 0
		}
		return s.Final == 0
	case slotFinal:
		return !strict || s.Final == 0
	case slotTone:
		return !s.Empty()
	}
	return false
}

// ParseSyllable parses one syllable such as "ㄘㄜˋ". A missing tone mark
// means the first tone.
func ParseSyllable(text string) (Syllable, error) {
	var s Syllable
	prev := -1
	for _, r := range text {
		b, ok := classify(r)
		if !ok {
			return Syllable{}, fmt.Errorf("syllable %q: %q is not bopomofo", text, r)
		}
		if int(b.slot) <= prev {
			return Syllable{}, fmt.Errorf("syllable %q: symbols out of order", text)
		}
		prev = int(b.slot)
		s.set(b)
	}
	if s.Empty() {
		return Syllable{}, fmt.Errorf("syllable %q: no sound", text)
	}
	if s.Tone == 0 {
		s.Tone = 1
	}
	return s, nil
}

// ParsePhones parses space-separated syllables into phone codes.
func ParsePhones(text string) ([]uint16, error) {
	fields := strings.Fields(text)
	phones := make([]uint16, 0, len(fields))
	for _, f := range fields {
		s, err := ParseSyllable(f)
		if err != nil {
			return nil, err
		}
		phones = append(phones, s.Encode())
	}
	return phones, nil
}

// FormatPhones is the inverse of ParsePhones.
func FormatPhones(phones []uint16) string {
	parts := make([]string, len(phones))
	for i, p := range phones {
		parts[i] = DecodePhone(p).String()
	}
	return strings.Join(parts, " ")
}

// phoneKey turns phones into a map key.
func phoneKey(phones []uint16) string {
	r := make([]rune, len(phones))
	for i, p := range phones {
		r[i] = rune(p)
	}
	return string(r)
}
