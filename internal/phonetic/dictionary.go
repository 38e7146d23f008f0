package phonetic

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
)

// DictionaryFile is the dictionary file name inside the data directory.
const DictionaryFile = "dictionary.toml"

// MaxPhraseLen is the longest phrase the engine segments or learns.
const MaxPhraseLen = 11

// ErrDictionary is returned (wrapped) for malformed dictionaries.
var ErrDictionary = errors.New("phonetic: bad dictionary")

// Phrase is one dictionary entry.
type Phrase struct {
	Text   string
	Freq   int
	Phones []uint16
}

type dictEntry struct {
	Text   string `toml:"text"`
	Freq   int    `toml:"freq"`
	Phones string `toml:"phones"`
}

type dictFile struct {
	Phrase []dictEntry `toml:"phrase"`
}

// Dictionary indexes phrases by their phones.
type Dictionary struct {
	index  map[string][]Phrase
	maxLen int
	size   int
}

// LoadDictionary reads a TOML dictionary file.
func LoadDictionary(path string) (*Dictionary, error) {
	var f dictFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDictionary, path, err)
	}
	return buildDictionary(f, md)
}

// ParseDictionary reads a TOML dictionary from r.
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	var f dictFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDictionary, err)
	}
	return buildDictionary(f, md)
}

func buildDictionary(f dictFile, md toml.MetaData) (*Dictionary, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrDictionary, strings.Join(keys, ", "))
	}

	d := &Dictionary{index: make(map[string][]Phrase)}
	for i, e := range f.Phrase {
		phones, err := ParsePhones(e.Phones)
		if err != nil {
			return nil, fmt.Errorf("%w: phrase %d (%q): %v", ErrDictionary, i, e.Text, err)
		}
		if n := utf8.RuneCountInString(e.Text); n != len(phones) || n == 0 {
			return nil, fmt.Errorf("%w: phrase %d (%q): %d characters for %d syllables", ErrDictionary, i, e.Text, n, len(phones))
		}
		if len(phones) > MaxPhraseLen {
			return nil, fmt.Errorf("%w: phrase %d (%q): longer than %d", ErrDictionary, i, e.Text, MaxPhraseLen)
		}
		d.Add(Phrase{Text: e.Text, Freq: e.Freq, Phones: phones})
	}
	return d, nil
}

// Add inserts a phrase, keeping each phone group ordered by frequency.
// Adding a text already present for the same phones keeps the higher
// frequency.
func (d *Dictionary) Add(p Phrase) {
	key := phoneKey(p.Phones)
	list := d.index[key]
	for i := range list {
		if list[i].Text == p.Text {
			list[i].Freq = max(list[i].Freq, p.Freq)
			sortPhrases(list)
			return
		}
	}
	list = append(list, p)
	sortPhrases(list)
	d.index[key] = list
	d.maxLen = max(d.maxLen, len(p.Phones))
	d.size++
}

func sortPhrases(list []Phrase) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Freq != list[j].Freq {
			return list[i].Freq > list[j].Freq
		}
		return list[i].Text < list[j].Text
	})
}

// Lookup returns the phrases for phones, most frequent first. The slice
// must not be modified.
func (d *Dictionary) Lookup(phones []uint16) []Phrase {
	return d.index[phoneKey(phones)]
}

// Has reports whether any phrase has exactly these phones.
func (d *Dictionary) Has(phones []uint16) bool {
	return len(d.index[phoneKey(phones)]) > 0
}

// MaxLen returns the length of the longest phrase.
func (d *Dictionary) MaxLen() int {
	return d.maxLen
}

// Len returns the number of phrases.
func (d *Dictionary) Len() int {
	return d.size
}
