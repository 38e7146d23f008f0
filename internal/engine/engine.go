// Package engine defines the capability interface a composition engine
// exposes to the bridge.
//
// The bridge never looks inside an engine. It drives it with named key
// operations and literal characters, switches its keyboard layout, and reads
// back the composition state: candidates, the symbol buffer, fixed intervals,
// the in-progress bopomofo reading, aux and commit strings, the cursor and
// the keystroke flags.
//
// An engine is created through a Factory, which may block on file I/O, and
// is released exactly once through Close.
package engine

import (
	"context"
	"errors"
	"io"
)

// ErrCreate is returned (wrapped) by factories that fail to build an engine.
var ErrCreate = errors.New("engine: create failed")

// Interval is a half-open range [From, To) into the symbol buffer that the
// engine has already resolved into a fixed phrase.
type Interval struct {
	From int
	To   int
}

// Len returns the number of symbols covered by the interval.
func (iv Interval) Len() int {
	return iv.To - iv.From
}

// KeyHandler applies key input to the engine.
type KeyHandler interface {
	// Handle applies a parameterless named operation.
	Handle(op Op)

	// HandleDefault applies the default character-insertion operation.
	HandleDefault(ch rune)
}

// LayoutController resolves and applies keyboard layouts.
type LayoutController interface {
	// LayoutCode resolves a layout identifier. Unknown identifiers resolve
	// to LayoutUnknown.
	LayoutCode(id string) Layout

	// SetLayout makes code the active layout.
	SetLayout(code Layout)

	// Layout returns the active layout.
	Layout() Layout

	// LayoutString returns the identifier of a layout code.
	LayoutString(code Layout) string
}

// CandidateLister enumerates the current candidate page.
type CandidateLister interface {
	CandidateTotal() int
	CandidateEnumerate()
	CandidateHasNext() bool
	CandidateString() string
	CandidatesPerPage() int
	CandidateTotalPages() int
	CandidateCurrentPage() int
}

// BufferReader exposes the composition buffer and its decorations.
type BufferReader interface {
	BufferCheck() bool
	BufferString() string

	// Symbols returns the textual form of each composed symbol, in buffer
	// order. Its length is the buffer length used by intervals and cursor.
	Symbols() []string

	IntervalEnumerate()
	IntervalHasNext() bool
	IntervalNext() Interval

	BopomofoCheck() bool
	BopomofoString() string
	AuxCheck() bool
	AuxString() string
	CommitCheck() bool
	CommitString() string

	Cursor() int
	KeystrokeIgnore() bool
	KeystrokeAbsorb() bool
}

// Configurer holds the startup configuration setters.
type Configurer interface {
	SetMaxSymbolLen(n int)
	SetAddPhraseDirection(dir int)
	SetSpaceAsSelection(on bool)
	SetSelectionKeys(keys []rune)
	SetCandidatesPerPage(n int)
}

// Engine is the full capability set consumed by the bridge.
type Engine interface {
	KeyHandler
	LayoutController
	CandidateLister
	BufferReader
	Configurer
	io.Closer
}

// Paths are the directories handed to engine creation. The bridge treats
// both as opaque strings.
type Paths struct {
	DataDir     string
	UserDataDir string
}

// Factory creates an engine. It may block on I/O and must not be called on
// a host's message-handling path.
type Factory func(ctx context.Context, paths Paths) (Engine, error)
