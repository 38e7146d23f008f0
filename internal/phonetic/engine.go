package phonetic

import (
	"log/slog"
	"strings"

	"chewbridge/internal/engine"
	"chewbridge/internal/store"
)

// symbol is one composed character. Literal characters typed in English
// mode, or keys outside the keyboard, carry no phone.
type symbol struct {
	text  string
	phone uint16
}

// Engine is a bopomofo composition engine. It is not safe for concurrent
// use; the bridge serializes access.
type Engine struct {
	dict   *Dictionary
	user   *userPhrases
	logger *slog.Logger

	layout   engine.Layout
	keyboard *Keyboard
	reading  Syllable

	symbols   []symbol
	cursor    int
	pinned    []engine.Interval // ranges whose text the user picked
	breaks    map[int]bool      // no phrase spans from i-1 into i
	intervals []engine.Interval

	cand candidateList

	commit    string
	hasCommit bool
	aux       string
	ignore    bool
	absorb    bool

	english   bool
	fullShape bool

	maxSymbolLen     int
	rearward         bool
	spaceAsSelection bool
	selectionKeys    []rune
	perPage          int

	ivPos   int
	candPos int
	closed  bool
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine over dict. The store may be nil, in which case
// nothing is learned.
func New(dict *Dictionary, st *store.Store, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "phonetic")
	user, err := loadUserPhrases(st, logger)
	if err != nil {
		return nil, err
	}

	defaults := engine.DefaultStartupOptions()
	return &Engine{
		dict:             dict,
		user:             user,
		logger:           logger,
		layout:           engine.LayoutDefault,
		keyboard:         dachen,
		breaks:           make(map[int]bool),
		maxSymbolLen:     defaults.MaxSymbolLen,
		spaceAsSelection: defaults.SpaceAsSelection,
		selectionKeys:    defaults.SelectionKeys,
		perPage:          defaults.CandidatesPerPage(),
	}, nil
}

// Layout codes.

func (e *Engine) LayoutCode(id string) engine.Layout {
	return engine.ParseLayout(id)
}

// SetLayout switches keyboards. The unknown code selects the default
// layout. Any partial reading is dropped.
func (e *Engine) SetLayout(code engine.Layout) {
	if !code.Valid() {
		code = engine.LayoutDefault
	}
	e.layout = code
	e.keyboard = KeyboardFor(code)
	e.reading = Syllable{}
}

func (e *Engine) Layout() engine.Layout {
	return e.layout
}

func (e *Engine) LayoutString(code engine.Layout) string {
	return code.String()
}

// Configuration.

func (e *Engine) SetMaxSymbolLen(n int) {
	if n < 1 {
		n = 1
	}
	e.maxSymbolLen = n
}

// SetAddPhraseDirection picks which phrase the candidate list offers first
// when the cursor is inside the buffer: 0 looks at phrases ending at the
// cursor, anything else at phrases starting there.
func (e *Engine) SetAddPhraseDirection(dir int) {
	e.rearward = dir == 0
}

func (e *Engine) SetSpaceAsSelection(on bool) {
	e.spaceAsSelection = on
}

func (e *Engine) SetSelectionKeys(keys []rune) {
	e.selectionKeys = append([]rune(nil), keys...)
}

func (e *Engine) SetCandidatesPerPage(n int) {
	if n < 1 {
		n = 1
	}
	e.perPage = n
}

// Candidates.

func (e *Engine) CandidateTotal() int {
	if !e.cand.open {
		return 0
	}
	return len(e.cand.items)
}

func (e *Engine) CandidateEnumerate() {
	e.candPos = e.cand.page * e.perPage
}

func (e *Engine) CandidateHasNext() bool {
	return e.cand.open && e.candPos < len(e.cand.items)
}

func (e *Engine) CandidateString() string {
	if !e.CandidateHasNext() {
		return ""
	}
	s := e.cand.items[e.candPos].text
	e.candPos++
	return s
}

func (e *Engine) CandidatesPerPage() int {
	return e.perPage
}

func (e *Engine) CandidateTotalPages() int {
	return e.cand.totalPages(e.perPage)
}

func (e *Engine) CandidateCurrentPage() int {
	return e.cand.page
}

// Buffer.

func (e *Engine) BufferCheck() bool {
	return len(e.symbols) > 0
}

func (e *Engine) BufferString() string {
	var b strings.Builder
	for _, s := range e.symbols {
		b.WriteString(s.text)
	}
	return b.String()
}

func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	for i, s := range e.symbols {
		out[i] = s.text
	}
	return out
}

func (e *Engine) IntervalEnumerate() {
	e.ivPos = 0
}

func (e *Engine) IntervalHasNext() bool {
	return e.ivPos < len(e.intervals)
}

func (e *Engine) IntervalNext() engine.Interval {
	if !e.IntervalHasNext() {
		return engine.Interval{}
	}
	iv := e.intervals[e.ivPos]
	e.ivPos++
	return iv
}

func (e *Engine) BopomofoCheck() bool {
	return !e.reading.Empty()
}

func (e *Engine) BopomofoString() string {
	return e.reading.Reading()
}

func (e *Engine) AuxCheck() bool {
	return e.aux != ""
}

func (e *Engine) AuxString() string {
	return e.aux
}

func (e *Engine) CommitCheck() bool {
	return e.hasCommit
}

func (e *Engine) CommitString() string {
	return e.commit
}

func (e *Engine) Cursor() int {
	return e.cursor
}

func (e *Engine) KeystrokeIgnore() bool {
	return e.ignore
}

func (e *Engine) KeystrokeAbsorb() bool {
	return e.absorb
}

// Close releases the user phrase store. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.user.close()
}
