package bridge

import (
	"context"
	"sync"

	"chewbridge/internal/engine"
)

// fakeEngine is a scripted engine. Tests set its state fields directly and
// inspect the recorded operations.
type fakeEngine struct {
	ops   []engine.Op
	chars []rune

	layout engine.Layout

	cands      []string
	perPage    int
	totalPages int
	curPage    int
	candPos    int

	buffer    string
	hasBuffer bool
	symbols   []string
	intervals []engine.Interval
	ivPos     int

	bopomofo, aux, commit          string
	hasBopomofo, hasAux, hasCommit bool

	cursor         int
	ignore, absorb bool

	maxSymbolLen int
	addPhraseDir int
	spaceAsSel   bool
	selKeys      []rune

	mu     sync.Mutex
	closed int

	// onKey lets a test mutate state in response to input.
	onKey func(f *fakeEngine)
}

var _ engine.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) Handle(op engine.Op) {
	f.ops = append(f.ops, op)
	if f.onKey != nil {
		f.onKey(f)
	}
}

func (f *fakeEngine) HandleDefault(ch rune) {
	f.chars = append(f.chars, ch)
	if f.onKey != nil {
		f.onKey(f)
	}
}

func (f *fakeEngine) LayoutCode(id string) engine.Layout { return engine.ParseLayout(id) }

func (f *fakeEngine) SetLayout(code engine.Layout) {
	if !code.Valid() {
		code = engine.LayoutDefault
	}
	f.layout = code
}

func (f *fakeEngine) Layout() engine.Layout { return f.layout }
func (f *fakeEngine) LayoutString(code engine.Layout) string { return code.String() }

func (f *fakeEngine) CandidateTotal() int { return len(f.cands) }
func (f *fakeEngine) CandidateEnumerate() { f.candPos = f.curPage * f.perPage }
func (f *fakeEngine) CandidateHasNext() bool { return f.candPos < len(f.cands) }
func (f *fakeEngine) CandidatesPerPage() int { return f.perPage }
func (f *fakeEngine) CandidateTotalPages() int { return f.totalPages }
func (f *fakeEngine) CandidateCurrentPage() int { return f.curPage }
func (f *fakeEngine) CandidateString() string {
	s := f.cands[f.candPos]
	f.candPos++
	return s
}

func (f *fakeEngine) BufferCheck() bool { return f.hasBuffer }
func (f *fakeEngine) BufferString() string { return f.buffer }
func (f *fakeEngine) Symbols() []string { return f.symbols }
func (f *fakeEngine) IntervalEnumerate() { f.ivPos = 0 }
func (f *fakeEngine) IntervalHasNext() bool { return f.ivPos < len(f.intervals) }
func (f *fakeEngine) IntervalNext() engine.Interval {
	iv := f.intervals[f.ivPos]
	f.ivPos++
	return iv
}

func (f *fakeEngine) BopomofoCheck() bool { return f.hasBopomofo }
func (f *fakeEngine) BopomofoString() string { return f.bopomofo }
func (f *fakeEngine) AuxCheck() bool { return f.hasAux }
func (f *fakeEngine) AuxString() string { return f.aux }
func (f *fakeEngine) CommitCheck() bool { return f.hasCommit }
func (f *fakeEngine) CommitString() string { return f.commit }
func (f *fakeEngine) Cursor() int { return f.cursor }
func (f *fakeEngine) KeystrokeIgnore() bool { return f.ignore }
func (f *fakeEngine) KeystrokeAbsorb() bool { return f.absorb }

func (f *fakeEngine) SetMaxSymbolLen(n int) { f.maxSymbolLen = n }
func (f *fakeEngine) SetAddPhraseDirection(d int) { f.addPhraseDir = d }
func (f *fakeEngine) SetSpaceAsSelection(on bool) { f.spaceAsSel = on }
func (f *fakeEngine) SetSelectionKeys(keys []rune) { f.selKeys = keys }
func (f *fakeEngine) SetCandidatesPerPage(n int) { f.perPage = n }

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeEngine) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// setText fills the buffer with one symbol per rune.
func (f *fakeEngine) setText(s string) {
	f.symbols = f.symbols[:0]
	for _, r := range s {
		f.symbols = append(f.symbols, string(r))
	}
	f.buffer = s
	f.hasBuffer = s != ""
	f.cursor = len(f.symbols)
}

func staticFactory(e engine.Engine) engine.Factory {
	return func(context.Context, engine.Paths) (engine.Engine, error) {
		return e, nil
	}
}

// recorder collects posted messages.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Post(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func (r *recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}
