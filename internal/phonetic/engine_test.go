package phonetic

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chewbridge/internal/engine"
	"chewbridge/internal/store"
)

func newTestEngine(t *testing.T, st *store.Store) *Engine {
	t.Helper()
	e, err := New(loadTestDictionary(t), st, nil)
	require.NoError(t, err)
	engine.ApplyStartup(e, engine.DefaultStartupOptions())
	t.Cleanup(func() { e.Close() })
	return e
}

// typeKeys feeds keys one by one; a space is sent as the Space key.
func typeKeys(e *Engine, keys string) {
	for _, r := range keys {
		if r == ' ' {
			e.Handle(engine.OpSpace)
			continue
		}
		e.HandleDefault(r)
	}
}

func press(e *Engine, ops ...engine.Op) {
	for _, op := range ops {
		e.Handle(op)
	}
}

func candidatePage(e *Engine) []string {
	var out []string
	e.CandidateEnumerate()
	for i := 0; i < e.CandidatesPerPage() && e.CandidateHasNext(); i++ {
		out = append(out, e.CandidateString())
	}
	return out
}

func intervals(e *Engine) []engine.Interval {
	var out []engine.Interval
	e.IntervalEnumerate()
	for e.IntervalHasNext() {
		out = append(out, e.IntervalNext())
	}
	return out
}

func TestComposePhrase(t *testing.T) {
	e := newTestEngine(t, nil)

	typeKeys(e, "hk")
	assert.True(t, e.BopomofoCheck())
	assert.Equal(t, "ㄘㄜ", e.BopomofoString())
	assert.False(t, e.BufferCheck())

	typeKeys(e, "4g4")
	assert.False(t, e.BopomofoCheck())
	assert.Equal(t, "測試", e.BufferString())
	assert.Equal(t, []string{"測", "試"}, e.Symbols())
	assert.Equal(t, []engine.Interval{{From: 0, To: 2}}, intervals(e))
	assert.Equal(t, 2, e.Cursor())
	assert.False(t, e.KeystrokeIgnore())
	assert.False(t, e.KeystrokeAbsorb())
}

func TestComposeSingleCharacters(t *testing.T) {
	tests := []struct {
		keys string
		want string
	}{
		{"g4", "是"},
		{"u ", "一"},
		{"5j/ ", "中"},
		{"jp6", "文"},
		{"su3", "你"},
		{"ji3ap7", "我們"},
		{"vup ", "新"},
	}
	for _, tt := range tests {
		t.Run(tt.keys, func(t *testing.T) {
			e := newTestEngine(t, nil)
			typeKeys(e, tt.keys)
			assert.Equal(t, tt.want, e.BufferString())
		})
	}
}

func TestUnknownSyllableKeepsReading(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "r8 ")
	assert.True(t, e.KeystrokeAbsorb())
	assert.False(t, e.BufferCheck())
	assert.Equal(t, "ㄐㄚ", e.BopomofoString())

	press(e, engine.OpEsc)
	assert.False(t, e.BopomofoCheck())
}

func TestToneWithoutReadingIsAbsorbed(t *testing.T) {
	e := newTestEngine(t, nil)
	e.HandleDefault('3')
	assert.True(t, e.KeystrokeAbsorb())
	assert.False(t, e.BopomofoCheck())
	assert.False(t, e.BufferCheck())
}

func TestEnterCommits(t *testing.T) {
	e := newTestEngine(t, nil)

	press(e, engine.OpEnter)
	assert.True(t, e.KeystrokeIgnore())
	assert.False(t, e.CommitCheck())

	typeKeys(e, "hk4g4")
	press(e, engine.OpEnter)
	assert.True(t, e.CommitCheck())
	assert.Equal(t, "測試", e.CommitString())
	assert.False(t, e.BufferCheck())
	assert.Equal(t, 0, e.Cursor())
	assert.Empty(t, intervals(e))

	// The commit only lasts one keystroke.
	typeKeys(e, "g")
	assert.False(t, e.CommitCheck())
	assert.Equal(t, "", e.CommitString())
}

func TestEnterWithPendingReadingIsAbsorbed(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "g4h")
	press(e, engine.OpEnter)
	assert.True(t, e.KeystrokeAbsorb())
	assert.False(t, e.CommitCheck())
	assert.Equal(t, "是", e.BufferString())
}

func TestCandidatesForSingleCharacter(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "g4")

	press(e, engine.OpDown)
	require.Equal(t, 5, e.CandidateTotal())
	assert.Equal(t, []string{"是", "事", "試", "市", "世"}, candidatePage(e))
	assert.Equal(t, 1, e.CandidateTotalPages())
	assert.Equal(t, 0, e.CandidateCurrentPage())

	e.HandleDefault('2')
	assert.Equal(t, 0, e.CandidateTotal())
	assert.Equal(t, "事", e.BufferString())
}

func TestCandidatesAtEndOfPhrase(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "hk4g4")

	press(e, engine.OpDown)
	assert.Equal(t, []string{"測試", "是", "事", "試", "市", "世"}, candidatePage(e))
}

func TestCandidatePaging(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetCandidatesPerPage(2)
	typeKeys(e, "hk4g4")
	press(e, engine.OpDown)

	assert.Equal(t, 3, e.CandidateTotalPages())
	assert.Equal(t, []string{"測試", "是"}, candidatePage(e))

	press(e, engine.OpSpace)
	assert.Equal(t, 1, e.CandidateCurrentPage())
	assert.Equal(t, []string{"事", "試"}, candidatePage(e))

	press(e, engine.OpPageUp, engine.OpPageUp)
	assert.Equal(t, 2, e.CandidateCurrentPage())
	assert.Equal(t, []string{"市", "世"}, candidatePage(e))

	// Selection keys beyond the page size do nothing.
	e.HandleDefault('3')
	assert.True(t, e.KeystrokeAbsorb())
	assert.Equal(t, 6, e.CandidateTotal())

	e.HandleDefault('2')
	assert.Equal(t, "測世", e.BufferString())
	assert.Empty(t, intervals(e))
}

func TestCandidatesFromBufferStart(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "hk4g4")
	press(e, engine.OpHome)
	assert.False(t, e.KeystrokeAbsorb())
	assert.Equal(t, 0, e.Cursor())

	press(e, engine.OpDown)
	assert.Equal(t, []string{"測試", "測", "策", "廁"}, candidatePage(e))

	e.HandleDefault('3')
	assert.Equal(t, "策是", e.BufferString())
	assert.Empty(t, intervals(e))
	assert.Equal(t, 0, e.Cursor())
}

func TestCandidatesClosedByEscAndUp(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "g4")

	press(e, engine.OpDown)
	require.Equal(t, 5, e.CandidateTotal())
	press(e, engine.OpEsc)
	assert.Equal(t, 0, e.CandidateTotal())
	assert.Equal(t, 0, e.CandidateTotalPages())

	press(e, engine.OpDown, engine.OpUp)
	assert.Equal(t, 0, e.CandidateTotal())
	assert.Equal(t, "是", e.BufferString())
}

func TestCandidatesOnLiteralAreAbsorbed(t *testing.T) {
	e := newTestEngine(t, nil)
	e.HandleDefault('[')
	assert.Equal(t, "[", e.BufferString())

	press(e, engine.OpDown)
	assert.True(t, e.KeystrokeAbsorb())
	assert.Equal(t, 0, e.CandidateTotal())
}

func TestSpaceOpensCandidates(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "g4")
	press(e, engine.OpSpace)
	assert.Equal(t, 5, e.CandidateTotal())

	e.SetSpaceAsSelection(false)
	press(e, engine.OpEsc, engine.OpSpace)
	assert.Equal(t, "是 ", e.BufferString())
}

func TestEditing(t *testing.T) {
	t.Run("backspace reading", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "hk")
		press(e, engine.OpBackspace)
		assert.Equal(t, "ㄘ", e.BopomofoString())
		press(e, engine.OpBackspace)
		assert.False(t, e.BopomofoCheck())
		press(e, engine.OpBackspace)
		assert.True(t, e.KeystrokeIgnore())
	})

	t.Run("backspace symbol", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "hk4g4")
		press(e, engine.OpBackspace)
		assert.Equal(t, "測", e.BufferString())
		assert.Equal(t, 1, e.Cursor())
		assert.Empty(t, intervals(e))
	})

	t.Run("delete at start", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "hk4g4")
		press(e, engine.OpHome, engine.OpDelete)
		assert.Equal(t, "是", e.BufferString())
		assert.Equal(t, 0, e.Cursor())
	})

	t.Run("delete at end", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "g4")
		press(e, engine.OpDelete)
		assert.True(t, e.KeystrokeAbsorb())
	})

	t.Run("cursor movement", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "hk4g4")
		press(e, engine.OpLeft)
		assert.Equal(t, 1, e.Cursor())
		press(e, engine.OpEnd)
		assert.Equal(t, 2, e.Cursor())
		press(e, engine.OpRight)
		assert.True(t, e.KeystrokeAbsorb())
		assert.Equal(t, 2, e.Cursor())
	})

	t.Run("insert in the middle", func(t *testing.T) {
		e := newTestEngine(t, nil)
		typeKeys(e, "hk4g4")
		press(e, engine.OpLeft)
		typeKeys(e, "u ")
		assert.Equal(t, "測一是", e.BufferString())
		assert.Equal(t, 2, e.Cursor())
	})

	t.Run("keys on empty buffer", func(t *testing.T) {
		e := newTestEngine(t, nil)
		for _, op := range []engine.Op{engine.OpLeft, engine.OpHome, engine.OpUp, engine.OpDown, engine.OpEsc, engine.OpDelete, engine.OpTab, engine.OpPageDown} {
			press(e, op)
			assert.True(t, e.KeystrokeIgnore(), op.String())
		}
	})
}

func TestTabTogglesBreak(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "hk4g4")

	press(e, engine.OpTab)
	assert.Equal(t, "測是", e.BufferString())
	assert.Empty(t, intervals(e))

	press(e, engine.OpTab)
	assert.Equal(t, "測試", e.BufferString())
	assert.Equal(t, []engine.Interval{{From: 0, To: 2}}, intervals(e))
}

func TestMaxSymbolLenCommitsLeadingText(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetMaxSymbolLen(2)

	typeKeys(e, "u u ")
	assert.False(t, e.CommitCheck())

	typeKeys(e, "u ")
	assert.True(t, e.CommitCheck())
	assert.Equal(t, "一", e.CommitString())
	assert.Equal(t, "一一", e.BufferString())
	assert.Equal(t, 2, e.Cursor())
}

func TestMaxSymbolLenCommitsWholePhrase(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetMaxSymbolLen(2)

	typeKeys(e, "hk4g4u ")
	assert.Equal(t, "測試", e.CommitString())
	assert.Equal(t, "一", e.BufferString())
}

func TestLayouts(t *testing.T) {
	tests := []struct {
		name   string
		layout engine.Layout
		keys   string
		want   string
	}{
		{"eten", engine.LayoutET, "'r4", "測"},
		{"eten tone one", engine.LayoutET, "e ", "一"},
		{"hsu medial and final", engine.LayoutHsu, "ceed", "鞋"},
		{"hsu fuzzy palatal", engine.LayoutHsu, "j ", "之"},
		{"dvorak hsu shares table", engine.LayoutDvorakHsu, "j ", "之"},
		{"ibm falls back to standard", engine.LayoutIBM, "hk4", "測"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			e.SetLayout(tt.layout)
			assert.Equal(t, tt.layout, e.Layout())
			typeKeys(e, tt.keys)
			assert.Equal(t, tt.want, e.BufferString())
		})
	}
}

func TestSetLayoutUnknownResetsToDefault(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetLayout(engine.LayoutHsu)
	e.SetLayout(e.LayoutCode("KB_NOPE"))
	assert.Equal(t, engine.LayoutDefault, e.Layout())
	assert.Equal(t, "KB_DEFAULT", e.LayoutString(e.Layout()))
}

func TestSetLayoutDropsReading(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "hk")
	e.SetLayout(engine.LayoutET)
	assert.False(t, e.BopomofoCheck())
}

func TestEnglishMode(t *testing.T) {
	e := newTestEngine(t, nil)

	press(e, engine.OpCapsLock)
	assert.True(t, e.AuxCheck())
	assert.Equal(t, "English mode", e.AuxString())

	typeKeys(e, "hk")
	assert.Equal(t, "hk", e.BufferString())
	assert.False(t, e.BopomofoCheck())

	press(e, engine.OpCapsLock)
	assert.Equal(t, "Chinese mode", e.AuxString())
	typeKeys(e, "g4")
	assert.Equal(t, "hk是", e.BufferString())

	press(e, engine.OpEnter)
	assert.Equal(t, "hk是", e.CommitString())
	assert.False(t, e.AuxCheck())
}

func TestFullShape(t *testing.T) {
	e := newTestEngine(t, nil)
	press(e, engine.OpShift)
	assert.Equal(t, "Full-shape mode", e.AuxString())

	press(e, engine.OpCapsLock)
	e.HandleDefault('a')
	assert.Equal(t, "ａ", e.BufferString())

	press(e, engine.OpShift)
	assert.Equal(t, "Half-shape mode", e.AuxString())
	e.HandleDefault('a')
	assert.Equal(t, "ａa", e.BufferString())
}

func TestLiteralCharacters(t *testing.T) {
	e := newTestEngine(t, nil)
	typeKeys(e, "g4")
	e.HandleDefault('A')
	e.HandleDefault('[')
	assert.Equal(t, "是A[", e.BufferString())

	e.HandleDefault('\t')
	assert.True(t, e.KeystrokeIgnore())
}

func TestLearnPhrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.sqlite3")
	st, err := store.Open(path)
	require.NoError(t, err)

	e := newTestEngine(t, st)
	typeKeys(e, "w96j0 ")
	assert.Equal(t, "台灣", e.BufferString())

	press(e, engine.OpHome, engine.OpDown)
	assert.Equal(t, []string{"台灣", "臺灣", "台", "臺"}, candidatePage(e))
	e.HandleDefault('2')
	assert.Equal(t, "臺灣", e.BufferString())

	press(e, engine.OpEnter)
	assert.Equal(t, "臺灣", e.CommitString())
	assert.Equal(t, "已加入：臺灣", e.AuxString())

	typeKeys(e, "w96j0 ")
	assert.Equal(t, "臺灣", e.BufferString())
	press(e, engine.OpEnd, engine.OpDown)
	assert.Equal(t, "臺灣", candidatePage(e)[0])
	press(e, engine.OpEsc, engine.OpEnter)
	assert.False(t, e.AuxCheck())
	require.NoError(t, e.Close())

	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	phones, err := ParsePhones("ㄊㄞˊ ㄨㄢ")
	require.NoError(t, err)
	p, err := st.Get(phones, "臺灣")
	require.NoError(t, err)
	assert.Equal(t, 1, p.UserFreq)
	assert.Equal(t, 3000, p.OrigFreq)
	assert.Equal(t, 6000, p.MaxFreq)

	lifetime, err := st.Lifetime()
	require.NoError(t, err)
	assert.Equal(t, int64(2), lifetime)
}

func TestLearnedPhrasesSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.sqlite3")
	st, err := store.Open(path)
	require.NoError(t, err)

	phones, err := ParsePhones("ㄊㄞˊ ㄨㄢ")
	require.NoError(t, err)
	require.NoError(t, st.Upsert(store.UserPhrase{Phrase: "臺灣", Phones: phones, UserFreq: 3}))

	e := newTestEngine(t, st)
	typeKeys(e, "w96j0 ")
	assert.Equal(t, "臺灣", e.BufferString())
}

func TestSingleCharacterChoiceIsNotLearned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.sqlite3")
	st, err := store.Open(path)
	require.NoError(t, err)

	e := newTestEngine(t, st)
	typeKeys(e, "g4")
	press(e, engine.OpDown)
	e.HandleDefault('2')
	press(e, engine.OpEnter)
	assert.Equal(t, "事", e.CommitString())
	assert.False(t, e.AuxCheck())
}

func TestCloseIsIdempotent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "user.sqlite3"))
	require.NoError(t, err)
	e, err := New(loadTestDictionary(t), st, nil)
	require.NoError(t, err)
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}

func TestUserPhraseEditsAreSeenLive(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "user.sqlite3"))
	require.NoError(t, err)
	e := newTestEngine(t, st)

	phones, err := ParsePhones("ㄊㄞˊ ㄨㄢ")
	require.NoError(t, err)
	require.NoError(t, st.Upsert(store.UserPhrase{Phrase: "臺灣", Phones: phones, UserFreq: 3}))

	typeKeys(e, "w96j0 ")
	assert.Equal(t, "臺灣", e.BufferString())
	press(e, engine.OpEnter)
	assert.Equal(t, "臺灣", e.CommitString())

	removed, err := st.Remove(phones, "臺灣")
	require.NoError(t, err)
	require.True(t, removed)

	typeKeys(e, "w96j0 ")
	assert.Equal(t, "台灣", e.BufferString())
}

func TestLearnCarriesHighestUserFrequency(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "user.sqlite3"))
	require.NoError(t, err)
	defer st.Close()

	phones, err := ParsePhones("ㄊㄞˊ ㄨㄢ")
	require.NoError(t, err)
	require.NoError(t, st.Upsert(store.UserPhrase{Phrase: "台灣", Phones: phones, UserFreq: 9000}))

	u, err := loadUserPhrases(st, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	added, err := u.learn("臺灣", phones, loadTestDictionary(t))
	require.NoError(t, err)
	assert.True(t, added)

	p, err := st.Get(phones, "臺灣")
	require.NoError(t, err)
	assert.Equal(t, 9000, p.MaxFreq)
	assert.Equal(t, 3000, p.OrigFreq)
}
