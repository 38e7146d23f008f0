package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpString(t *testing.T) {
	assert.Equal(t, "Backspace", OpBackspace.String())
	assert.Equal(t, "Delete", OpDelete.String())
	assert.Equal(t, "Op(?)", Op(200).String())
}

func TestParseLayout(t *testing.T) {
	for code, id := range LayoutIDs {
		assert.Equal(t, Layout(code), ParseLayout(id), id)
		assert.Equal(t, id, Layout(code).String())
	}
	assert.Equal(t, LayoutUnknown, ParseLayout("KB_NOPE"))
	assert.Equal(t, LayoutUnknown, ParseLayout("kb_hsu"))
	assert.False(t, LayoutUnknown.Valid())
	assert.Equal(t, "KB_UNKNOWN", Layout(99).String())
}

func TestIntervalLen(t *testing.T) {
	assert.Equal(t, 2, Interval{From: 1, To: 3}.Len())
	assert.Equal(t, 0, Interval{From: 4, To: 4}.Len())
}

// configRecorder implements only what ApplyStartup calls.
type configRecorder struct {
	Engine

	layout    Layout
	maxLen    int
	direction int
	space     bool
	keys      []rune
	perPage   int
}

func (r *configRecorder) LayoutCode(id string) Layout { return ParseLayout(id) }
func (r *configRecorder) SetLayout(code Layout) { r.layout = code }
func (r *configRecorder) SetMaxSymbolLen(n int) { r.maxLen = n }
func (r *configRecorder) SetAddPhraseDirection(dir int) { r.direction = dir }
func (r *configRecorder) SetSpaceAsSelection(on bool) { r.space = on }
func (r *configRecorder) SetSelectionKeys(keys []rune) { r.keys = keys }
func (r *configRecorder) SetCandidatesPerPage(n int) { r.perPage = n }

func TestApplyStartupDefaults(t *testing.T) {
	r := &configRecorder{}
	ApplyStartup(r, DefaultStartupOptions())

	assert.Equal(t, LayoutDefault, r.layout)
	assert.Equal(t, 16, r.maxLen)
	assert.Equal(t, 1, r.direction)
	assert.True(t, r.space)
	assert.Equal(t, []rune("1234567890"), r.keys)
	assert.Equal(t, 10, r.perPage)
}

func TestApplyStartup(t *testing.T) {
	tests := []struct {
		name    string
		opts    StartupOptions
		layout  Layout
		keys    string
		perPage int
	}{
		{
			name:    "empty layout falls back to default",
			opts:    StartupOptions{SelectionKeys: []rune("asdf")},
			layout:  LayoutDefault,
			keys:    "asdf",
			perPage: 4,
		},
		{
			name:    "named layout",
			opts:    StartupOptions{Layout: "KB_ET26", SelectionKeys: []rune("123")},
			layout:  LayoutET26,
			keys:    "123",
			perPage: 3,
		},
		{
			name:    "unknown layout passes through",
			opts:    StartupOptions{Layout: "KB_NOPE", SelectionKeys: []rune("1")},
			layout:  LayoutUnknown,
			keys:    "1",
			perPage: 1,
		},
		{
			name:    "selection keys are capped",
			opts:    StartupOptions{SelectionKeys: []rune("1234567890ab")},
			layout:  LayoutDefault,
			keys:    "1234567890",
			perPage: MaxSelectionKeys,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &configRecorder{}
			ApplyStartup(r, tt.opts)
			assert.Equal(t, tt.layout, r.layout)
			assert.Equal(t, []rune(tt.keys), r.keys)
			assert.Equal(t, tt.perPage, r.perPage)
		})
	}
}
