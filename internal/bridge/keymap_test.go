package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chewbridge/internal/engine"
)

func TestApplyKeyNamed(t *testing.T) {
	names := []string{
		"Backspace", "Tab", "Enter", "Shift", "CapsLock", "Esc", "Space",
		"PageUp", "PageDown", "End", "Home", "Left", "Up", "Right", "Down", "Delete",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			f := &fakeEngine{}
			assert.Equal(t, KeyNamed, ApplyKey(f, name))
			require.Len(t, f.ops, 1)
			assert.Equal(t, name, f.ops[0].String())
			assert.Empty(t, f.chars)
		})
	}
}

func TestApplyKeyBlankIsSpace(t *testing.T) {
	f := &fakeEngine{}
	assert.Equal(t, KeyNamed, ApplyKey(f, " "))
	assert.Equal(t, []engine.Op{engine.OpSpace}, f.ops)
	assert.Empty(t, f.chars)
}

func TestApplyKeyDefault(t *testing.T) {
	for _, name := range []string{"a", "1", ",", "ㄅ", "中"} {
		t.Run(name, func(t *testing.T) {
			f := &fakeEngine{}
			assert.Equal(t, KeyDefault, ApplyKey(f, name))
			assert.Equal(t, []rune(name), f.chars)
			assert.Empty(t, f.ops)
		})
	}
}

func TestApplyKeyIgnored(t *testing.T) {
	for _, name := range []string{"", "F13", "enter", "ab", "Space "} {
		t.Run(name, func(t *testing.T) {
			f := &fakeEngine{}
			assert.Equal(t, KeyIgnored, ApplyKey(f, name))
			assert.Empty(t, f.ops)
			assert.Empty(t, f.chars)
		})
	}
}

func TestLookupKey(t *testing.T) {
	op, ok := LookupKey("PageDown")
	assert.True(t, ok)
	assert.Equal(t, engine.OpPageDown, op)

	_, ok = LookupKey("Insert")
	assert.False(t, ok)
}
