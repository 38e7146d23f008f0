package phonetic

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chewbridge/internal/bridge"
	"chewbridge/internal/engine"
	"chewbridge/internal/protocol"
)

func TestFactoryWithoutUserDir(t *testing.T) {
	factory := NewFactory(FactoryConfig{})
	e, err := factory(context.Background(), engine.Paths{DataDir: "testdata"})
	require.NoError(t, err)
	defer e.Close()

	e.HandleDefault('g')
	e.HandleDefault('4')
	assert.Equal(t, "是", e.BufferString())
}

func TestFactoryCreatesUserPhraseStore(t *testing.T) {
	userDir := t.TempDir()
	factory := NewFactory(FactoryConfig{BusyTimeout: time.Second})
	e, err := factory(context.Background(), engine.Paths{DataDir: "testdata", UserDataDir: userDir})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = os.Stat(filepath.Join(userDir, UserPhraseFile))
	assert.NoError(t, err)
}

func TestFactoryUserPhrasePathOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")
	factory := NewFactory(FactoryConfig{UserPhrasePath: path})
	e, err := factory(context.Background(), engine.Paths{DataDir: "testdata"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestUserPhrasePath(t *testing.T) {
	assert.Empty(t, UserPhrasePath("", engine.Paths{DataDir: "testdata"}))
	assert.Equal(t, filepath.Join("u", UserPhraseFile), UserPhrasePath("", engine.Paths{UserDataDir: "u"}))
	assert.Equal(t, "x.db", UserPhrasePath("x.db", engine.Paths{UserDataDir: "u"}))
}

func TestFactoryErrors(t *testing.T) {
	factory := NewFactory(FactoryConfig{})

	_, err := factory(context.Background(), engine.Paths{DataDir: t.TempDir()})
	assert.ErrorIs(t, err, engine.ErrCreate)
	assert.ErrorIs(t, err, ErrDictionary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = factory(ctx, engine.Paths{DataDir: "testdata"})
	assert.ErrorIs(t, err, context.Canceled)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err = factory(context.Background(), engine.Paths{DataDir: "testdata", UserDataDir: blocker})
	assert.ErrorIs(t, err, engine.ErrCreate)
}

type outbox struct {
	mu   sync.Mutex
	msgs []string
}

func (o *outbox) Post(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
}

func (o *outbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		return ""
	}
	return o.msgs[len(o.msgs)-1]
}

func TestBridgeWithPhoneticEngine(t *testing.T) {
	out := &outbox{}
	b, err := bridge.New(bridge.Config{
		Factory: NewFactory(FactoryConfig{}),
		Poster:  out,
		Paths:   engine.Paths{DataDir: "testdata"},
	})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ready, err := b.WaitReady(ctx)
	require.NoError(t, err)
	require.True(t, ready)

	for _, k := range []string{"h", "k", "4", "g", "4"} {
		b.HandleMessage(protocol.KeyCommand(k))
		require.NoError(t, protocol.ValidateMessage(out.last()))
	}
	assert.Equal(t,
		`context:{"buffer":"測試","interval":[{"from":0,"to":2}],"lcch":["測試"],"cursor":2,"edit_pos":2}`,
		out.last())

	b.HandleMessage(protocol.KeyCommand("Enter"))
	assert.Equal(t, `context:{"commit":"測試","cursor":0,"cch":"測試","edit_pos":0}`, out.last())

	b.HandleMessage(protocol.KeyCommand("Enter"))
	assert.Equal(t, `context:{"cursor":0,"ignore":true,"edit_pos":0}`, out.last())

	b.HandleMessage(protocol.LayoutCommand("KB_HSU"))
	assert.Equal(t, `layout:{"layout":"KB_HSU"}`, out.last())

	b.HandleMessage(protocol.KeyCommand("c"))
	assert.Equal(t, `context:{"bopomofo":"ㄒ","cursor":0,"keystroke":"ㄒ","edit_pos":0}`, out.last())
	require.NoError(t, protocol.ValidateMessage(out.last()))
}
