package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chewbridge/internal/engine"
	"chewbridge/internal/logging"
	"chewbridge/internal/metrics"
	"chewbridge/internal/protocol"
)

func newReadyBridge(t *testing.T, f *fakeEngine) (*Bridge, *recorder) {
	t.Helper()
	rec := &recorder{}
	b, err := New(Config{Factory: staticFactory(f), Poster: rec})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := b.WaitReady(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	return b, rec
}

func TestNewRequiresFactoryAndPoster(t *testing.T) {
	_, err := New(Config{Poster: &recorder{}})
	assert.ErrorIs(t, err, ErrNoFactory)

	_, err = New(Config{Factory: staticFactory(&fakeEngine{})})
	assert.ErrorIs(t, err, ErrNoPoster)
}

func TestStartupOptionsApplied(t *testing.T) {
	f := &fakeEngine{layout: engine.LayoutHsu}
	b, _ := newReadyBridge(t, f)

	assert.Equal(t, StateReady, b.State())
	assert.NotEmpty(t, b.ID())
	assert.Equal(t, engine.LayoutDefault, f.layout)
	assert.Equal(t, 16, f.maxSymbolLen)
	assert.Equal(t, 1, f.addPhraseDir)
	assert.True(t, f.spaceAsSel)
	assert.Equal(t, []rune("1234567890"), f.selKeys)
	assert.Equal(t, 10, f.perPage)
}

func TestCustomStartupOptions(t *testing.T) {
	f := &fakeEngine{}
	rec := &recorder{}
	b, err := New(Config{
		Factory: staticFactory(f),
		Poster:  rec,
		Startup: &engine.StartupOptions{Layout: "KB_ET", MaxSymbolLen: 20, SelectionKeys: []rune("asdf")},
	})
	require.NoError(t, err)
	defer b.Close()
	<-b.Ready()

	assert.Equal(t, engine.LayoutET, f.layout)
	assert.Equal(t, 20, f.maxSymbolLen)
	assert.Equal(t, 4, f.perPage)
}

func TestKeyCommandRespondsWithContext(t *testing.T) {
	f := &fakeEngine{onKey: func(f *fakeEngine) { f.setText("ㄅ") }}
	b, rec := newReadyBridge(t, f)

	b.HandleMessage("key:1")
	assert.Equal(t, []rune{'1'}, f.chars)
	assert.Equal(t,
		`context:{"buffer":"ㄅ","lcch":["ㄅ"],"cursor":1,"edit_pos":1}`,
		rec.Last())
}

func TestUnmappedKeyStillResponds(t *testing.T) {
	f := &fakeEngine{}
	b, rec := newReadyBridge(t, f)

	b.HandleMessage("key:Hyper")
	assert.Empty(t, f.ops)
	assert.Empty(t, f.chars)
	assert.Equal(t, []string{`context:{"cursor":0,"edit_pos":0}`}, rec.Messages())
}

func TestLayoutCommand(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"KB_HSU", `layout:{"layout":"KB_HSU"}`},
		{"KB_DVORAK_HSU", `layout:{"layout":"KB_DVORAK_HSU"}`},
		{"UNKNOWN_LAYOUT", `layout:{"layout":"KB_DEFAULT"}`},
		{"", `layout:{"layout":"KB_DEFAULT"}`},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			b, rec := newReadyBridge(t, &fakeEngine{})
			b.HandleMessage("layout:" + tt.id)
			assert.Equal(t, []string{tt.want}, rec.Messages())
		})
	}
}

func TestUnrecognizedCommand(t *testing.T) {
	b, rec := newReadyBridge(t, &fakeEngine{})
	b.HandleMessage("foo:bar")
	b.HandleMessage("")
	assert.Equal(t, []string{
		"debug:unrecognized command, foo:bar",
		"debug:unrecognized command",
	}, rec.Messages())
}

func TestNonStringMessagesRejected(t *testing.T) {
	reg := metrics.NewRegistry("test", "")
	m := metrics.NewBridgeMetrics(reg)
	f := &fakeEngine{}
	rec := &recorder{}
	b, err := New(Config{Factory: staticFactory(f), Poster: rec, Metrics: m})
	require.NoError(t, err)
	defer b.Close()
	<-b.Ready()

	b.HandleMessage(42)
	b.HandleMessage([]byte("key:a"))
	b.HandleMessage(nil)

	assert.Empty(t, rec.Messages())
	assert.Empty(t, f.chars)
	assert.Equal(t, uint64(3), m.Rejected.Value())
}

func TestMessagesBeforeReadyDropped(t *testing.T) {
	release := make(chan struct{})
	f := &fakeEngine{}
	rec := &recorder{}
	b, err := New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			<-release
			return f, nil
		},
		Poster: rec,
	})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, StateInitializing, b.State())
	b.HandleMessage("key:a")
	b.HandleMessage("layout:KB_HSU")
	b.HandleMessage("foo")

	close(release)
	<-b.Ready()
	assert.Equal(t, StateReady, b.State())
	assert.Empty(t, rec.Messages())
	assert.Empty(t, f.chars)

	b.HandleMessage("key:a")
	assert.Len(t, rec.Messages(), 1)
}

func TestInitFailure(t *testing.T) {
	rec := &recorder{}
	b, err := New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			return nil, errors.New("no dictionary")
		},
		Poster: rec,
	})
	require.NoError(t, err)
	<-b.Ready()

	assert.Equal(t, StateTerminated, b.State())
	assert.Equal(t, []string{"debug:engine init failed, no dictionary"}, rec.Messages())

	b.HandleMessage("key:a")
	assert.Len(t, rec.Messages(), 1)
	assert.NoError(t, b.Close())
}

func TestInitFailurePostsUnderLock(t *testing.T) {
	release := make(chan struct{})
	var b *Bridge
	held := make(chan bool, 1)
	poster := PosterFunc(func(string) {
		locked := !b.mu.TryLock()
		if !locked {
			b.mu.Unlock()
		}
		held <- locked
	})

	var err error
	b, err = New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			<-release
			return nil, errors.New("no dictionary")
		},
		Poster: poster,
	})
	require.NoError(t, err)
	close(release)
	<-b.Ready()

	select {
	case locked := <-held:
		assert.True(t, locked)
	default:
		t.Fatal("init failure was not posted")
	}
	assert.NoError(t, b.Close())
}

func TestInitNilEngine(t *testing.T) {
	rec := &recorder{}
	b, err := New(Config{Factory: staticFactory(nil), Poster: rec})
	require.NoError(t, err)
	<-b.Ready()

	assert.Equal(t, StateTerminated, b.State())
	kind, _ := protocol.ParseOutbound(rec.Last())
	assert.Equal(t, protocol.KindDebug, kind)
}

func TestInitPanicRecovered(t *testing.T) {
	reports := make(chan logging.CrashReport, 1)
	prev := logging.DefaultCrashHandler()
	logging.SetDefaultCrashHandler(logging.NewCrashHandler(logging.CrashHandlerConfig{
		Component: "bridge-test",
		OnCrash:   func(r logging.CrashReport) { reports <- r },
	}))
	t.Cleanup(func() { logging.SetDefaultCrashHandler(prev) })

	rec := &recorder{}
	b, err := New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			panic("corrupt data")
		},
		Poster: rec,
	})
	require.NoError(t, err)
	<-b.Ready()

	assert.Equal(t, StateTerminated, b.State())
	assert.Contains(t, rec.Last(), "corrupt data")

	select {
	case r := <-reports:
		assert.Equal(t, "corrupt data", r.PanicValue)
		assert.Equal(t, "engine init", r.Context["stage"])
	default:
		t.Fatal("no crash report")
	}
}

func TestPathsPassedThrough(t *testing.T) {
	var got engine.Paths
	want := engine.Paths{DataDir: "/usr/share/chewing", UserDataDir: "/home/u/.chewing"}
	b, err := New(Config{
		Factory: func(_ context.Context, p engine.Paths) (engine.Engine, error) {
			got = p
			return &fakeEngine{}, nil
		},
		Poster: &recorder{},
		Paths:  want,
	})
	require.NoError(t, err)
	defer b.Close()
	<-b.Ready()
	assert.Equal(t, want, got)
}

func TestCloseReleasesEngineOnce(t *testing.T) {
	f := &fakeEngine{}
	b, rec := newReadyBridge(t, f)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, f.closeCount())
	assert.Equal(t, StateTerminated, b.State())

	b.HandleMessage("key:a")
	assert.Empty(t, rec.Messages())
}

func TestCloseDuringInit(t *testing.T) {
	release := make(chan struct{})
	f := &fakeEngine{}
	rec := &recorder{}
	b, err := New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			<-release
			return f, nil
		},
		Poster: rec,
	})
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- b.Close() }()

	select {
	case <-done:
		t.Fatal("Close returned before initialization finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateTerminated, b.State())
	assert.Equal(t, 1, f.closeCount())
	assert.Empty(t, rec.Messages())
}

func TestCloseCancelsFactoryContext(t *testing.T) {
	rec := &recorder{}
	b, err := New(Config{
		Factory: func(ctx context.Context, _ engine.Paths) (engine.Engine, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Poster: rec,
	})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.Equal(t, StateTerminated, b.State())
	assert.Empty(t, rec.Messages())
}

func TestConcurrentMessagesSerialized(t *testing.T) {
	f := &fakeEngine{}
	b, rec := newReadyBridge(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.HandleMessage("key:a")
		}()
	}
	wg.Wait()

	assert.Len(t, f.chars, 50)
	assert.Len(t, rec.Messages(), 50)
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry("test", "")
	m := metrics.NewBridgeMetrics(reg)
	rec := &recorder{}
	b, err := New(Config{Factory: staticFactory(&fakeEngine{}), Poster: rec, Metrics: m})
	require.NoError(t, err)
	<-b.Ready()

	assert.Equal(t, int64(1), m.ActiveBridges.Value())
	assert.Equal(t, int64(1), m.ReadyBridges.Value())

	b.HandleMessage("key:Left")
	b.HandleMessage("nope")
	assert.Equal(t, uint64(2), m.MessagesHandled.Value())
	assert.Equal(t, uint64(1), m.Unrecognized.Value())
	assert.Equal(t, uint64(2), m.HandleDuration.Count())
	assert.Equal(t, uint64(2), m.Posted.Value())

	require.NoError(t, b.Close())
	b.HandleMessage("key:Left")
	assert.Equal(t, uint64(1), m.MessagesDropped.Value())
	assert.Equal(t, int64(0), m.ActiveBridges.Value())
	assert.Equal(t, int64(0), m.ReadyBridges.Value())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestSnapshot(t *testing.T) {
	release := make(chan struct{})
	f := &fakeEngine{}
	f.setText("AB")
	b, err := New(Config{
		Factory: func(context.Context, engine.Paths) (engine.Engine, error) {
			<-release
			return f, nil
		},
		Poster: &recorder{},
	})
	require.NoError(t, err)

	_, err = b.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)

	close(release)
	<-b.Ready()
	c, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "AB", *c.Buffer)
	assert.Equal(t, 2, c.Cursor)

	require.NoError(t, b.Close())
	_, err = b.Snapshot()
	assert.ErrorIs(t, err, ErrTerminated)
}
