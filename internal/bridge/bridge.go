package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chewbridge/internal/engine"
	"chewbridge/internal/logging"
	"chewbridge/internal/metrics"
	"chewbridge/internal/protocol"
)

// Config configures a Bridge.
type Config struct {
	// Factory creates the engine. Required.
	Factory engine.Factory

	// Poster receives outbound messages. Required.
	Poster Poster

	// Paths are handed to Factory unchanged.
	Paths engine.Paths

	// Startup is applied to the engine once it has been created. The zero
	// value means engine.DefaultStartupOptions.
	Startup *engine.StartupOptions

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *metrics.BridgeMetrics

	// ID names the bridge in logs. A random one is generated when empty.
	ID string
}

// Bridge dispatches host messages to one engine.
type Bridge struct {
	id      string
	poster  Poster
	logger  *slog.Logger
	metrics *metrics.BridgeMetrics

	state  atomic.Int32
	engine atomic.Pointer[engineRef]

	// ready is closed when initialization has finished, successfully or not.
	ready  chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex // serializes message handling and teardown
	closeOnce sync.Once
	closeErr  error
}

type engineRef struct {
	engine.Engine
}

// New creates a bridge and starts engine initialization in the background.
// It returns as soon as initialization has been scheduled.
func New(cfg Config) (*Bridge, error) {
	if cfg.Factory == nil {
		return nil, ErrNoFactory
	}
	if cfg.Poster == nil {
		return nil, ErrNoPoster
	}

	startup := engine.DefaultStartupOptions()
	if cfg.Startup != nil {
		startup = *cfg.Startup
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		id:      id,
		poster:  cfg.Poster,
		logger:  logger.With("component", "bridge", "bridge_id", id),
		metrics: cfg.Metrics,
		ready:   make(chan struct{}),
		cancel:  cancel,
	}
	b.state.Store(int32(StateInitializing))
	if b.metrics != nil {
		b.metrics.ActiveBridges.Inc()
	}

	go b.initialize(ctx, cfg.Factory, cfg.Paths, startup)
	return b, nil
}

// ID returns the bridge identifier.
func (b *Bridge) ID() string {
	return b.id
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Ready returns a channel closed once initialization has finished. Check
// State to learn whether it succeeded.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// WaitReady blocks until initialization finishes or ctx is done, and
// reports whether the bridge is ready.
func (b *Bridge) WaitReady(ctx context.Context) (bool, error) {
	select {
	case <-b.Ready():
		return b.State() == StateReady, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *Bridge) initialize(ctx context.Context, factory engine.Factory, paths engine.Paths, startup engine.StartupOptions) {
	defer close(b.ready)
	start := time.Now()

	eng, err := createEngine(ctx, factory, paths, startup)
	if b.metrics != nil {
		b.metrics.InitDuration.Since(start)
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.InitFailures.Inc()
		}
		b.logger.Error("engine init failed", "error", err, "data_dir", paths.DataDir)
		b.mu.Lock()
		defer b.mu.Unlock()
		// After Close the host is gone; only log.
		if b.state.CompareAndSwap(int32(StateInitializing), int32(StateTerminated)) {
			b.post(protocol.Debug("engine init failed", err.Error()))
		}
		return
	}

	ref := &engineRef{eng}
	b.engine.Store(ref)
	if !b.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		// Close ran while the factory was busy.
		b.engine.Store(nil)
		if err := eng.Close(); err != nil {
			b.logger.Warn("release engine after teardown", "error", err)
		}
		return
	}
	if b.metrics != nil {
		b.metrics.ReadyBridges.Inc()
	}
	b.logger.Info("engine ready", "elapsed", time.Since(start))
}

// createEngine runs the factory and applies the startup options. A panic in
// either is reported as an error.
func createEngine(ctx context.Context, factory engine.Factory, paths engine.Paths, startup engine.StartupOptions) (eng engine.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			if eng != nil {
				_ = eng.Close()
			}
			eng = nil
			logging.DefaultCrashHandler().HandlePanic(r, map[string]any{
				"stage":    "engine init",
				"data_dir": paths.DataDir,
			})
			err = fmt.Errorf("%w: %v", ErrInitPanic, r)
		}
	}()

	eng, err = factory(ctx, paths)
	if err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: factory returned no engine", engine.ErrCreate)
	}
	engine.ApplyStartup(eng, startup)
	return eng, nil
}

// HandleMessage processes one inbound message. Only strings are accepted;
// anything else is ignored. Messages arriving before the engine is ready,
// or after teardown, are dropped without a response.
func (b *Bridge) HandleMessage(msg any) {
	text, ok := msg.(string)
	if !ok {
		if b.metrics != nil {
			b.metrics.Rejected.Inc()
		}
		b.logger.Debug("rejected non-string message", "type", fmt.Sprintf("%T", msg))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ref := b.engine.Load()
	if b.State() != StateReady || ref == nil {
		if b.metrics != nil {
			b.metrics.MessagesDropped.Inc()
		}
		b.logger.Debug("dropped message", "state", b.State().String())
		return
	}

	start := time.Now()
	b.dispatch(ref.Engine, ParseCommand(text))
	if b.metrics != nil {
		b.metrics.MessagesHandled.Inc()
		b.metrics.HandleDuration.Since(start)
	}
}

// Snapshot returns the current composition state without applying input.
func (b *Bridge) Snapshot() (*protocol.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.State() {
	case StateReady:
	case StateTerminated:
		return nil, ErrTerminated
	default:
		return nil, ErrNotReady
	}
	ref := b.engine.Load()
	if ref == nil {
		return nil, ErrNotReady
	}
	return BuildContext(ref.Engine), nil
}

func (b *Bridge) dispatch(e engine.Engine, cmd Command) {
	switch c := cmd.(type) {
	case KeyEvent:
		action := ApplyKey(e, c.Name)
		if action == KeyIgnored {
			b.logger.Debug("unmapped key", "key", c.Name)
		}
		msg, err := protocol.EncodeContext(BuildContext(e))
		if err != nil {
			b.logger.Error("encode context", "error", err)
			b.post(protocol.Debug("encode context failed", err.Error()))
			return
		}
		b.post(msg)

	case LayoutChange:
		msg, err := protocol.EncodeLayout(ApplyLayout(e, c.ID))
		if err != nil {
			b.logger.Error("encode layout", "error", err)
			b.post(protocol.Debug("encode layout failed", err.Error()))
			return
		}
		b.post(msg)

	case Unrecognized:
		if b.metrics != nil {
			b.metrics.Unrecognized.Inc()
		}
		b.post(protocol.Debug("unrecognized command", c.Raw))
	}
}

func (b *Bridge) post(msg string) {
	if b.metrics != nil {
		b.metrics.Posted.Inc()
	}
	b.poster.Post(msg)
}

// Close tears the bridge down. It waits for a pending initialization to
// finish and releases the engine exactly once. Later calls return the
// first call's result.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		prev := State(b.state.Swap(int32(StateTerminated)))
		b.cancel()
		<-b.ready

		b.mu.Lock()
		defer b.mu.Unlock()

		if b.metrics != nil {
			b.metrics.ActiveBridges.Dec()
			if prev == StateReady {
				b.metrics.ReadyBridges.Dec()
			}
		}

		ref := b.engine.Swap(nil)
		if ref == nil {
			return
		}
		if err := ref.Close(); err != nil {
			b.closeErr = fmt.Errorf("close engine: %w", err)
			b.logger.Warn("close engine", "error", err)
		}
		b.logger.Info("bridge closed")
	})
	return b.closeErr
}
