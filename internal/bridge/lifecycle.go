package bridge

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a bridge.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrNoFactory is returned by New when no engine factory is configured.
	ErrNoFactory = errors.New("bridge: no engine factory")

	// ErrNoPoster is returned by New when no poster is configured.
	ErrNoPoster = errors.New("bridge: no poster")

	// ErrInitPanic wraps a panic raised while creating the engine.
	ErrInitPanic = errors.New("bridge: engine init panicked")

	// ErrNotReady is returned by Snapshot while the engine is initializing.
	ErrNotReady = errors.New("bridge: engine not ready")

	// ErrTerminated is returned by Snapshot after teardown or a failed
	// initialization.
	ErrTerminated = errors.New("bridge: terminated")
)

// Poster delivers outbound messages to the host. Post is called with the
// bridge's handling lock held and must not call back into HandleMessage.
type Poster interface {
	Post(msg string)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(msg string)

func (f PosterFunc) Post(msg string) {
	f(msg)
}
