package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned by Send before Start.
	ErrNotStarted = errors.New("engine manager not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine manager already started")

	// ErrStopped is returned by Send once the receive loop has stopped.
	ErrStopped = errors.New("engine manager stopped")

	// ErrListenerPanic wraps a panic raised by a listener during dispatch.
	ErrListenerPanic = errors.New("listener panicked")
)

// SpawnError reports that the engine process could not be launched.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn engine %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
