package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a completion for the node is already running.
	ErrBusy = errors.New("completion already running for node")
	// ErrCancelled marks a completion stopped through Cancel or its context.
	ErrCancelled = errors.New("completion cancelled")
	// ErrToolRoundsExceeded stops a tool follow-up chain that does not end.
	ErrToolRoundsExceeded = errors.New("too many tool rounds")
	// ErrRepetition aborts a stream that keeps repeating itself.
	ErrRepetition = errors.New("completion keeps repeating itself")
)

// StreamError wraps a failure of the completion transport. It aborts the
// current invocation only.
type StreamError struct {
	Source string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream: %v", e.Source, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
