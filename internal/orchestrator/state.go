package orchestrator

// State is a step of a completion invocation.
type State string

const (
	StateCollectingInput State = "collecting_input"
	StateAwaitingStream  State = "awaiting_stream"
	StateStreaming       State = "streaming"
	StateToolDispatch    State = "tool_dispatch"
	StateDone            State = "done"
	StateErrored         State = "errored"
)

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored
}

// Transition is reported to a StateObserver on every state change.
type Transition struct {
	// NodeID is the node the invocation was started on.
	NodeID string
	// CompletionID is the streaming node, empty before it exists.
	CompletionID string
	From         State
	To           State
	Err          error
}

// StateObserver receives transitions. It is called synchronously from the
// invocation goroutine.
type StateObserver func(Transition)

// Mode says who started an invocation.
type Mode int

const (
	// ModeUser is a completion requested by a person.
	ModeUser Mode = iota
	// ModeTool is the automatic follow-up after tool results arrived.
	ModeTool
)

func (m Mode) String() string {
	if m == ModeTool {
		return "tool"
	}
	return "user"
}
