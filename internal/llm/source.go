package llm

import (
	"context"
	"errors"
)

// Finish reasons, normalized to the chat completions vocabulary.
const (
	FinishStop          = "stop"
	FinishToolCalls     = "tool_calls"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// ErrNoMessages is returned when a request has nothing to send.
var ErrNoMessages = errors.New("completion request has no messages")

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is a streaming completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// StreamEvent is one step of a completion stream. Any combination of the
// fields may be set.
type StreamEvent struct {
	TextDelta      string
	ToolCallDeltas []ToolCallDelta
	FinishReason   string
}

// Stream is a pull-based iterator over completion events:
//
//	for s.Next() {
//		ev := s.Event()
//	}
//	if err := s.Err(); err != nil { ... }
//
// Close releases the transport and may be called at any time.
type Stream interface {
	Next() bool
	Event() StreamEvent
	Err() error
	Close() error
}

// CompletionSource opens completion streams.
type CompletionSource interface {
	Stream(ctx context.Context, req *Request) (Stream, error)
	Name() string
}

// maxToolDescription is the longest tool description the OpenAI API accepts.
const maxToolDescription = 1024

func truncateDescription(desc string) string {
	if len(desc) <= maxToolDescription {
		return desc
	}
	return desc[:maxToolDescription]
}
