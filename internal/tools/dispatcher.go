package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Failure messages that end up in tool results.
const (
	MsgToolNotFound = "Tool not found."
	MsgEmptyContent = "Tool returned empty content."
)

// ErrToolTimeout is wrapped into the failure of a tool that ran past the
// configured timeout.
var ErrToolTimeout = errors.New("tool timed out")

// ToolExecutionError wraps an error or panic raised by a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string { return e.Err.Error() }
func (e *ToolExecutionError) Unwrap() error { return e.Err }

// TextCounter counts tokens of raw text. llm.TokenCounter implements it.
type TextCounter interface {
	CountText(text string) int
}

type estimateCounter struct{}

func (estimateCounter) CountText(text string) int { return llm.EstimateTokenCount(text) }

// Dispatcher executes tool calls against a registry.
type Dispatcher struct {
	registry *Registry
	counter  TextCounter
	budget   int
	timeout  time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTextCounter sets the counter used for the result budget.
func WithTextCounter(counter TextCounter) DispatcherOption {
	return func(d *Dispatcher) {
		if counter != nil {
			d.counter = counter
		}
	}
}

// WithResultBudget sets the maximum token count of a single result.
func WithResultBudget(tokens int) DispatcherOption {
	return func(d *Dispatcher) {
		if tokens > 0 {
			d.budget = tokens
		}
	}
}

// WithTimeout bounds each tool execution. Zero disables the bound.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher creates a dispatcher for registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		counter:  estimateCounter{},
		budget:   consts.ToolResultTokenBudget,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs all calls concurrently and returns their results keyed by
// call id.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall) map[string]*Result {
	ordered := d.DispatchOrdered(ctx, calls)
	out := make(map[string]*Result, len(ordered))
	for _, result := range ordered {
		out[result.ID] = result
	}
	return out
}

// DispatchOrdered runs all calls concurrently and returns the results in
// call order. Tool contexts are detached from ctx's cancellation, so a
// dispatched tool always runs to completion.
func (d *Dispatcher) DispatchOrdered(ctx context.Context, calls []llm.ToolCall) []*Result {
	results := make([]*Result, len(calls))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.run(detached, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) run(ctx context.Context, call llm.ToolCall) *Result {
	result := &Result{ID: call.ID, Name: call.Function.Name}
	started := time.Now()

	entry, ok := d.registry.entry(call.Function.Name)
	if !ok {
		logger.Warn("tool %q not found (call %s)", call.Function.Name, call.ID)
		result.Content = MsgToolNotFound
		return result
	}

	params, err := parseArguments(call.Function.Name, entry.schema, call.Function.Arguments)
	if err != nil {
		logger.Debug("tool %s: %v", call.Function.Name, err)
		result.Content = err.Error()
		return result
	}

	value, nodes, err := d.execute(ctx, entry.tool, params)
	if err != nil {
		logger.Warn("tool %s failed after %s: %v", call.Function.Name, time.Since(started), err)
		result.Content = err.Error()
		return result
	}

	content, err := serializeResult(value)
	if err != nil {
		result.Content = err.Error()
		return result
	}
	if strings.TrimSpace(content) == "" {
		result.Content = MsgEmptyContent
		return result
	}
	if truncated := d.truncate(content); truncated != content {
		if strings.TrimSpace(strings.TrimSuffix(truncated, truncationMarker)) == "" {
			logger.Warn("tool %s result does not fit a budget of %d tokens", call.Function.Name, d.budget)
			result.Content = MsgEmptyContent
			return result
		}
		content = truncated
	}

	result.Success = true
	result.Content = content
	result.AdditionalNodes = nodes
	logger.Debug("tool %s finished in %s (%d bytes, %d extra nodes)", call.Function.Name, time.Since(started), len(result.Content), len(nodes))
	return result
}

type emitBuffer struct {
	mu    sync.Mutex
	nodes []AdditionalNodeSpec
}

func (b *emitBuffer) emit(spec AdditionalNodeSpec) {
	b.mu.Lock()
	b.nodes = append(b.nodes, spec)
	b.mu.Unlock()
}

func (b *emitBuffer) take() []AdditionalNodeSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.nodes
	b.nodes = nil
	return out
}

type execOutcome struct {
	value interface{}
	err   error
}

func (d *Dispatcher) execute(ctx context.Context, tool Tool, params map[string]interface{}) (interface{}, []AdditionalNodeSpec, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	buf := &emitBuffer{}
	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: &ToolExecutionError{Tool: tool.Name(), Err: fmt.Errorf("tool panicked: %v", r)}}
			}
		}()
		value, err := tool.Execute(ctx, params, buf.emit)
		if err != nil {
			err = &ToolExecutionError{Tool: tool.Name(), Err: err}
		}
		done <- execOutcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, nil, out.err
		}
		return out.value, buf.take(), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, &ToolExecutionError{Tool: tool.Name(), Err: fmt.Errorf("%w after %s", ErrToolTimeout, d.timeout)}
		}
		return nil, nil, &ToolExecutionError{Tool: tool.Name(), Err: ctx.Err()}
	}
}

// serializeResult keeps strings verbatim and renders everything else as
// indented JSON.
func serializeResult(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize tool result: %w", err)
	}
	return string(data), nil
}

const truncationMarker = "..."

// truncate shortens content to the result budget by repeatedly keeping
// the leading three quarters.
func (d *Dispatcher) truncate(content string) string {
	if d.counter.CountText(content) <= d.budget {
		return content
	}
	for len(content) > 0 && d.counter.CountText(content) > d.budget {
		cut := int(float64(len(content)) * consts.ToolResultKeepRatio)
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return content + truncationMarker
}
