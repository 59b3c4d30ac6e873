package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTool struct {
	name   string
	params map[string]interface{}
	fn     func(ctx context.Context, params map[string]interface{}, emit Emitter) (interface{}, error)
}

func (t *funcTool) Name() string                       { return t.name }
func (t *funcTool) Description() string                { return "test tool " + t.name }
func (t *funcTool) Parameters() map[string]interface{} { return t.params }
func (t *funcTool) Execute(ctx context.Context, params map[string]interface{}, emit Emitter) (interface{}, error) {
	return t.fn(ctx, params, emit)
}

func returning(v interface{}) func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
	return func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
		return v, nil
	}
}

type lenCounter struct{}

func (lenCounter) CountText(text string) int { return len(text) }

func searchSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
			"count": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"query"},
	}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func newTestRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := newTestRegistry(t,
		&funcTool{name: "zeta", fn: returning("z")},
		&funcTool{name: "alpha", fn: returning("a")},
	)
	require.NoError(t, reg.Register(&funcTool{name: "zeta", fn: returning("z2")}))

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&funcTool{name: "bad", params: map[string]interface{}{"type": 5}, fn: returning("x")})
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	results := d.Dispatch(context.Background(), []llm.ToolCall{call("c1", "nope", "{}")})

	require.Contains(t, results, "c1")
	assert.False(t, results["c1"].Success)
	assert.Equal(t, "Tool not found.", results["c1"].Content)
}

func TestDispatchValidationListsAllMessages(t *testing.T) {
	executed := false
	reg := newTestRegistry(t, &funcTool{name: "search", params: searchSchema(), fn: func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
		executed = true
		return "ok", nil
	}})

	res := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{call("c1", "search", `{"count":"many"}`)})[0]

	assert.False(t, executed)
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Content, "Invalid arguments: "), res.Content)
	assert.Contains(t, res.Content, "missing property 'query'")
	assert.Contains(t, res.Content, "got string, want integer")
	assert.Contains(t, res.Content, ", ")
}

func TestDispatchInvalidJSON(t *testing.T) {
	reg := newTestRegistry(t, &funcTool{name: "search", params: searchSchema(), fn: returning("ok")})
	res := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{call("c1", "search", `{"query":`)})[0]

	assert.False(t, res.Success)
	assert.Contains(t, res.Content, "Invalid arguments: arguments are not valid JSON")
}

func TestDispatchPassesNumbersAsJSONNumber(t *testing.T) {
	var got int
	reg := newTestRegistry(t, &funcTool{name: "search", params: searchSchema(), fn: func(_ context.Context, params map[string]interface{}, _ Emitter) (interface{}, error) {
		got = GetIntParam(params, "count", -1)
		return GetStringParam(params, "query", ""), nil
	}})

	res := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{call("c1", "search", `{"query":"go","count":7}`)})[0]
	require.True(t, res.Success, res.Content)
	assert.Equal(t, "go", res.Content)
	assert.Equal(t, 7, got)
}

func TestDispatchSerialization(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		success bool
		want    string
	}{
		{"string verbatim", "plain \"text\"", true, "plain \"text\""},
		{"object indented", map[string]interface{}{"a": 1}, true, "{\n  \"a\": 1\n}"},
		{"nil is empty", nil, false, "Tool returned empty content."},
		{"blank is empty", "   ", false, "Tool returned empty content."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, &funcTool{name: "t", fn: returning(tt.value)})
			res := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{call("c", "t", "")})[0]
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.want, res.Content)
		})
	}
}

func TestDispatchTruncatesToBudget(t *testing.T) {
	reg := newTestRegistry(t, &funcTool{name: "big", fn: returning(strings.Repeat("a", 200))})
	d := NewDispatcher(reg, WithTextCounter(lenCounter{}), WithResultBudget(100))

	res := d.DispatchOrdered(context.Background(), []llm.ToolCall{call("c", "big", "{}")})[0]
	require.True(t, res.Success)
	// 200 -> 150 -> 112 -> 84
	assert.Equal(t, strings.Repeat("a", 84)+"...", res.Content)
}

func TestDispatchTruncatedToNothingIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		budget  int
		success bool
		want    string
	}{
		// 5 -> 3 -> 2 -> 1, leaving a single space
		{"whitespace left", "  xyz", 1, false, "Tool returned empty content."},
		{"fits budget", "...", 3, true, "..."},
		{"one rune left", "abc", 1, true, "a..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, &funcTool{name: "t", fn: returning(tt.value)})
			d := NewDispatcher(reg, WithTextCounter(lenCounter{}), WithResultBudget(tt.budget))

			res := d.DispatchOrdered(context.Background(), []llm.ToolCall{call("c", "t", "")})[0]
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.want, res.Content)
		})
	}
}

func TestDispatchErrorsAndPanicsBecomeResults(t *testing.T) {
	reg := newTestRegistry(t,
		&funcTool{name: "fails", fn: func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
			return nil, errors.New("upstream exploded")
		}},
		&funcTool{name: "panics", fn: func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
			panic("boom")
		}},
	)

	results := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{
		call("a", "fails", "{}"),
		call("b", "panics", "{}"),
	})
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "upstream exploded", results[0].Content)
	assert.False(t, results[1].Success)
	assert.Equal(t, "tool panicked: boom", results[1].Content)
}

func TestDispatchTimeout(t *testing.T) {
	reg := newTestRegistry(t, &funcTool{name: "slow", fn: func(ctx context.Context, _ map[string]interface{}, _ Emitter) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	res := NewDispatcher(reg, WithTimeout(20*time.Millisecond)).DispatchOrdered(context.Background(), []llm.ToolCall{call("c", "slow", "{}")})[0]
	assert.False(t, res.Success)
	assert.Contains(t, res.Content, "tool timed out")
}

func TestDispatchOrderedKeepsCallOrder(t *testing.T) {
	sleepy := func(d time.Duration, out string) func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
		return func(context.Context, map[string]interface{}, Emitter) (interface{}, error) {
			time.Sleep(d)
			return out, nil
		}
	}
	reg := newTestRegistry(t,
		&funcTool{name: "slow", fn: sleepy(30*time.Millisecond, "slow")},
		&funcTool{name: "fast", fn: sleepy(0, "fast")},
	)

	results := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{
		call("1", "slow", "{}"),
		call("2", "fast", "{}"),
	})
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "slow", results[0].Content)
	assert.Equal(t, "2", results[1].ID)
	assert.Equal(t, "fast", results[1].Content)
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	reg := newTestRegistry(t, &funcTool{name: "t", fn: func(ctx context.Context, _ map[string]interface{}, _ Emitter) (interface{}, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return "ran", nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewDispatcher(reg).DispatchOrdered(ctx, []llm.ToolCall{call("c", "t", "{}")})[0]
	assert.True(t, res.Success)
	assert.Equal(t, "ran", res.Content)
}

func TestDispatchBuffersEmittedNodes(t *testing.T) {
	reg := newTestRegistry(t, &funcTool{name: "emit", fn: func(_ context.Context, _ map[string]interface{}, emit Emitter) (interface{}, error) {
		emit(AdditionalNodeSpec{Content: "first"})
		emit(AdditionalNodeSpec{Content: "second"})
		return "done", nil
	}})

	res := NewDispatcher(reg).DispatchOrdered(context.Background(), []llm.ToolCall{call("c", "emit", "{}")})[0]
	require.Len(t, res.AdditionalNodes, 2)
	assert.Equal(t, "first", res.AdditionalNodes[0].Content)
	assert.Equal(t, "second", res.AdditionalNodes[1].Content)

	msg := res.Message()
	assert.Equal(t, llm.RoleTool, msg.Role)
	assert.Equal(t, "c", msg.ToolCallID)
	assert.Equal(t, "done", msg.Content)
}
