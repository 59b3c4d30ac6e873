package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
)

// ToolCallDelta is one streamed fragment of a tool call in the shape the
// chat completions wire format uses, e.g.
//
//	{"index": 0, "id": "call_1", "type": "function",
//	 "function": {"name": "browse", "arguments": "{\"url\":"}}
//
// Fields missing from a fragment are simply absent.
type ToolCallDelta map[string]interface{}

// NewToolCallDelta builds a delta, leaving out empty fields.
func NewToolCallDelta(index int, id, name, arguments string) ToolCallDelta {
	delta := ToolCallDelta{"index": index}
	if id != "" {
		delta["id"] = id
		delta["type"] = "function"
	}
	function := map[string]interface{}{}
	if name != "" {
		function["name"] = name
	}
	if arguments != "" {
		function["arguments"] = arguments
	}
	if len(function) > 0 {
		delta["function"] = function
	}
	return delta
}

// Index returns the position of the call this fragment belongs to.
func (d ToolCallDelta) Index() int {
	switch v := d["index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// MergeConflict describes a field that could not be merged.
type MergeConflict struct {
	Path     string
	Existing interface{}
	Incoming interface{}
}

func (c MergeConflict) Error() string {
	return fmt.Sprintf("cannot merge %s: existing %T, incoming %T", c.Path, c.Existing, c.Incoming)
}

// MergeObject merges source into target field by field:
//   - missing keys are set,
//   - equal scalars are left alone,
//   - strings are concatenated,
//   - nested objects are merged recursively,
//   - anything else is reported through report and skipped.
func MergeObject(target, source map[string]interface{}, report func(MergeConflict)) {
	mergeObject("", target, source, report)
}

// MergeToolCallDelta merges one streamed fragment into the accumulated call
// with the same index.
func MergeToolCallDelta(target map[string]interface{}, delta ToolCallDelta, report func(MergeConflict)) {
	MergeObject(target, delta, report)
}

func mergeObject(prefix string, target, source map[string]interface{}, report func(MergeConflict)) {
	for key, incoming := range source {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		existing, ok := target[key]
		if !ok || existing == nil {
			target[key] = cloneValue(incoming)
			continue
		}

		if scalarEqual(existing, incoming) {
			continue
		}

		switch current := existing.(type) {
		case string:
			if s, ok := incoming.(string); ok {
				target[key] = current + s
				continue
			}
		case map[string]interface{}:
			if nested, ok := incoming.(map[string]interface{}); ok {
				mergeObject(path, current, nested, report)
				continue
			}
		}

		if report != nil {
			report(MergeConflict{Path: path, Existing: existing, Incoming: incoming})
		}
	}
}

func scalarEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// ToolCallAccumulator collects streamed tool-call fragments keyed by index.
type ToolCallAccumulator struct {
	calls  map[int]map[string]interface{}
	report func(MergeConflict)
}

// NewToolCallAccumulator creates an accumulator. report may be nil.
func NewToolCallAccumulator(report func(MergeConflict)) *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]map[string]interface{}), report: report}
}

// Apply merges deltas and reports whether the accumulated state changed.
func (a *ToolCallAccumulator) Apply(deltas ...ToolCallDelta) bool {
	before := a.snapshot()
	for _, delta := range deltas {
		index := delta.Index()
		current, ok := a.calls[index]
		if !ok {
			a.calls[index] = cloneValue(map[string]interface{}(delta)).(map[string]interface{})
			continue
		}
		MergeToolCallDelta(current, delta, a.report)
	}
	return a.snapshot() != before
}

// Len returns the number of distinct calls seen so far.
func (a *ToolCallAccumulator) Len() int {
	return len(a.calls)
}

// ToolCalls returns the accumulated calls ordered by index, with
// normalized identifiers.
func (a *ToolCallAccumulator) ToolCalls() []ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for index := range a.calls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, index := range indexes {
		raw := a.calls[index]
		call := ToolCall{
			ID:   stringField(raw, "id"),
			Type: stringField(raw, "type"),
		}
		if fn, ok := raw["function"].(map[string]interface{}); ok {
			call.Function.Name = stringField(fn, "name")
			call.Function.Arguments = stringField(fn, "arguments")
		}
		if call.Type == "" {
			call.Type = "function"
		}
		calls = append(calls, call)
	}
	return NormalizeToolCallIDs(calls)
}

func (a *ToolCallAccumulator) snapshot() string {
	data, err := json.Marshal(a.calls)
	if err != nil {
		return ""
	}
	return string(data)
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// NormalizeToolCallIDs ensures every tool call has a stable identifier.
// Some providers occasionally omit call IDs, which breaks downstream
// requests that require tool_call_id on tool messages.
func NormalizeToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) != "" {
			continue
		}
		if name := sanitizeToolName(calls[i].Function.Name); name != "" {
			calls[i].ID = fmt.Sprintf("call_%s_%d", name, i+1)
		} else {
			calls[i].ID = fmt.Sprintf("call_%d", i+1)
		}
	}
	return calls
}

func sanitizeToolName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
