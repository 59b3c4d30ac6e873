package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Spec is the static description of a tool (name, description, parameters).
// It is what the completion source sees.
type Spec interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
}

// Executor runs a tool. The returned value is serialized into the tool
// result; strings are kept verbatim, anything else becomes indented JSON.
// emit may be called any number of times to request extra canvas nodes.
type Executor interface {
	Execute(ctx context.Context, params map[string]interface{}, emit Emitter) (interface{}, error)
}

// Tool combines Spec and Executor.
type Tool interface {
	Spec
	Executor
}

// AdditionalNodeSpec asks the host to place an extra node after the tool
// results, e.g. a generated image.
type AdditionalNodeSpec struct {
	Content string
	Message *llm.Message
	// Size overrides the default additional node size when set
	Size *canvas.Size
}

// Emitter hands additional node specs to the dispatcher.
type Emitter func(AdditionalNodeSpec)

// Result is the outcome of a single tool call
type Result struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Success         bool                 `json:"success"`
	Content         string               `json:"content"`
	AdditionalNodes []AdditionalNodeSpec `json:"-"`
}

// Message converts the result into the tool message sent back to the model.
func (r *Result) Message() llm.Message {
	return llm.ToolMessage(r.Content, r.ID)
}

type registryEntry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the available tools in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a tool, compiling its parameter schema. Registering a name
// twice replaces the earlier tool but keeps its position.
func (r *Registry) Register(tool Tool) error {
	schema, err := compileSchema(tool.Name(), tool.Parameters())
	if err != nil {
		return fmt.Errorf("register %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.entries[tool.Name()] = &registryEntry{tool: tool, schema: schema}
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

func (r *Registry) entry(name string) (*registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.entries[name].tool)
	}
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions returns the tool definitions for a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.List()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// GetStringParam returns the string parameter key or defaultVal.
func GetStringParam(params map[string]interface{}, key string, defaultVal string) string {
	if val, ok := params[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetIntParam returns the integer parameter key or defaultVal. Validated
// arguments carry numbers as json.Number.
func GetIntParam(params map[string]interface{}, key string, defaultVal int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return defaultVal
}
