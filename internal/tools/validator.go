package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError lists every problem found in a tool call's arguments.
type ValidationError struct {
	Tool     string
	Messages []string
}

func (e *ValidationError) Error() string {
	return "Invalid arguments: " + strings.Join(e.Messages, ", ")
}

// compileSchema compiles a tool parameter schema. A nil schema accepts
// any object.
func compileSchema(name string, params map[string]interface{}) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]interface{}{"type": "object"}
	}

	// Round-trip through JSON so Go slices and ints become the canonical
	// []any and json.Number values the compiler expects.
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := "canvaschat://tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// parseArguments decodes the raw JSON arguments of a call and validates
// them against schema.
func parseArguments(tool string, schema *jsonschema.Schema, arguments string) (map[string]interface{}, error) {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(arguments))
	if err != nil {
		return nil, &ValidationError{Tool: tool, Messages: []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}}
	}

	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return nil, &ValidationError{Tool: tool, Messages: violations(err)}
		}
	}

	params, ok := doc.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Tool: tool, Messages: []string{"arguments must be a JSON object"}}
	}
	return params, nil
}

func violations(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	out := collectViolations(verr)
	if len(out) == 0 {
		return []string{verr.Error()}
	}
	return out
}

// collectViolations walks a ValidationError tree and returns its leaf
// messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{strings.TrimPrefix(verr.Error(), "at '': ")}
	}

	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
