package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	defaultAnthropicModel       = "claude-3-5-sonnet-latest"
	defaultAnthropicMaxTokens   = 4096
	defaultAnthropicTemperature = 0.7
)

// AnthropicSource streams messages through the official Anthropic SDK and
// translates the events into chat completions deltas.
type AnthropicSource struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSource creates a source for model.
func NewAnthropicSource(apiKey, model string, opts ...option.RequestOption) (*AnthropicSource, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic source requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultAnthropicModel
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicSource{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
	}, nil
}

func (s *AnthropicSource) Name() string {
	return "anthropic/" + s.model
}

// Stream opens a streaming message request. System messages are lifted into
// the system prompt.
func (s *AnthropicSource) Stream(ctx context.Context, req *Request) (Stream, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	system, messages, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	model := req.Model
	if model == "" {
		model = s.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultAnthropicTemperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	}
	if len(system) > 0 {
		params.System = system
	}
	if tools := convertToolsToAnthropic(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, fmt.Errorf("anthropic stream failed: no stream returned")
	}
	return &anthropicStream{stream: stream, toolIndex: make(map[int64]int)}, nil
}

type anthropicStream struct {
	stream    *ssestream.Stream[anthropic.MessageStreamEventUnion]
	event     StreamEvent
	toolIndex map[int64]int
}

func (s *anthropicStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		ev, ok := s.translate(event)
		if !ok {
			continue
		}
		s.event = ev
		return true
	}
	return false
}

func (s *anthropicStream) translate(event anthropic.MessageStreamEventUnion) (StreamEvent, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if ev.ContentBlock.Type != "tool_use" {
			return StreamEvent{}, false
		}
		index := len(s.toolIndex)
		s.toolIndex[ev.Index] = index
		return StreamEvent{
			ToolCallDeltas: []ToolCallDelta{NewToolCallDelta(index, ev.ContentBlock.ID, ev.ContentBlock.Name, "")},
		}, true

	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if delta.Text == "" {
				return StreamEvent{}, false
			}
			return StreamEvent{TextDelta: delta.Text}, true
		case anthropic.InputJSONDelta:
			index, ok := s.toolIndex[ev.Index]
			if !ok || delta.PartialJSON == "" {
				return StreamEvent{}, false
			}
			return StreamEvent{
				ToolCallDeltas: []ToolCallDelta{NewToolCallDelta(index, "", "", delta.PartialJSON)},
			}, true
		}

	case anthropic.MessageDeltaEvent:
		if reason := mapAnthropicStopReason(string(ev.Delta.StopReason)); reason != "" {
			return StreamEvent{FinishReason: reason}, true
		}
	}
	return StreamEvent{}, false
}

func (s *anthropicStream) Event() StreamEvent {
	return s.event
}

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	case "refusal":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func convertMessagesToAnthropic(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleSystem:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}

		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if text := msg.Text(); strings.TrimSpace(text) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range msg.ToolCalls {
				var input interface{} = map[string]interface{}{}
				if args := strings.TrimSpace(call.Function.Arguments); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						return nil, nil, fmt.Errorf("tool call %s has invalid arguments: %w", call.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})

		case RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false)
			// Consecutive results answer the same assistant turn.
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResultMessage(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{block},
			})

		default:
			blocks := anthropicUserBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})
		}
	}
	return system, out, nil
}

func isToolResultMessage(msg anthropic.MessageParam) bool {
	for _, block := range msg.Content {
		if block.OfToolResult == nil {
			return false
		}
	}
	return len(msg.Content) > 0
}

func anthropicUserBlocks(msg *Message) []anthropic.ContentBlockParamUnion {
	if !msg.IsStructured() {
		if strings.TrimSpace(msg.Content) == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case PartImageURL:
			if part.ImageURL == nil {
				continue
			}
			if mediaType, data, ok := splitDataURL(part.ImageURL.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			} else {
				blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.ImageURL.URL}))
			}
		}
	}
	return blocks
}

// splitDataURL parses "data:<media>;base64,<payload>".
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(header, ";base64")
	if !found || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}

func convertToolsToAnthropic(tools []ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := def.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if required := stringSlice(def.Parameters["required"]); len(required) > 0 {
			schema.Required = required
		}
		extras := make(map[string]interface{})
		for k, v := range def.Parameters {
			switch k {
			case "type", "properties", "required":
			default:
				extras[k] = v
			}
		}
		if len(extras) > 0 {
			schema.ExtraFields = extras
		}

		tool := &anthropic.ToolParam{
			Name:        def.Name,
			InputSchema: schema,
			Type:        anthropic.ToolTypeCustom,
		}
		if desc := strings.TrimSpace(def.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tool})
	}
	return out
}

func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
