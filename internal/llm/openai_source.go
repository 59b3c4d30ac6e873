package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAISource streams chat completions through the official SDK.
type OpenAISource struct {
	client openai.Client
	model  string
}

// NewOpenAISource creates a source for model. Extra request options (base
// URL, HTTP client) are passed to the SDK client.
func NewOpenAISource(apiKey, model string, opts ...option.RequestOption) (*OpenAISource, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("openai source requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &OpenAISource{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}, nil
}

// Name identifies the source in logs.
func (s *OpenAISource) Name() string {
	return "openai/" + s.model
}

// Stream opens a streaming chat completion.
func (s *OpenAISource) Stream(ctx context.Context, req *Request) (Stream, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	model := req.Model
	if model == "" {
		model = s.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: convertMessagesToOpenAI(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToolsToOpenAI(req.Tools)
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	if stream == nil {
		return nil, fmt.Errorf("openai stream failed: no stream returned")
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	event  StreamEvent
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		ev := StreamEvent{
			TextDelta:    choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		for _, tc := range choice.Delta.ToolCalls {
			ev.ToolCallDeltas = append(ev.ToolCallDeltas,
				NewToolCallDelta(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
		s.event = ev
		return true
	}
	return false
}

func (s *openAIStream) Event() StreamEvent {
	return s.event
}

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func convertMessagesToOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case RoleAssistant:
			out = append(out, convertAssistantToOpenAI(msg))
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		default:
			out = append(out, convertUserToOpenAI(msg))
		}
	}
	return out
}

func convertUserToOpenAI(msg *Message) openai.ChatCompletionMessageParamUnion {
	user := openai.ChatCompletionUserMessageParam{}
	if msg.IsStructured() {
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				parts = append(parts, openai.TextContentPart(part.Text))
			case PartImageURL:
				if part.ImageURL != nil {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					}))
				}
			}
		}
		user.Content.OfArrayOfContentParts = parts
	} else {
		user.Content.OfString = openai.String(msg.Content)
	}
	if msg.Name != "" {
		user.Name = openai.String(msg.Name)
	}
	return openai.ChatCompletionMessageParamUnion{OfUser: &user}
}

func convertAssistantToOpenAI(msg *Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if text := msg.Text(); text != "" {
		assistant.Content.OfString = openai.String(text)
	}
	for _, call := range msg.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertToolsToOpenAI(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: shared.FunctionParameters(tool.Parameters),
		}
		if tool.Description != "" {
			fn.Description = openai.String(truncateDescription(tool.Description))
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}
