package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	genai "google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.0-flash"

// GoogleSource streams content through the Google GenAI SDK.
type GoogleSource struct {
	client *genai.Client
	model  string
}

// NewGoogleSource creates a Gemini API source for model.
func NewGoogleSource(ctx context.Context, apiKey, model string) (*GoogleSource, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("google source requires an API key")
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultGoogleModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}
	return &GoogleSource{client: client, model: model}, nil
}

func (s *GoogleSource) Name() string {
	return "google/" + s.model
}

// Stream opens a streaming generation. System messages become the system
// instruction.
func (s *GoogleSource) Stream(ctx context.Context, req *Request) (Stream, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	system, contents, err := convertMessagesToGenAI(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("google completion requires at least one user or model message")
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertToolsToGenAI(req.Tools)
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	model := req.Model
	if model == "" {
		model = s.model
	}

	next, stop := iter.Pull2(s.client.Models.GenerateContentStream(ctx, model, contents, cfg))
	return &googleStream{next: next, stop: stop}, nil
}

type googleStream struct {
	next      func() (*genai.GenerateContentResponse, error, bool)
	stop      func()
	event     StreamEvent
	err       error
	toolCount int
}

func (s *googleStream) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		result, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			s.err = fmt.Errorf("google genai stream failed: %w", err)
			return false
		}
		if result == nil || len(result.Candidates) == 0 {
			continue
		}

		candidate := result.Candidates[0]
		var ev StreamEvent
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						args = []byte("{}")
					}
					ev.ToolCallDeltas = append(ev.ToolCallDeltas,
						NewToolCallDelta(s.toolCount, part.FunctionCall.ID, part.FunctionCall.Name, string(args)))
					s.toolCount++
					continue
				}
				if part.Text != "" && !part.Thought {
					ev.TextDelta += part.Text
				}
			}
		}
		ev.FinishReason = s.mapFinishReason(string(candidate.FinishReason))

		if ev.TextDelta == "" && len(ev.ToolCallDeltas) == 0 && ev.FinishReason == "" {
			continue
		}
		s.event = ev
		return true
	}
}

func (s *googleStream) mapFinishReason(reason string) string {
	switch reason {
	case "", "FINISH_REASON_UNSPECIFIED":
		return ""
	case "STOP":
		if s.toolCount > 0 {
			return FinishToolCalls
		}
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func (s *googleStream) Event() StreamEvent {
	return s.event
}

func (s *googleStream) Err() error {
	return s.err
}

func (s *googleStream) Close() error {
	s.stop()
	return nil
}

func convertMessagesToGenAI(messages []Message) (string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	toolNames := make(map[string]string)

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleSystem:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				system = append(system, text)
			}

		case RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if text := msg.Text(); strings.TrimSpace(text) != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, call := range msg.ToolCalls {
				args := make(map[string]any)
				if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						return "", nil, fmt.Errorf("tool call %s has invalid arguments: %w", call.ID, err)
					}
				}
				part := genai.NewPartFromFunctionCall(call.Function.Name, args)
				part.FunctionCall.ID = call.ID
				parts = append(parts, part)
				toolNames[call.ID] = call.Function.Name
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case RoleTool:
			payload := make(map[string]any)
			if text := strings.TrimSpace(msg.Text()); text != "" {
				if err := json.Unmarshal([]byte(text), &payload); err != nil {
					payload = map[string]any{"output": msg.Text()}
				}
			}
			part := genai.NewPartFromFunctionResponse(toolNames[msg.ToolCallID], payload)
			part.FunctionResponse.ID = msg.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			parts := genAIUserParts(msg)
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents, nil
}

func genAIUserParts(msg *Message) []*genai.Part {
	if !msg.IsStructured() {
		if strings.TrimSpace(msg.Content) == "" {
			return nil
		}
		return []*genai.Part{genai.NewPartFromText(msg.Content)}
	}

	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				parts = append(parts, genai.NewPartFromText(part.Text))
			}
		case PartImageURL:
			if part.ImageURL == nil {
				continue
			}
			if mediaType, data, ok := splitDataURL(part.ImageURL.URL); ok {
				decoded, err := base64.StdEncoding.DecodeString(data)
				if err != nil {
					continue
				}
				parts = append(parts, genai.NewPartFromBytes(decoded, mediaType))
			} else {
				parts = append(parts, genai.NewPartFromURI(part.ImageURL.URL, guessImageMIME(part.ImageURL.URL)))
			}
		}
	}
	return parts
}

func guessImageMIME(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func convertToolsToGenAI(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if tool.Parameters != nil {
			decl.ParametersJsonSchema = tool.Parameters
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
