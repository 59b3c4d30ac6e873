package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content part types
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ContentPart is one element of structured message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image either remotely or as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// FunctionCall carries the name and the raw JSON arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is the provider-neutral chat message sent to a completion source.
// Content holds plain text; Parts, when non-empty, replaces it with
// structured content.
type Message struct {
	Role       Role          `json:"role"`
	Name       string        `json:"name,omitempty"`
	Content    string        `json:"-"`
	Parts      []ContentPart `json:"-"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// IsStructured reports whether the message carries content parts.
func (m *Message) IsStructured() bool {
	return len(m.Parts) > 0
}

// Text returns the plain text of the message, joining text parts for
// structured content.
func (m *Message) Text() string {
	if !m.IsStructured() {
		return m.Content
	}
	texts := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Type == PartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the image URLs of structured content.
func (m *Message) Images() []string {
	var urls []string
	for _, part := range m.Parts {
		if part.Type == PartImageURL && part.ImageURL != nil {
			urls = append(urls, part.ImageURL.URL)
		}
	}
	return urls
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Parts != nil {
		clone.Parts = make([]ContentPart, len(m.Parts))
		for i, part := range m.Parts {
			clone.Parts[i] = part
			if part.ImageURL != nil {
				img := *part.ImageURL
				clone.Parts[i].ImageURL = &img
			}
		}
	}
	clone.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	return &clone
}

type messageAlias Message

type messageWire struct {
	*messageAlias
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes content as a string, or as an array of parts for
// structured messages.
func (m Message) MarshalJSON() ([]byte, error) {
	var content []byte
	var err error
	if m.IsStructured() {
		content, err = json.Marshal(m.Parts)
	} else {
		content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	alias := messageAlias(m)
	return json.Marshal(messageWire{messageAlias: &alias, Content: content})
}

// UnmarshalJSON accepts content as a string, an array of parts, or null.
func (m *Message) UnmarshalJSON(data []byte) error {
	wire := messageWire{messageAlias: (*messageAlias)(m)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	m.Content = ""
	m.Parts = nil
	raw := strings.TrimSpace(string(wire.Content))
	switch {
	case raw == "" || raw == "null":
	case strings.HasPrefix(raw, "\""):
		return json.Unmarshal(wire.Content, &m.Content)
	case strings.HasPrefix(raw, "["):
		return json.Unmarshal(wire.Content, &m.Parts)
	default:
		return fmt.Errorf("unsupported message content: %s", raw)
	}
	return nil
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a plain user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds a tool result message paired with callID.
func ToolMessage(content, callID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}
