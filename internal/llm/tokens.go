package llm

import (
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts the tokens a list of messages costs.
type Tokenizer interface {
	CountTokens(messages []Message) int
}

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"

	fallbackEncoding = "cl100k_base"
)

// TokenCounter renders messages through a ChatML template and counts the
// result with tiktoken. When no encoding can be loaded it falls back to a
// character based estimate.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	approx  bool
}

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

// NewTokenCounter returns a counter for model. gpt-4o family models use
// o200k_base; unknown models use cl100k_base.
func NewTokenCounter(model string) *TokenCounter {
	encoder, approx := encodingForModel(model)
	return &TokenCounter{encoder: encoder, approx: approx}
}

// Approximate reports whether counts are estimates rather than exact.
func (c *TokenCounter) Approximate() bool {
	return c.approx
}

// CountTokens returns the token count of the chat template rendering of
// messages.
func (c *TokenCounter) CountTokens(messages []Message) int {
	if len(messages) == 0 {
		return 0
	}
	return c.CountText(RenderChatTemplate(messages))
}

// CountText counts the tokens of raw text.
func (c *TokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	return EstimateTokenCount(text)
}

// RenderChatTemplate serializes messages as
// "<|im_start|>role\ncontent<|im_end|>\n" per message. Structured content
// is rendered as the JSON of its text parts.
func RenderChatTemplate(messages []Message) string {
	var b strings.Builder
	for i := range messages {
		b.WriteString(imStart)
		b.WriteString(string(messages[i].Role))
		b.WriteByte('\n')
		b.WriteString(templateContent(&messages[i]))
		b.WriteString(imEnd)
		b.WriteByte('\n')
	}
	return b.String()
}

func templateContent(m *Message) string {
	if !m.IsStructured() {
		return m.Content
	}
	textParts := make([]ContentPart, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Type == PartText {
			textParts = append(textParts, part)
		}
	}
	data, err := json.Marshal(textParts)
	if err != nil {
		return m.Text()
	}
	return string(data)
}

func encodingForModel(model string) (*tiktoken.Tiktoken, bool) {
	encoderMu.Lock()
	defer encoderMu.Unlock()

	if enc, ok := encoderCache[model]; ok {
		return enc, enc == nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			logger.Warn("tiktoken unavailable, estimating tokens: %v", err)
			enc = nil
		}
	}
	encoderCache[model] = enc
	return enc, enc == nil
}

// EstimateTokenCount returns a rough token estimate (about four characters
// per token).
func EstimateTokenCount(content string) int {
	runes := utf8.RuneCountInString(content)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
