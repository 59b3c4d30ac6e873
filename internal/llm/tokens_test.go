package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderChatTemplate(t *testing.T) {
	got := RenderChatTemplate([]Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
	})
	assert.Equal(t, "<|im_start|>system\nbe brief<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n", got)
}

func TestRenderChatTemplateStructuredContent(t *testing.T) {
	got := RenderChatTemplate([]Message{{
		Role:  RoleUser,
		Parts: []ContentPart{TextPart("look"), ImagePart("data:image/png;base64,AAAA")},
	}})
	assert.Equal(t, `<|im_start|>user
[{"type":"text","text":"look"}]<|im_end|>
`, got)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 1, EstimateTokenCount("abc"))
	assert.Equal(t, 2, EstimateTokenCount("abcdefgh"))
}

// The zero counter has no encoder and falls back to the estimate, which keeps
// these tests offline.
func TestCountTokensMonotonic(t *testing.T) {
	counter := &TokenCounter{approx: true}
	messages := []Message{SystemMessage("system prompt")}

	prev := counter.CountTokens(messages)
	for _, next := range []Message{UserMessage("a"), AssistantMessage(""), ToolMessage("result", "c1")} {
		messages = append(messages, next)
		count := counter.CountTokens(messages)
		assert.GreaterOrEqual(t, count, prev)
		prev = count
	}
	assert.Equal(t, 0, counter.CountTokens(nil))
}
