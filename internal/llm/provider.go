package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewSource.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// NewSource builds the completion source for provider.
func NewSource(ctx context.Context, provider, model, apiKey string) (CompletionSource, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI, "":
		return NewOpenAISource(apiKey, model)
	case ProviderAnthropic:
		return NewAnthropicSource(apiKey, model)
	case ProviderGoogle, "gemini":
		return NewGoogleSource(ctx, apiKey, model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
