// Package search implements the web search backends of the web_search
// tool.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codefionn/canvaschat/internal/config"
	"github.com/codefionn/canvaschat/internal/securemem"
	"golang.org/x/time/rate"
)

// MinInterval is the minimum spacing between two queries to one provider.
const MinInterval = 1500 * time.Millisecond

// Result is a single search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Response is what a provider returns for one query.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Provider is a web search backend.
type Provider interface {
	Search(ctx context.Context, query string, count, offset int) (*Response, error)
	Name() string
	Validate() error
}

// New builds the provider named in cfg, reading its credentials from keys.
func New(cfg *config.Config, keys *securemem.Keyring, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	switch cfg.Search.Provider {
	case config.SearchBrave, "":
		key, err := keys.Reveal(config.CredentialBrave)
		if err != nil {
			return nil, fmt.Errorf("open brave key: %w", err)
		}
		return NewBraveProvider(key, client), nil
	case config.SearchGooglePSE:
		key, err := keys.Reveal(config.CredentialGooglePSE)
		if err != nil {
			return nil, fmt.Errorf("open google search key: %w", err)
		}
		cx, err := keys.Reveal(config.CredentialGooglePSECX)
		if err != nil {
			return nil, fmt.Errorf("open google search cx: %w", err)
		}
		return NewGooglePSEProvider(key, cx, client), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
	}
}

func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(MinInterval), 1)
}
