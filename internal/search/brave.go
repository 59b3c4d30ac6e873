package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search web API.
type BraveProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewBraveProvider creates a Brave provider.
func NewBraveProvider(apiKey string, client *http.Client) *BraveProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &BraveProvider{
		apiKey:   apiKey,
		endpoint: braveEndpoint,
		client:   client,
		limiter:  newLimiter(),
	}
}

type braveResponse struct {
	Web *struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveProvider) Search(ctx context.Context, query string, count, offset int) (*Response, error) {
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("brave API error (status %d): %s", resp.StatusCode, string(body))
	}

	var decoded braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Web == nil || len(decoded.Web.Results) == 0 {
		return nil, fmt.Errorf("no results found")
	}

	out := &Response{Query: query, Results: make([]Result, 0, len(decoded.Web.Results))}
	for _, r := range decoded.Web.Results {
		out.Results = append(out.Results, Result{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return out, nil
}

func (b *BraveProvider) Name() string {
	return "brave"
}

func (b *BraveProvider) Validate() error {
	if b.apiKey == "" {
		return fmt.Errorf("brave API key is not configured")
	}
	return nil
}
