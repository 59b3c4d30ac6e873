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

const googlePSEEndpoint = "https://www.googleapis.com/customsearch/v1"

// GooglePSEProvider queries a Google Programmable Search Engine.
type GooglePSEProvider struct {
	apiKey   string
	cx       string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewGooglePSEProvider creates a provider for the engine cx.
func NewGooglePSEProvider(apiKey, cx string, client *http.Client) *GooglePSEProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GooglePSEProvider{
		apiKey:   apiKey,
		cx:       cx,
		endpoint: googlePSEEndpoint,
		client:   client,
		limiter:  newLimiter(),
	}
}

type googlePSEResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GooglePSEProvider) Search(ctx context.Context, query string, count, offset int) (*Response, error) {
	if count <= 0 {
		count = 5
	}
	if count > 10 {
		count = 10 // API maximum per request
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count))
	if offset > 0 {
		params.Set("start", strconv.Itoa(offset+1))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("google PSE API error (status %d): %s", resp.StatusCode, string(body))
	}

	var decoded googlePSEResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &Response{Query: query, Results: make([]Result, 0, len(decoded.Items))}
	for _, item := range decoded.Items {
		out.Results = append(out.Results, Result{Title: item.Title, URL: item.Link, Description: item.Snippet})
	}
	return out, nil
}

func (g *GooglePSEProvider) Name() string {
	return "google_pse"
}

func (g *GooglePSEProvider) Validate() error {
	if g.apiKey == "" {
		return fmt.Errorf("google PSE API key is not configured")
	}
	if g.cx == "" {
		return fmt.Errorf("google PSE CX (Search Engine ID) is not configured")
	}
	return nil
}
