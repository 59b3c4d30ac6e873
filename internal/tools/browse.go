package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/htmlconv"
	"github.com/codefionn/canvaschat/internal/logger"
)

const (
	jinaReaderEndpoint      = "https://r.jina.ai/"
	firecrawlScrapeEndpoint = "https://api.firecrawl.dev/v1/scrape"
	browseMaxBodyBytes      = 2_000_000
)

// BrowseTool returns the readable content of a web page as Markdown.
// It tries the Jina reader first, then Firecrawl when a key is configured,
// then fetches the page directly and converts it locally.
type BrowseTool struct {
	client            *http.Client
	firecrawlKey      string
	jinaEndpoint      string
	firecrawlEndpoint string
}

// NewBrowseTool creates a browse tool. firecrawlKey may be empty.
func NewBrowseTool(client *http.Client, firecrawlKey string) *BrowseTool {
	if client == nil {
		client = &http.Client{Timeout: consts.HTTPTimeout}
	}
	return &BrowseTool{
		client:            client,
		firecrawlKey:      firecrawlKey,
		jinaEndpoint:      jinaReaderEndpoint,
		firecrawlEndpoint: firecrawlScrapeEndpoint,
	}
}

func (t *BrowseTool) Name() string {
	return ToolNameBrowse
}

func (t *BrowseTool) Description() string {
	return "Get the content of a webpage as Markdown. Present the results in an engaging format and include the media from the page in your response. Do not use this tool for YouTube links, embed them in your response instead."
}

func (t *BrowseTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to browse (http or https)",
				"minLength":   1,
			},
		},
		"required": []string{"url"},
	}
}

func (t *BrowseTool) Execute(ctx context.Context, params map[string]interface{}, _ Emitter) (interface{}, error) {
	target, err := normalizeBrowseURL(GetStringParam(params, "url", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	content, err := t.viaJina(ctx, target)
	if err == nil {
		return content, nil
	}
	logger.Debug("browse: jina reader failed for %s: %v", target, err)

	if t.firecrawlKey != "" {
		content, err = t.viaFirecrawl(ctx, target)
		if err == nil {
			return content, nil
		}
		logger.Debug("browse: firecrawl failed for %s: %v", target, err)
	}

	content, err = t.direct(ctx, target)
	if err == nil {
		return content, nil
	}
	logger.Debug("browse: direct fetch failed for %s: %v", target, err)
	return nil, fmt.Errorf("failed to browse the URL: %w", err)
}

func (t *BrowseTool) viaJina(ctx context.Context, target string) (string, error) {
	body, err := t.get(ctx, t.jinaEndpoint+target)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("empty response")
	}
	return body, nil
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
}

func (t *BrowseTool) viaFirecrawl(ctx context.Context, target string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"url":     target,
		"formats": []string{"markdown"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.firecrawlEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.firecrawlKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("firecrawl API error (status %d): %s", resp.StatusCode, string(body))
	}

	var decoded firecrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !decoded.Success {
		return "", fmt.Errorf("firecrawl scrape failed: %s", decoded.Error)
	}
	if strings.TrimSpace(decoded.Data.Markdown) == "" {
		return "", fmt.Errorf("firecrawl returned no content")
	}

	var sb strings.Builder
	if title := decoded.Data.Metadata.Title; title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}
	if desc := decoded.Data.Metadata.Description; desc != "" {
		fmt.Fprintf(&sb, "> %s\n\n", desc)
	}
	sb.WriteString(decoded.Data.Markdown)
	return sb.String(), nil
}

func (t *BrowseTool) direct(ctx context.Context, target string) (string, error) {
	body, err := t.get(ctx, target)
	if err != nil {
		return "", err
	}
	if !htmlconv.LooksLikeHTML(body) {
		return body, nil
	}
	return htmlconv.ToMarkdown(body)
}

func (t *BrowseTool) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, browseMaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

func normalizeBrowseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return parsed.String(), nil
}
