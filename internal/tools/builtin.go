package tools

import (
	"fmt"
	"net/http"

	"github.com/codefionn/canvaschat/internal/config"
	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/search"
	"github.com/codefionn/canvaschat/internal/securemem"
)

// NewBuiltinRegistry registers the built-in tools enabled in cfg. Tools
// whose credentials are missing are skipped with a log line.
func NewBuiltinRegistry(cfg *config.Config, keys *securemem.Keyring, saver ImageSaver) (*Registry, error) {
	reg := NewRegistry()
	client := &http.Client{Timeout: consts.HTTPTimeout}

	if cfg.ToolEnabled(ToolNameWebSearch) {
		provider, err := search.New(cfg, keys, client)
		if err != nil {
			return nil, err
		}
		if err := provider.Validate(); err != nil {
			logger.Info("web_search disabled: %v", err)
		} else if err := reg.Register(NewWebSearchTool(provider)); err != nil {
			return nil, err
		}
	}

	if cfg.ToolEnabled(ToolNameBrowse) {
		firecrawlKey, err := keys.Reveal(config.CredentialFirecrawl)
		if err != nil {
			return nil, fmt.Errorf("open firecrawl key: %w", err)
		}
		if err := reg.Register(NewBrowseTool(client, firecrawlKey)); err != nil {
			return nil, err
		}
	}

	if cfg.ToolEnabled(ToolNameDraw) {
		openaiKey, err := keys.Reveal(config.ProviderOpenAI)
		if err != nil {
			return nil, fmt.Errorf("open openai key: %w", err)
		}
		if openaiKey == "" {
			logger.Info("draw disabled: no OpenAI API key")
		} else {
			draw, err := NewDrawTool(openaiKey, saver)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(draw); err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}
