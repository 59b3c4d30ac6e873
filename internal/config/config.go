package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/canvaschat/internal/consts"
)

// Supported completion providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Supported web search providers
const (
	SearchBrave     = "brave"
	SearchGooglePSE = "google_pse"
)

// APIKeys holds explicitly configured credentials. Empty fields fall back
// to environment variables, see ResolveAPIKey.
type APIKeys struct {
	OpenAI    string `json:"openai,omitempty"`
	Anthropic string `json:"anthropic,omitempty"`
	Google    string `json:"google,omitempty"`
	Brave     string `json:"brave,omitempty"`
	Firecrawl string `json:"firecrawl,omitempty"`
}

// SearchConfig selects the provider behind the web_search tool
type SearchConfig struct {
	Provider  string          `json:"provider"` // "brave", "google_pse", or ""
	GooglePSE GooglePSEConfig `json:"google_pse"`
}

// GooglePSEConfig holds Google Programmable Search Engine configuration
type GooglePSEConfig struct {
	APIKey string `json:"api_key"`
	CX     string `json:"cx"` // Search Engine ID
}

// HistoryConfig tunes the history window
type HistoryConfig struct {
	// SkipOversizedUnits keeps walking past a tool/assistant unit that does
	// not fit instead of stopping there.
	SkipOversizedUnits bool `json:"skip_oversized_units"`
}

// ToolsConfig controls the built-in tools
type ToolsConfig struct {
	Enabled        []string `json:"enabled,omitempty"` // empty means all built-ins
	TimeoutSeconds int      `json:"timeout_seconds"`   // 0 disables the per-tool timeout
	// MaxRounds bounds the automatic tool follow-ups of one invocation
	MaxRounds int `json:"max_rounds,omitempty"`
}

// ServerConfig configures the web host
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// Config represents application configuration
type Config struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxOutputTokens  int           `json:"max_output_tokens,omitempty"`
	TokenBudget      int           `json:"token_budget"`
	ToolResultBudget int           `json:"tool_result_budget"`
	DisableFunctions bool          `json:"disable_functions"`
	APIKeys          APIKeys       `json:"api_keys"`
	Search           SearchConfig  `json:"search"`
	History          HistoryConfig `json:"history"`
	Tools            ToolsConfig   `json:"tools"`
	Server           ServerConfig  `json:"server"`
	LogLevel         string        `json:"log_level"` // debug, info, warn, error, none
	LogPath          string        `json:"log_path,omitempty"`
}

func defaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "canvaschat")
		}
	}
	if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
		return filepath.Join(configHome, "canvaschat")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "canvaschat")
}

func defaultStateDir() string {
	if runtime.GOOS == "windows" {
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "canvaschat")
		}
	}
	if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
		return filepath.Join(stateHome, "canvaschat")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "state", "canvaschat")
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:         ProviderOpenAI,
		Model:            "gpt-4o",
		TokenBudget:      consts.DefaultTokenBudget,
		ToolResultBudget: consts.ToolResultTokenBudget,
		Search:           SearchConfig{Provider: SearchBrave},
		Server:           ServerConfig{ListenAddr: "127.0.0.1:8787"},
		LogLevel:         "info",
		LogPath:          filepath.Join(defaultStateDir(), "canvaschat.log"),
	}
}

// Load reads the JSON file at path on top of DefaultConfig. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.Model == "" && c.Provider == ProviderOpenAI {
		c.Model = defaults.Model
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = defaults.TokenBudget
	}
	if c.ToolResultBudget <= 0 {
		c.ToolResultBudget = defaults.ToolResultBudget
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaults.Server.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = defaults.LogPath
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Search.Provider {
	case "", SearchBrave, SearchGooglePSE:
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required for provider %q", c.Provider)
	}
	if c.Tools.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.timeout_seconds must not be negative")
	}
	return nil
}

// ToolTimeout returns the per-tool timeout, zero meaning none.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// ToolEnabled reports whether the named built-in tool is enabled.
func (c *Config) ToolEnabled(name string) bool {
	if len(c.Tools.Enabled) == 0 {
		return true
	}
	for _, enabled := range c.Tools.Enabled {
		if enabled == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Tools.Enabled = append([]string(nil), c.Tools.Enabled...)
	return &clone
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
