package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, consts.DefaultTokenBudget, cfg.TokenBudget)
	assert.Equal(t, consts.ToolResultTokenBudget, cfg.ToolResultBudget)
	assert.False(t, cfg.DisableFunctions)
	assert.Zero(t, cfg.ToolTimeout())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"provider": "anthropic",
		"model": "claude-sonnet-4-5",
		"token_budget": 1000,
		"disable_functions": true,
		"tools": {"timeout_seconds": 15, "enabled": ["browse"]},
		"history": {"skip_oversized_units": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 1000, cfg.TokenBudget)
	assert.Equal(t, consts.ToolResultTokenBudget, cfg.ToolResultBudget)
	assert.True(t, cfg.DisableFunctions)
	assert.True(t, cfg.History.SkipOversizedUnits)
	assert.Equal(t, 15*time.Second, cfg.ToolTimeout())
	assert.True(t, cfg.ToolEnabled("browse"))
	assert.False(t, cfg.ToolEnabled("draw"))
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"provider": "nope", "model": "x"}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestResolveAPIKeyPrefersExplicit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	assert.Equal(t, "explicit", ResolveAPIKey(ProviderOpenAI, " explicit "))
	assert.Equal(t, "from-env", ResolveAPIKey(ProviderOpenAI, ""))
}

func TestResolveAPIKeyGoogleAliases(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	assert.Equal(t, "google-key", ResolveAPIKey(ProviderGoogle, ""))
	assert.Equal(t, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENAI_API_KEY"}, EnvVarHints(ProviderGoogle))
}

func TestKeyringSealsResolvedKeys(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "brave-env")
	t.Setenv("BRAVE_SEARCH_API_KEY", "")

	cfg := DefaultConfig()
	cfg.APIKeys.OpenAI = "sk-file"

	k := cfg.Keyring()
	openai, err := k.Reveal(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", openai)

	brave, err := k.Reveal(CredentialBrave)
	require.NoError(t, err)
	assert.Equal(t, "brave-env", brave)
}

func TestSaveRoundTripKeepsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Tools.TimeoutSeconds = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Tools.TimeoutSeconds)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"token_budget": 100}`)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	reloaded := make(chan *Config, 4)
	w.Subscribe(func(cfg *Config) { reloaded <- cfg })

	require.NoError(t, os.WriteFile(path, []byte(`{"token_budget": 200}`), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 200, cfg.TokenBudget)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	assert.Equal(t, 200, w.Current().TokenBudget)
}

func TestWatcherNotifiesEverySubscriber(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"token_budget": 100}`)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	first := make(chan int, 8)
	second := make(chan int, 8)
	w.Subscribe(func(cfg *Config) { first <- cfg.TokenBudget })
	w.Subscribe(func(cfg *Config) { second <- cfg.TokenBudget })

	require.NoError(t, os.WriteFile(path, []byte(`{"token_budget": 300}`), 0600))

	for _, ch := range []chan int{first, second} {
		select {
		case budget := <-ch:
			assert.Equal(t, 300, budget)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for config reload")
		}
	}
}
