package config

import (
	"os"
	"strings"

	"github.com/codefionn/canvaschat/internal/securemem"
)

// credentialEnvVars maps credential names to the environment variables
// that can supply them. Multiple variables allow aliases (e.g.
// GEMINI_API_KEY and GOOGLE_API_KEY).
var credentialEnvVars = map[string][]string{
	ProviderOpenAI:    {"OPENAI_API_KEY"},
	ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	ProviderGoogle:    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENAI_API_KEY"},
	"brave":           {"BRAVE_API_KEY", "BRAVE_SEARCH_API_KEY"},
	"firecrawl":       {"FIRECRAWL_API_KEY"},
	"google_pse":      {"GOOGLE_SEARCH_API_KEY"},
	"google_pse_cx":   {"GOOGLE_SEARCH_CX"},
}

// Credential names used with the keyring
const (
	CredentialBrave       = "brave"
	CredentialFirecrawl   = "firecrawl"
	CredentialGooglePSE   = "google_pse"
	CredentialGooglePSECX = "google_pse_cx"
)

// ResolveAPIKey returns explicit when set, otherwise the first non-empty
// environment variable known for name.
func ResolveAPIKey(name, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	for _, envVar := range credentialEnvVars[name] {
		if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
			return value
		}
	}
	return ""
}

// EnvVarHints returns the environment variables consulted for name.
func EnvVarHints(name string) []string {
	hints := credentialEnvVars[name]
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}

// Keyring resolves every credential and seals it into a keyring.
func (c *Config) Keyring() *securemem.Keyring {
	k := securemem.NewKeyring()
	k.Set(ProviderOpenAI, ResolveAPIKey(ProviderOpenAI, c.APIKeys.OpenAI))
	k.Set(ProviderAnthropic, ResolveAPIKey(ProviderAnthropic, c.APIKeys.Anthropic))
	k.Set(ProviderGoogle, ResolveAPIKey(ProviderGoogle, c.APIKeys.Google))
	k.Set(CredentialBrave, ResolveAPIKey(CredentialBrave, c.APIKeys.Brave))
	k.Set(CredentialFirecrawl, ResolveAPIKey(CredentialFirecrawl, c.APIKeys.Firecrawl))
	k.Set(CredentialGooglePSE, ResolveAPIKey(CredentialGooglePSE, c.Search.GooglePSE.APIKey))
	k.Set(CredentialGooglePSECX, ResolveAPIKey(CredentialGooglePSECX, c.Search.GooglePSE.CX))
	return k
}
