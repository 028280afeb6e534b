// Package llm provides text-completion clients for the supported model
// providers, an embedding client, and a rate-limited, circuit-broken wrapper.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Provider names a model vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options controls sampling for a single call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Response is the text returned by a provider plus token usage.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	// Truncated is set when the provider stopped at the token limit.
	Truncated bool
}

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Provider() Provider
	Model() string
}

// ErrMissingAPIKey is returned when no API key is configured for a provider.
var ErrMissingAPIKey = errors.New("missing API key")

const defaultMaxTokens = 4096

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	// BaseURL overrides the provider endpoint, e.g. for a proxy.
	BaseURL string
}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderOpenAI, ProviderGoogle, ProviderAnthropic:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q (want openai, google or anthropic)", s)
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderGoogle:
		return "gemini-2.5-flash"
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	default:
		return "gpt-4o-mini"
	}
}

// APIKeyEnv returns the environment variable holding the provider's key.
func APIKeyEnv(p Provider) string {
	switch p {
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// New creates a client for cfg.Provider. A missing key is looked up in the
// provider's environment variable.
func New(cfg Config) (Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv(cfg.Provider))
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, APIKeyEnv(cfg.Provider))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case ProviderGoogle:
		c := NewGoogleClient(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		return c, nil
	case ProviderAnthropic:
		c := NewAnthropicClient(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func maxTokens(opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return defaultMaxTokens
}
