// Package llm gives Hydra's staff personas (arbiter, moderator, evolutioner)
// one ports.LLMClient over several providers.
//
// Providers implement CoreLLM. Cross-cutting behavior such as retries,
// timeouts, rate limiting, circuit breaking, metrics and tracing is layered
// on as Middleware. The Registry resolves "provider/model" specs into ready
// clients, reading API keys from the environment.
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-sonnet-latest",
//	    Middleware: []llm.Middleware{
//	        llm.TimeoutMiddleware(60 * time.Second),
//	        llm.RetryMiddleware(2, time.Second, 10*time.Second),
//	    },
//	})
//	text, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.2})
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-hydra/internal/ports"
)

// CoreLLM is the minimal surface a provider implements. Middleware wraps it.
type CoreLLM interface {
	// DoRequest sends prompt and returns the response text with input and
	// output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string

	// SetModel switches the model used for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures a single client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model is the provider's model identifier.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Zero uses the provider
	// default.
	Timeout time.Duration

	// TokenEstimator backs EstimateTokens. Nil uses a character estimator.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Client implements ports.LLMClient over a middleware-wrapped provider.
type Client struct {
	provider  string
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// ProviderFactory builds a provider from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory makes a provider available to NewClient. A later
// registration under the same name replaces the earlier one.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[provider] = factory
}

// RegisteredProviders returns the names of every registered provider,
// sorted.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(provider string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[provider]
	return f, ok
}

// NewClient creates a client for provider.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrEmptyAPIKey)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%s: model is required", provider)
	}

	factory, ok := lookupFactory(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}
	return newClient(provider, core, config), nil
}

// newClient wraps core in config's middleware.
func newClient(provider string, core CoreLLM, config ClientConfig) *Client {
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}
	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = NewCharacterTokenEstimator(DefaultCharsPerToken)
	}
	return &Client{provider: provider, core: core, estimator: estimator}
}

// Complete implements ports.LLMClient.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete with input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens implements ports.LLMClient.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }
