package llm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-hydra/internal/ports"
)

// Registry defaults applied when RegistryConfig leaves them unset.
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultRateLimit       = 5
	DefaultBurst           = 10
	DefaultRetryBaseDelay  = 500 * time.Millisecond
	DefaultRetryMaxDelay   = 10 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// ErrProviderUnavailable indicates the provider's API key is not set.
var ErrProviderUnavailable = errors.New("provider not configured")

// ProviderConfig describes one provider the registry can build clients for.
type ProviderConfig struct {
	// Type is the registered factory name. Defaults to the provider key.
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used for specs that name only the provider.
	DefaultModel string
	// BaseURL overrides the factory's endpoint.
	BaseURL string
}

// DefaultProviders lists every provider Hydra ships with.
var DefaultProviders = map[string]ProviderConfig{
	"openai":     {Type: "openai", EnvVar: "OPENAI_API_KEY", DefaultModel: "gpt-4o"},
	"anthropic":  {Type: "anthropic", EnvVar: "ANTHROPIC_API_KEY", DefaultModel: "claude-3-5-sonnet-latest"},
	"google":     {Type: "google", EnvVar: "GOOGLE_API_KEY", DefaultModel: GoogleDefaultModel},
	"mistral":    {Type: "mistral", EnvVar: "MISTRAL_API_KEY", DefaultModel: "mistral-large-latest"},
	"openrouter": {Type: "openrouter", EnvVar: "OPENROUTER_API_KEY", DefaultModel: "openai/gpt-4o"},
}

// RegistryConfig configures a Registry. Zero values take the package
// defaults.
type RegistryConfig struct {
	// Providers defaults to DefaultProviders.
	Providers map[string]ProviderConfig
	// DefaultProvider serves specs without a provider prefix.
	DefaultProvider string

	// Timeout bounds each request attempt.
	Timeout time.Duration
	// RateLimit and Burst size the token bucket shared by a provider's
	// clients.
	RateLimit float64
	Burst     int
	// MaxRetries is the number of retries after a transient failure. A
	// negative value disables retries.
	MaxRetries int

	// Metrics receives llm_* measurements. Nil disables them.
	Metrics ports.MetricsCollector
	// TracerProvider defaults to a no-op provider.
	TracerProvider trace.TracerProvider
	// Middleware is applied outside the built-in stack.
	Middleware []Middleware

	// LookupEnv reads API keys. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Logger    *slog.Logger
}

// Registry resolves "provider/model" specs into clients, building each
// client on first use and caching it. Safe for concurrent use.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]ports.LLMClient
	// shared holds the per-provider rate limiter and circuit breaker so
	// every model of a provider draws from one budget.
	shared map[string][]Middleware
}

// NewRegistry validates cfg and creates an empty registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders
	}
	if cfg.DefaultProvider == "" {
		return nil, errors.New("default provider cannot be empty")
	}
	if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", cfg.DefaultProvider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = noop.NewTracerProvider()
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{
		cfg:     cfg,
		logger:  logger.With("component", "llm_registry"),
		clients: make(map[string]ports.LLMClient),
		shared:  make(map[string][]Middleware),
	}, nil
}

// ParseSpec splits spec into provider and model. A bare provider name
// selects its default model; a bare model name uses the default provider.
// Only the first slash separates, so OpenRouter models like
// "openrouter/meta-llama/llama-3-70b" keep their own slash.
func (r *Registry) ParseSpec(spec string) (provider, model string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", errors.New("model spec cannot be empty")
	}

	before, after, found := strings.Cut(spec, "/")
	switch {
	case found:
		provider, model = before, after
	case r.hasProvider(spec):
		provider = spec
	default:
		provider, model = r.cfg.DefaultProvider, spec
	}

	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return "", "", fmt.Errorf("unknown provider %q", provider)
	}
	if model == "" {
		model = pc.DefaultModel
	}
	if model == "" {
		return "", "", fmt.Errorf("provider %q has no default model", provider)
	}
	return provider, model, nil
}

func (r *Registry) hasProvider(name string) bool {
	_, ok := r.cfg.Providers[name]
	return ok
}

// GetClient returns the client for spec, building it on first use.
func (r *Registry) GetClient(spec string) (ports.LLMClient, error) {
	provider, model, err := r.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := r.buildLocked(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	r.logger.Info("llm client created", "provider", provider, "model", model)
	return c, nil
}

// GetDefaultClient returns the client for the default provider's default
// model.
func (r *Registry) GetDefaultClient() (ports.LLMClient, error) {
	return r.GetClient(r.cfg.DefaultProvider)
}

// Register installs a prebuilt client under spec, replacing any cached one.
func (r *Registry) Register(spec string, client ports.LLMClient) error {
	if client == nil {
		return errors.New("client cannot be nil")
	}
	provider, model, err := r.ParseSpec(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider+"/"+model] = client
	return nil
}

// Warm builds clients for specs and reports every failure. Callers use it
// at startup to surface missing keys before the first verdict.
func (r *Registry) Warm(specs ...string) error {
	var errs []error
	for _, spec := range specs {
		if spec == "" {
			continue
		}
		if _, err := r.GetClient(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec, err))
		}
	}
	return errors.Join(errs...)
}

// AvailableProviders returns the configured providers whose API key is
// set, sorted.
func (r *Registry) AvailableProviders() []string {
	var names []string
	for name, pc := range r.cfg.Providers {
		if v, ok := r.cfg.LookupEnv(pc.EnvVar); ok && v != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Cached returns the keys of every built client, sorted.
func (r *Registry) Cached() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) buildLocked(provider, model string) (ports.LLMClient, error) {
	pc := r.cfg.Providers[provider]
	apiKey, _ := r.cfg.LookupEnv(pc.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set for provider %q", ErrProviderUnavailable, pc.EnvVar, provider)
	}

	typ := pc.Type
	if typ == "" {
		typ = provider
	}
	return NewClient(typ, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Middleware: r.middlewareLocked(provider),
	})
}

// middlewareLocked assembles, outermost first: caller middleware, tracing,
// metrics, retry, circuit breaker, rate limit and the per-attempt timeout.
func (r *Registry) middlewareLocked(provider string) []Middleware {
	shared, ok := r.shared[provider]
	if !ok {
		shared = []Middleware{
			CircuitBreakerMiddleware(DefaultBreakerFailures, DefaultBreakerCooldown, provider, r.cfg.Metrics),
			RateLimitMiddleware(rate.Limit(r.cfg.RateLimit), r.cfg.Burst),
		}
		r.shared[provider] = shared
	}

	mw := make([]Middleware, 0, len(r.cfg.Middleware)+6)
	mw = append(mw, r.cfg.Middleware...)
	mw = append(mw,
		TracingMiddleware(r.cfg.TracerProvider, provider),
		MetricsMiddleware(r.cfg.Metrics, provider),
		RetryMiddleware(r.cfg.MaxRetries, DefaultRetryBaseDelay, DefaultRetryMaxDelay),
	)
	mw = append(mw, shared...)
	return append(mw, TimeoutMiddleware(r.cfg.Timeout))
}
