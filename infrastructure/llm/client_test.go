package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagMiddleware records the order middleware sees a request in.
func tagMiddleware(name string, order *[]string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &taggedLLM{CoreLLM: next, name: name, order: order}
	}
}

type taggedLLM struct {
	CoreLLM
	name  string
	order *[]string
}

func (t *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*t.order = append(*t.order, t.name)
	return t.CoreLLM.DoRequest(ctx, prompt, opts)
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{name: "missing key", provider: "openai", config: ClientConfig{Model: "gpt-4o"}, wantErr: "API key cannot be empty"},
		{name: "missing model", provider: "openai", config: ClientConfig{APIKey: "k"}, wantErr: "model is required"},
		{name: "unknown provider", provider: "nope", config: ClientConfig{APIKey: "k", Model: "m"}, wantErr: "unknown provider: nope"},
		{name: "bad base url", provider: "openai", config: ClientConfig{APIKey: "k", Model: "m", BaseURL: "ftp://x"}, wantErr: "invalid base URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.provider, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := NewClient("anthropic", ClientConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestRegisteredProviders(t *testing.T) {
	assert.Subset(t, RegisteredProviders(), []string{"anthropic", "google", "mistral", "openai", "openrouter"})
}

func TestNewClient_BuildsEachProvider(t *testing.T) {
	for _, provider := range []string{"openai", "mistral", "openrouter", "anthropic", "google"} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewClient(provider, ClientConfig{APIKey: "test-key", Model: "some-model"})
			require.NoError(t, err, "client should build without network access")
			assert.Equal(t, provider, client.Provider())
			assert.Equal(t, "some-model", client.GetModel())
		})
	}
}

func TestClient_MiddlewareOrder(t *testing.T) {
	// Given a client with two middleware
	var order []string
	core := newFakeCore()
	client := newClient("fake", core, ClientConfig{
		Middleware: []Middleware{tagMiddleware("outer", &order), tagMiddleware("inner", &order)},
	})

	// When it completes
	resp, in, out, err := client.CompleteWithUsage(context.Background(), "prompt", map[string]any{"temperature": 0.1})

	// Then the first middleware runs first
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, map[string]any{"temperature": 0.1}, core.opts[0])
}

func TestClient_CompleteReturnsProviderError(t *testing.T) {
	boom := errors.New("boom")
	client := newClient("fake", newFakeCore(boom), ClientConfig{})

	_, err := client.Complete(context.Background(), "prompt", nil)
	assert.ErrorIs(t, err, boom)
}

func TestClient_EstimateTokens(t *testing.T) {
	client := newClient("fake", newFakeCore(), ClientConfig{})
	n, err := client.EstimateTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	client = newClient("fake", newFakeCore(), ClientConfig{TokenEstimator: NewWordTokenEstimator(2)})
	n, err = client.EstimateTokens("three little words")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
