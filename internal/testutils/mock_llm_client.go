// Package testutils provides deterministic test doubles for Hydra's ports.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-hydra/internal/ports"
)

// MockLLMClient implements the LLMClient interface with deterministic,
// pattern-matched responses for consistent testing.
// It records every prompt it receives and is safe for concurrent use.
type MockLLMClient struct {
	// model is the mock model identifier.
	model string

	mu sync.Mutex
	// responses are checked in registration order.
	responses []MockResponse
	// fallback is returned when no pattern matches.
	fallback string
	// prompts records every prompt received, in call order.
	prompts []string
	// options records the options of every call, in call order.
	options []map[string]any
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against prompts as a substring.
	// An empty pattern matches every prompt.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
	// Times limits how often the response is used. Zero means unlimited.
	Times int

	used int
}

// NewMockLLMClient creates a mock client for model with the given
// responses.
func NewMockLLMClient(model string, responses ...MockResponse) *MockLLMClient {
	return &MockLLMClient{
		model:     model,
		responses: responses,
		fallback:  "Mock response for testing purposes.",
	}
}

// AddResponse appends a response pattern.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// SetFallback replaces the response used when no pattern matches.
func (m *MockLLMClient) SetFallback(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
}

// Complete implements the LLMClient.Complete method.
// It returns the first unexhausted response whose pattern occurs in the
// prompt.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, options)

	lower := strings.ToLower(prompt)
	for i := range m.responses {
		r := &m.responses[i]
		if r.Times > 0 && r.used >= r.Times {
			continue
		}
		if r.Pattern != "" && !strings.Contains(lower, strings.ToLower(r.Pattern)) {
			continue
		}
		r.used++
		if r.Err != nil {
			return "", r.Err
		}
		return r.Response, nil
	}
	return m.fallback, nil
}

// EstimateTokens implements the LLMClient.EstimateTokens method with a
// four-characters-per-token approximation.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens, nil
}

// GetModel implements the LLMClient.GetModel method.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns the number of Complete calls.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of the prompts received.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// LastOptions returns the options of the latest call, or nil.
func (m *MockLLMClient) LastOptions() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.options) == 0 {
		return nil
	}
	return m.options[len(m.options)-1]
}

// MockResolver maps "provider/model" specs to clients.
type MockResolver struct {
	Clients map[string]ports.LLMClient
}

// GetClient returns the client registered for spec.
func (r MockResolver) GetClient(spec string) (ports.LLMClient, error) {
	c, ok := r.Clients[spec]
	if !ok {
		return nil, fmt.Errorf("no mock client for %q", spec)
	}
	return c, nil
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
