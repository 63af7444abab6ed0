package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-hydra/internal/ports"
)

func newTestGoogle(t *testing.T) *googleProvider {
	t.Helper()
	core, err := newGoogleProvider(ClientConfig{APIKey: "test-key"})
	require.NoError(t, err)
	p, ok := core.(*googleProvider)
	require.True(t, ok)
	return p
}

func TestGoogleProvider_Defaults(t *testing.T) {
	p := newTestGoogle(t)
	assert.Equal(t, GoogleDefaultModel, p.GetModel())

	p.SetModel("gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", p.GetModel())

	_, err := newGoogleProvider(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestGoogleProvider_BuildConfig(t *testing.T) {
	p := newTestGoogle(t)

	opts := ParseRequestOptions(map[string]any{
		"system":          "You are the evolutioner.",
		"temperature":     0.7,
		"top_p":           0.9,
		"top_k":           100,
		"max_tokens":      512,
		"response_format": "json",
	}, p.GetModel())
	cfg := p.buildConfig(opts)

	assert.Equal(t, int32(512), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, cfg.SystemInstruction.Parts, 1)
	assert.Equal(t, "You are the evolutioner.", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.TopP)
	assert.InDelta(t, 0.9, *cfg.TopP, 1e-6)
	require.NotNil(t, cfg.TopK)
	assert.Equal(t, float32(40), *cfg.TopK, "top_k is clamped")
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)

	bare := p.buildConfig(ParseRequestOptions(nil, p.GetModel()))
	assert.Nil(t, bare.SystemInstruction)
	assert.Nil(t, bare.Temperature)
	assert.Nil(t, bare.TopK)
}

func TestGoogleProvider_Classify(t *testing.T) {
	p := newTestGoogle(t)

	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		transient bool
	}{
		{
			name:     "googleapi safety reason",
			err:      &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "SAFETY"}}},
			wantType: ErrorTypeContentPolicy,
		},
		{
			name:      "googleapi unavailable",
			err:       &googleapi.Error{Code: 503, Message: "backend unavailable"},
			wantType:  ErrorTypeServerError,
			transient: true,
		},
		{
			name:      "genai rate limit",
			err:       fmt.Errorf("generate: %w", genai.APIError{Code: 429, Message: "quota exceeded"}),
			wantType:  ErrorTypeRateLimit,
			transient: true,
		},
		{
			name:     "genai blocked prompt",
			err:      genai.APIError{Code: 400, Message: "Request blocked by policy"},
			wantType: ErrorTypeContentPolicy,
		},
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			wantType:  ErrorTypeTimeout,
			transient: true,
		},
		{
			name:      "transport",
			err:       errors.New("dial tcp: connection refused"),
			wantType:  ErrorTypeNetwork,
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.classify(tt.err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, "google", pe.Provider)
			assert.Equal(t, tt.transient, ports.IsTransient(err))
		})
	}
}
