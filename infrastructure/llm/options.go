package llm

import (
	"cmp"
	"fmt"
	"math"
	"net/url"
	"time"
)

// Request parameter bounds shared by every provider.
const (
	// DefaultMaxTokens is used when a request names no max_tokens.
	DefaultMaxTokens = 1024

	MinTemperature = 0.0
	// MaxTemperature accommodates providers that accept up to 2.0.
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the normalized form of the options map passed to
// Complete.
type RequestOptions struct {
	// MaxTokens caps the generated output.
	MaxTokens int
	// Model overrides the client's model for one request.
	Model string
	// Temperature is nil when the provider default applies.
	Temperature *float64
	// TopP is nil when the provider default applies.
	TopP *float64
	// System carries persona instructions.
	System string
	// Extra holds options without a standard meaning.
	Extra map[string]any
}

// ParseRequestOptions normalizes opts. Missing or invalid standard options
// take their defaults; unknown keys land in Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: optionOr(opts, "max_tokens", DefaultMaxTokens, func(v int) bool { return v > 0 }),
		Model:     optionOr(opts, "model", defaultModel, func(v string) bool { return v != "" }),
		System:    optionOr(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}
	if v, ok := numberOption(opts, "temperature"); ok && v >= MinTemperature && v <= MaxTemperature {
		options.Temperature = &v
	}
	if v, ok := numberOption(opts, "top_p"); ok && v >= MinTopP && v <= MaxTopP {
		options.TopP = &v
	}
	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}
	return options
}

// optionOr returns opts[key] when it has type T and passes valid.
func optionOr[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	v, ok := opts[key].(T)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// numberOption reads a float option, accepting integer values too since
// callers decoding YAML or JSON do not control the numeric type.
func numberOption(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Non-positive
// values return zero, meaning the default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return clamp(timeout, MinTimeout, MaxTimeout)
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// toFloat32 converts a numeric option to float32.
func toFloat32(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		if math.IsNaN(v) || math.Abs(v) > math.MaxFloat32 {
			return 0, false
		}
		return float32(v), true
	case int:
		return float32(v), true
	default:
		return 0, false
	}
}
