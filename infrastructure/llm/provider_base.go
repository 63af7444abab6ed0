package llm

import "sync"

// BaseProvider holds the model name behind a lock so providers can be
// shared across goroutines.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// usageOrEstimate prefers the provider-reported count and estimates from
// text when it is missing.
func usageOrEstimate(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return defaultEstimator.EstimateTokens(text)
}
