package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-hydra/internal/ports"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware records llm_latency_seconds, llm_requests_total and, on
// success, llm_tokens_total for every request, labeled with provider, model
// and status.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, collector: collector, provider: provider}
	}
}

// DoRequest implements CoreLLM.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)

	if err == nil {
		m.collector.RecordCounter("llm_tokens_total", float64(tokensIn), tokenLabels(labels, "input"))
		m.collector.RecordCounter("llm_tokens_total", float64(tokensOut), tokenLabels(labels, "output"))
	}
	return response, tokensIn, tokensOut, err
}

func tokenLabels(base map[string]string, tokenType string) map[string]string {
	return map[string]string{
		"provider":   base["provider"],
		"model":      base["model"],
		"token_type": tokenType,
	}
}

// requestStatus maps an outcome onto the status label.
func requestStatus(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ports.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &pe):
		return pe.Type.String()
	default:
		return "error"
	}
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
