package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-hydra/internal/ports"
)

// ErrCircuitOpen is returned without calling the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed passes every request through.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive transient failures and
// admits one probe once cooldown has passed. Caller errors such as bad
// requests or cancellation do not count against the provider. The provider
// call runs outside the lock, so concurrent requests proceed in parallel
// while closed.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time

	// onChange is called with the new state after every transition, outside
	// the lock.
	onChange func(CircuitBreakerState)
}

// NewCircuitBreaker creates a closed breaker. maxFailures below one is
// treated as one.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Call runs fn unless the breaker rejects it.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var changed bool
	defer func() {
		state := cb.state
		cb.mu.Unlock()
		if changed {
			cb.notify(state)
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		changed = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	prev := cb.state
	if cb.state == StateHalfOpen {
		cb.probing = false
	}

	// A caller error during a probe is inconclusive and leaves the breaker
	// half open for the next request.
	switch {
	case err == nil:
		cb.failures = 0
		cb.state = StateClosed
	case shouldRetry(err):
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	state := cb.state
	cb.mu.Unlock()

	if state != prev {
		cb.notify(state)
	}
}

func (cb *CircuitBreaker) notify(state CircuitBreakerState) {
	if cb.onChange != nil {
		cb.onChange(state)
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware guards providers with one CircuitBreaker shared by
// every client the middleware wraps. When
// collector is non-nil, state transitions are reported as the
// llm_circuit_state gauge (0 closed, 1 open, 2 half open) labeled with
// provider, and each opening increments llm_circuit_trips_total.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration, provider string, collector ports.MetricsCollector) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	if collector != nil {
		labels := map[string]string{"provider": provider}
		cb.onChange = func(s CircuitBreakerState) {
			collector.RecordGauge("llm_circuit_state", float64(s), labels)
			if s == StateOpen {
				collector.RecordCounter("llm_circuit_trips_total", 1, labels)
			}
		}
	}
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb}
	}
}

// DoRequest implements CoreLLM.
func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var (
		response            string
		tokensIn, tokensOut int
	)
	err := c.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})
	return response, tokensIn, tokensOut, err
}

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
