package llm

import (
	"context"
	"sync"
	"time"
)

// fakeCore is a scripted CoreLLM. Each call consumes the next error in
// errs; once errs is exhausted calls succeed.
type fakeCore struct {
	mu       sync.Mutex
	model    string
	response string
	errs     []error
	calls    int
	prompts  []string
	opts     []map[string]any
	delay    time.Duration
	deadline bool
}

func newFakeCore(errs ...error) *fakeCore {
	return &fakeCore{model: "fake-model", response: "ok", errs: errs}
}

func (f *fakeCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	_, hasDeadline := ctx.Deadline()
	f.deadline = f.deadline || hasDeadline
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return f.response, 10, 20, nil
}

func (f *fakeCore) GetModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeCore) SetModel(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = m
}

func (f *fakeCore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type metricCall struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

// recordingMetrics captures every measurement.
type recordingMetrics struct {
	mu    sync.Mutex
	calls []metricCall
}

func (m *recordingMetrics) add(kind, name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]string, len(labels))
	for k, val := range labels {
		cp[k] = val
	}
	m.calls = append(m.calls, metricCall{kind: kind, name: name, value: v, labels: cp})
}

func (m *recordingMetrics) RecordLatency(op string, d time.Duration, labels map[string]string) {
	m.add("latency", op, d.Seconds(), labels)
}

func (m *recordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.add("counter", name, v, labels)
}

func (m *recordingMetrics) RecordGauge(name string, v float64, labels map[string]string) {
	m.add("gauge", name, v, labels)
}

func (m *recordingMetrics) RecordHistogram(name string, v float64, labels map[string]string) {
	m.add("histogram", name, v, labels)
}

func (m *recordingMetrics) named(name string) []metricCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metricCall
	for _, c := range m.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// env is a LookupEnv backed by a map.
func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}
