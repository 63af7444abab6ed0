package application

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/infrastructure/storage"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// newTestStore opens a migrated sqlite database in a temporary directory.
func newTestStore(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DialectSQLite, filepath.Join(t.TempDir(), "hydra.db"))
	require.NoError(t, err, "sqlite store should open")
	require.NoError(t, db.Migrate(ctx), "schema should apply")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingMetrics counts every RecordCounter call by metric name and
// labels.
type recordingMetrics struct {
	ports.NopMetrics

	mu       sync.Mutex
	counters map[string]float64
	latencyN map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: make(map[string]float64), latencyN: make(map[string]int)}
}

func (m *recordingMetrics) RecordLatency(operation string, _ time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyN[metricKey(operation, labels)]++
}

// latencies returns how often operation was timed with exactly labels.
func (m *recordingMetrics) latencies(operation string, labels map[string]string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencyN[metricKey(operation, labels)]
}

func (m *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(metric, labels)] += value
}

// count returns the total recorded for metric with exactly labels.
func (m *recordingMetrics) count(metric string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[metricKey(metric, labels)]
}

// total returns the sum over every label set of metric.
func (m *recordingMetrics) total(metric string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for k, v := range m.counters {
		if k == metric || strings.HasPrefix(k, metric+"{") {
			sum += v
		}
	}
	return sum
}

func metricKey(metric string, labels map[string]string) string {
	if len(labels) == 0 {
		return metric
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return metric + "{" + strings.Join(pairs, ",") + "}"
}

// flakyUoW fails the first failures transactions with err before delegating.
type flakyUoW struct {
	ports.UnitOfWork

	failures int32
	err      error
	attempts atomic.Int32
}

func (f *flakyUoW) WithinTx(ctx context.Context, fn func(tx ports.Stores) error) error {
	if f.attempts.Add(1) <= f.failures {
		return f.err
	}
	return f.UnitOfWork.WithinTx(ctx, fn)
}

// recordingNotifier collects notifications and optionally fails every call.
type recordingNotifier struct {
	name string
	err  error

	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) notifications() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

// seedSession stores a session in status with an optional verdict.
func seedSession(t *testing.T, db ports.UnitOfWork, status domain.SessionStatus, verdict *domain.Verdict) *domain.InterviewSession {
	t.Helper()
	s := &domain.InterviewSession{
		UserID:         "user-1",
		Role:           "backend-engineer",
		CandidateModel: "openai/gpt-4o",
		Transcript:     "Q: Design a rate limiter.\nA: Token bucket per key.",
		Status:         status,
		Verdict:        verdict,
	}
	require.NoError(t, db.Sessions().CreateSession(context.Background(), s), "session should be stored")
	return s
}

// seedAssignment opens an assignment of model for the seeded user and role.
func seedAssignment(t *testing.T, db ports.UnitOfWork, model string, avg *float64, at time.Time) domain.RoleAssignment {
	t.Helper()
	a := domain.RoleAssignment{
		UserID:            "user-1",
		Role:              "backend-engineer",
		ModelID:           model,
		AssignedAt:        at,
		InterviewAvgScore: avg,
	}
	require.NoError(t, db.Assignments().InsertAssignment(context.Background(), &a), "assignment should be stored")
	return a
}
