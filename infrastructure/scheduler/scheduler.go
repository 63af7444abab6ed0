package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the pending decision sweep hourly.
const DefaultSweepSpec = "@every 1h"

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) (SweepResult, error)
}

// Scheduler runs jobs on cron schedules. Overlapping runs of the same job
// are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithJobTimeout bounds each job run.
func WithJobTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.timeout = d }
}

// New creates a stopped scheduler.
func New(logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		), cron.WithLogger(cl)),
		logger:  logger,
		timeout: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add schedules job on spec, a standard five-field cron expression or a
// descriptor such as "@every 1h". An empty spec uses DefaultSweepSpec.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("schedule %s on %q: %w", job.Name(), spec, err)
	}
	s.mu.Lock()
	s.entries[job.Name()] = id
	s.mu.Unlock()
	s.logger.Info("job scheduled", "job", job.Name(), "spec", spec)
	return nil
}

// Next returns the next run time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling, cancels running jobs and waits for them to return
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if _, err := job.Run(ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name(), "error", err)
		return
	}
	s.logger.Debug("scheduled job finished", "job", job.Name(), "duration", time.Since(start))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
