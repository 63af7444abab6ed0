// Package scheduler runs Hydra's periodic background jobs on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// DefaultStaleAfter is how long a verdict may wait for a decision before
// its owner is reminded.
const DefaultStaleAfter = 24 * time.Hour

// SweepResult summarizes one sweep.
type SweepResult struct {
	Stale    int `json:"stale"`
	Reminded int `json:"reminded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// PendingDecisionSweep reminds users about verdicts that are waiting for a
// decision. A session is reminded once per verdict: the reminder reference
// includes the session's last update time, so a re-run verdict is eligible
// again.
type PendingDecisionSweep struct {
	sessions   ports.SessionStore
	inbox      ports.NotificationStore
	external   []ports.Notifier
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    ports.MetricsCollector
}

// SweepOption customizes a PendingDecisionSweep.
type SweepOption func(*PendingDecisionSweep)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SweepOption {
	return func(s *PendingDecisionSweep) { s.now = now }
}

// WithExternalNotifiers also sends reminders through notifiers such as
// Slack. Their failures are logged and never block the inbox.
func WithExternalNotifiers(n ...ports.Notifier) SweepOption {
	return func(s *PendingDecisionSweep) { s.external = append(s.external, n...) }
}

// WithMetrics records sweep counters.
func WithMetrics(m ports.MetricsCollector) SweepOption {
	return func(s *PendingDecisionSweep) { s.metrics = m }
}

// NewPendingDecisionSweep creates a sweep. A non-positive staleAfter uses
// DefaultStaleAfter.
func NewPendingDecisionSweep(
	sessions ports.SessionStore,
	inbox ports.NotificationStore,
	staleAfter time.Duration,
	logger *slog.Logger,
	opts ...SweepOption,
) (*PendingDecisionSweep, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if inbox == nil {
		return nil, fmt.Errorf("notification store cannot be nil")
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &PendingDecisionSweep{
		sessions:   sessions,
		inbox:      inbox,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
		metrics:    ports.NopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies the job in logs.
func (s *PendingDecisionSweep) Name() string { return "pending_decision_sweep" }

// Run performs one sweep. Per-session failures are counted and logged; only
// a failure to list sessions aborts the sweep.
func (s *PendingDecisionSweep) Run(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.sessions.ListStaleSessions(ctx, domain.StatusVerdictReady, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list stale sessions: %w", err)
	}

	res := SweepResult{Stale: len(stale)}
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sent, err := s.remind(ctx, &stale[i])
		switch {
		case err != nil:
			res.Failed++
			s.logger.Warn("pending decision reminder failed",
				"session_id", stale[i].ID, "user_id", stale[i].UserID, "error", err)
		case sent:
			res.Reminded++
		default:
			res.Skipped++
		}
	}

	s.metrics.RecordCounter("pending_reminders_total", float64(res.Reminded), nil)
	s.logger.Info("pending decision sweep finished",
		"stale", res.Stale, "reminded", res.Reminded, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *PendingDecisionSweep) remind(ctx context.Context, sess *domain.InterviewSession) (bool, error) {
	ref := ReminderReference(sess)
	seen, err := s.inbox.HasNotification(ctx, sess.UserID, domain.NotificationPendingDecision, ref)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	note := s.buildNotification(sess, ref)
	if err := s.inbox.Notify(ctx, note); err != nil {
		return false, err
	}
	for _, n := range s.external {
		if err := n.Notify(ctx, note); err != nil {
			s.metrics.RecordCounter("notification_failures_total", 1, map[string]string{"channel": n.Name()})
			s.logger.Warn("external reminder failed",
				"channel", n.Name(), "session_id", sess.ID, "error", err)
		}
	}
	return true, nil
}

func (s *PendingDecisionSweep) buildNotification(sess *domain.InterviewSession, ref string) domain.Notification {
	waiting := s.now().Sub(sess.UpdatedAt).Truncate(time.Minute)
	body := fmt.Sprintf("The verdict for %s interviewing as %s has waited %s for a decision.",
		sess.CandidateModel, sess.Role, waiting)
	if v := sess.Verdict; v != nil {
		body += fmt.Sprintf(" Suggested: %s at %.1f / 10.", v.AutoDecision, v.Thresholds.CandidateScore)
	}
	return domain.Notification{
		UserID:    sess.UserID,
		Kind:      domain.NotificationPendingDecision,
		Title:     fmt.Sprintf("Decision pending: %s for %s", sess.CandidateModel, sess.Role),
		Body:      body,
		Reference: ref,
		CreatedAt: s.now().UTC(),
	}
}

// ReminderReference identifies one reminder for the current verdict of
// sess.
func ReminderReference(sess *domain.InterviewSession) string {
	return fmt.Sprintf("%s@%d", sess.ID, sess.UpdatedAt.Unix())
}
