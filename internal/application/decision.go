package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// Steps reported in a domain.DecisionError.
const (
	stepValidate         = "validate"
	stepLoadSession      = "load_session"
	stepStamp            = "stamp"
	stepCloseAssignments = "close_assignments"
	stepInsertPhantom    = "insert_phantom"
	stepInsertAssignment = "insert_assignment"
	stepTransition       = "transition"
	stepUpdateSession    = "update_session"
)

// DecisionService applies the user's hire, reject or retest decision to an
// interview and its role assignment history.
type DecisionService struct {
	uow     ports.UnitOfWork
	retry   retrier
	logger  *slog.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
}

// DecisionOption customizes a DecisionService.
type DecisionOption func(*DecisionService)

// WithDecisionClock replaces time.Now.
func WithDecisionClock(now func() time.Time) DecisionOption {
	return func(s *DecisionService) { s.now = now }
}

// WithDecisionMetrics records applied decisions.
func WithDecisionMetrics(m ports.MetricsCollector) DecisionOption {
	return func(s *DecisionService) { s.metrics = m }
}

// NewDecisionService creates a decision service. Transient store failures
// retry the whole transaction according to retry.
func NewDecisionService(uow ports.UnitOfWork, retry RetryConfig, logger *slog.Logger, opts ...DecisionOption) (*DecisionService, error) {
	if uow == nil {
		return nil, fmt.Errorf("unit of work cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &DecisionService{
		uow:     uow,
		retry:   newRetrier(retry),
		logger:  logger,
		metrics: ports.NopMetrics{},
		tracer:  otel.Tracer("hydra"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ApplyDecision stamps decision on the session's verdict and applies its
// effects in one transaction.
//
// Repeating the decision already stamped returns the stored session without
// writing. A different decision fails with domain.ErrAlreadyDecided, a
// session without a verdict with domain.ErrNoVerdict. Failures are wrapped
// in a *domain.DecisionError naming the failed step.
func (s *DecisionService) ApplyDecision(
	ctx context.Context,
	sessionID string,
	decision domain.Decision,
	retestCompetencies []string,
) (*domain.InterviewSession, error) {
	ctx, span := s.tracer.Start(ctx, "DecisionService.ApplyDecision",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("decision", string(decision)),
		))
	defer span.End()

	if !decision.IsValid() {
		err := domain.NewDecisionError(sessionID, stepValidate, fmt.Errorf("%w: %q", domain.ErrInvalidDecision, decision))
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid decision")
		return nil, err
	}

	var (
		result  *domain.InterviewSession
		changed bool
	)
	err := s.retry.do(ctx, transientOnly, func(ctx context.Context) error {
		return s.uow.WithinTx(ctx, func(tx ports.Stores) error {
			var err error
			result, changed, err = s.apply(ctx, tx, sessionID, decision, retestCompetencies)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision failed")
		s.logger.Warn("decision failed", "session_id", sessionID, "decision", decision, "error", err)
		return nil, err
	}

	if !changed {
		span.AddEvent("already_applied")
		span.SetStatus(codes.Ok, "unchanged")
		return result, nil
	}

	s.metrics.RecordCounter("decisions_total", 1, map[string]string{"decision": string(decision)})
	s.logger.Info("decision applied",
		"session_id", sessionID,
		"decision", decision,
		"role", result.Role,
		"candidate", result.CandidateModel,
		"status", result.Status)
	span.SetStatus(codes.Ok, "applied")
	return result, nil
}

// apply runs inside the transaction. It reports false when the decision was
// already stamped and nothing was written.
func (s *DecisionService) apply(
	ctx context.Context,
	tx ports.Stores,
	sessionID string,
	decision domain.Decision,
	retestCompetencies []string,
) (*domain.InterviewSession, bool, error) {
	session, err := tx.Sessions().GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return nil, false, domain.NewDecisionError(sessionID, stepLoadSession, err)
	}
	if session.Verdict == nil {
		return nil, false, domain.NewDecisionError(sessionID, stepLoadSession, domain.ErrNoVerdict)
	}

	now := s.now().UTC()
	stamped, err := session.Verdict.Stamp(decision, domain.DecidedByUser, now)
	if err != nil {
		return nil, false, domain.NewDecisionError(sessionID, stepStamp, err)
	}
	if !stamped {
		return session, false, nil
	}

	switch decision {
	case domain.DecisionRetest:
		competencies := append([]string{}, retestCompetencies...)
		session.Verdict.RetestHistory = append(session.Verdict.RetestHistory, domain.RetestEntry{
			Competencies: competencies,
			Date:         now,
			Result:       domain.RetestPending,
		})
		if err := session.TransitionTo(domain.StatusBriefed); err != nil {
			return nil, false, domain.NewDecisionError(sessionID, stepTransition, err)
		}
		session.CompletedAt = nil

	case domain.DecisionHire:
		if err := s.hire(ctx, tx, session, now); err != nil {
			return nil, false, err
		}
		fallthrough

	case domain.DecisionReject:
		if err := session.TransitionTo(domain.StatusCompleted); err != nil {
			return nil, false, domain.NewDecisionError(sessionID, stepTransition, err)
		}
		session.CompletedAt = &now
	}

	if err := tx.Sessions().UpdateSession(ctx, session); err != nil {
		return nil, false, domain.NewDecisionError(sessionID, stepUpdateSession, err)
	}
	return session, true, nil
}

// hire closes the role's open assignments, seeds a phantom predecessor on a
// cold start and opens the candidate's assignment.
func (s *DecisionService) hire(ctx context.Context, tx ports.Stores, session *domain.InterviewSession, now time.Time) error {
	thresholds := session.Verdict.Thresholds
	assignments := tx.Assignments()

	open, err := assignments.OpenAssignments(ctx, session.UserID, session.Role)
	if err != nil {
		return domain.NewDecisionError(session.ID, stepCloseAssignments, err)
	}
	reason := domain.RemovalReplaced
	if thresholds.IsSameModel {
		reason = domain.RemovalUpskilled
	}
	for _, a := range open {
		if err := assignments.CloseAssignment(ctx, a.ID, now, reason); err != nil {
			return domain.NewDecisionError(session.ID, stepCloseAssignments, err)
		}
	}

	if thresholds.IsColdStart {
		exists, err := assignments.HasSyntheticAssignment(ctx, session.UserID, session.Role)
		if err != nil {
			return domain.NewDecisionError(session.ID, stepInsertPhantom, err)
		}
		if !exists {
			phantom := domain.PhantomPredecessor(session.UserID, session.Role, thresholds.CandidateScore, now)
			if err := assignments.InsertAssignment(ctx, &phantom); err != nil {
				return domain.NewDecisionError(session.ID, stepInsertPhantom, err)
			}
		}
	}

	hired := domain.RoleAssignment{
		UserID:            session.UserID,
		Role:              session.Role,
		ModelID:           session.CandidateModel,
		AssignedAt:        now,
		InterviewAvgScore: domain.Float(thresholds.CandidateScore),
		Metadata:          map[string]any{"session_id": session.ID},
	}
	if err := assignments.InsertAssignment(ctx, &hired); err != nil {
		return domain.NewDecisionError(session.ID, stepInsertAssignment, err)
	}
	return nil
}
