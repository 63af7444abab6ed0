package application

import (
	"context"
	"errors"
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

// Interview decision defaults.
const (
	// DefaultMinHireScore is the candidate score a cold-start hire needs.
	DefaultMinHireScore = 7.0

	// DefaultRetestMargin is how far below the incumbent a candidate may
	// score and still be offered a retest.
	DefaultRetestMargin = 0.5

	// rejectConfidence is the arbiter confidence at which a reject
	// recommendation is followed automatically.
	rejectConfidence = 0.7
)

var (
	// ErrJudgeFailed indicates that the judge stream reported an error.
	ErrJudgeFailed = errors.New("judge failed")

	// ErrIncompleteVerdict indicates that the judge stream closed without a
	// complete event or without a verdict.
	ErrIncompleteVerdict = errors.New("judge stream ended without a verdict")
)

// VerdictRun is the outcome of one streamed verdict. Phases holds one entry
// per phase name in first-seen order, each carrying its latest status. On a
// canceled or failed run it holds whatever arrived before the stream ended.
type VerdictRun struct {
	SessionID string              `json:"session_id"`
	Phases    []domain.PhaseEvent `json:"phases"`
	Verdict   *domain.Verdict     `json:"verdict,omitempty"`
	Completed bool                `json:"completed"`
}

// upsertPhase appends e or replaces the entry with the same phase name.
func (r *VerdictRun) upsertPhase(e domain.PhaseEvent) {
	for i := range r.Phases {
		if r.Phases[i].Phase == e.Phase {
			r.Phases[i] = e
			return
		}
	}
	r.Phases = append(r.Phases, e)
}

// VerdictRunner drives the interview judge and persists its verdict.
type VerdictRunner struct {
	uow          ports.UnitOfWork
	judge        ports.ArbiterJudge
	minHireScore float64
	retestMargin float64
	logger       *slog.Logger
	metrics      ports.MetricsCollector
	tracer       trace.Tracer
}

// NewVerdictRunner creates a runner. Zero thresholds in cfg take the
// package defaults.
func NewVerdictRunner(
	uow ports.UnitOfWork,
	judge ports.ArbiterJudge,
	cfg InterviewConfig,
	logger *slog.Logger,
	metrics ports.MetricsCollector,
) (*VerdictRunner, error) {
	if uow == nil {
		return nil, fmt.Errorf("unit of work cannot be nil")
	}
	if judge == nil {
		return nil, fmt.Errorf("judge cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	r := &VerdictRunner{
		uow:          uow,
		judge:        judge,
		minHireScore: DefaultMinHireScore,
		retestMargin: DefaultRetestMargin,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("hydra"),
	}
	if cfg.MinHireScore != nil {
		r.minHireScore = *cfg.MinHireScore
	}
	if cfg.RetestMargin != nil {
		r.retestMargin = *cfg.RetestMargin
	}
	return r, nil
}

// RunVerdict judges a session and stores the verdict.
//
// The session must be briefing, briefed or scoring; it moves to scoring
// before the judge starts. Every event is passed to sink (which may be nil)
// as it arrives. On complete the verdict is stamped with the thresholds, an
// auto decision and the retest history of the previous verdict, and the
// session moves to verdict_ready. A judge error or canceled ctx returns the
// partial run and leaves the session in scoring.
func (r *VerdictRunner) RunVerdict(
	ctx context.Context,
	sessionID string,
	arbiterModel string,
	sink func(domain.PhaseEvent),
) (*VerdictRun, error) {
	ctx, span := r.tracer.Start(ctx, "VerdictRunner.RunVerdict",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	fail := func(run *VerdictRun, err error) (*VerdictRun, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verdict failed")
		return run, err
	}

	session, err := r.uow.Sessions().GetSession(ctx, sessionID)
	if err != nil {
		return fail(nil, fmt.Errorf("load session %s: %w", sessionID, err))
	}
	if err := session.TransitionTo(domain.StatusScoring); err != nil {
		return fail(nil, err)
	}
	if err := r.uow.Sessions().UpdateSession(ctx, session); err != nil {
		return fail(nil, fmt.Errorf("mark session scoring: %w", err))
	}

	open, err := r.uow.Assignments().OpenAssignments(ctx, session.UserID, session.Role)
	if err != nil {
		return fail(nil, fmt.Errorf("load open assignments: %w", err))
	}
	thresholds := ComputeThresholds(open, session.CandidateModel)
	span.SetAttributes(
		attribute.String("role", session.Role),
		attribute.String("candidate", session.CandidateModel),
		attribute.Bool("cold_start", thresholds.IsColdStart),
	)

	events, err := r.judge.Evaluate(ctx, ports.EvaluationRequest{
		Session:      *session,
		ArbiterModel: arbiterModel,
		Thresholds:   thresholds,
	})
	if err != nil {
		return fail(nil, fmt.Errorf("start judge: %w", err))
	}

	run := &VerdictRun{SessionID: sessionID, Phases: make([]domain.PhaseEvent, 0, 4)}
	if err := r.consume(ctx, events, run, sink); err != nil {
		r.logger.Warn("verdict run aborted", "session_id", sessionID, "phases", len(run.Phases), "error", err)
		return fail(run, err)
	}

	verdict := *run.Verdict
	thresholds.CandidateScore = verdict.Arbiter.CandidateScore()
	verdict.Thresholds = thresholds
	verdict.AutoDecision = AutoDecide(verdict.Arbiter, thresholds, r.minHireScore, r.retestMargin)
	verdict.FinalDecision, verdict.DecidedBy, verdict.DecidedAt = "", "", nil
	verdict.RetestHistory = carryRetestHistory(session.Verdict)

	session.Verdict = &verdict
	if err := session.TransitionTo(domain.StatusVerdictReady); err != nil {
		return fail(run, err)
	}
	if err := r.uow.Sessions().UpdateSession(ctx, session); err != nil {
		return fail(run, fmt.Errorf("store verdict: %w", err))
	}
	run.Verdict = &verdict

	r.metrics.RecordCounter("verdicts_total", 1, map[string]string{"auto_decision": string(verdict.AutoDecision)})
	r.logger.Info("verdict ready",
		"session_id", sessionID,
		"candidate", session.CandidateModel,
		"candidate_score", thresholds.CandidateScore,
		"auto_decision", verdict.AutoDecision)
	span.SetAttributes(attribute.String("auto_decision", string(verdict.AutoDecision)))
	span.SetStatus(codes.Ok, "verdict ready")
	return run, nil
}

func (r *VerdictRunner) consume(
	ctx context.Context,
	events <-chan domain.PhaseEvent,
	run *VerdictRun,
	sink func(domain.PhaseEvent),
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrIncompleteVerdict
			}
			if sink != nil {
				sink(e)
			}
			if e.Verdict != nil {
				run.Verdict = e.Verdict
			}

			switch e.Type {
			case domain.EventPhase:
				run.upsertPhase(e)
			case domain.EventError:
				return fmt.Errorf("%w: %s %s", ErrJudgeFailed, e.Phase, e.Message)
			case domain.EventComplete:
				if run.Verdict == nil {
					return ErrIncompleteVerdict
				}
				run.Completed = true
				return nil
			}
		}
	}
}

// ComputeThresholds derives the comparison baseline from the open
// assignments of the candidate's role. When several records are open the
// most recent one is the holder.
func ComputeThresholds(open []domain.RoleAssignment, candidate string) domain.Thresholds {
	if len(open) == 0 {
		return domain.Thresholds{IsColdStart: true}
	}
	holder := open[0]
	for _, a := range open[1:] {
		if !a.AssignedAt.Before(holder.AssignedAt) {
			holder = a
		}
	}
	return domain.Thresholds{
		CurrentHolder: holder.ModelID,
		PreviousAvg:   holder.InterviewAvgScore,
		IsSameModel:   holder.ModelID == candidate,
	}
}

// AutoDecide suggests a decision for an assessment. Red flags, or a
// confident reject recommendation, reject outright. A cold start hires at
// minHire and retests below it. Otherwise the candidate is hired when it
// matches the incumbent's average, retested when within margin of it, and
// rejected beyond that. An incumbent without a recorded average counts as a
// cold start.
func AutoDecide(a domain.ArbiterAssessment, t domain.Thresholds, minHire, margin float64) domain.Decision {
	if len(a.RedFlags) > 0 {
		return domain.DecisionReject
	}
	if a.Recommendation == domain.DecisionReject && a.Confidence >= rejectConfidence {
		return domain.DecisionReject
	}

	score := a.CandidateScore()
	if t.IsColdStart || t.PreviousAvg == nil {
		if score >= minHire {
			return domain.DecisionHire
		}
		return domain.DecisionRetest
	}

	prev := *t.PreviousAvg
	switch {
	case score >= prev:
		return domain.DecisionHire
	case prev-score <= margin:
		return domain.DecisionRetest
	default:
		return domain.DecisionReject
	}
}

func carryRetestHistory(prev *domain.Verdict) []domain.RetestEntry {
	if prev == nil || len(prev.RetestHistory) == 0 {
		return []domain.RetestEntry{}
	}
	return append([]domain.RetestEntry(nil), prev.RetestHistory...)
}

// verdictTimeout bounds a verdict run started from a request whose context
// carries no deadline.
const verdictTimeout = 5 * time.Minute

// WithVerdictTimeout returns ctx bounded by the default verdict timeout when
// it has no deadline of its own.
func WithVerdictTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, verdictTimeout)
}
