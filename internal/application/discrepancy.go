package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-hydra/infrastructure/judge"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// maxCodeAllocationAttempts bounds retries of the code allocation when a
// concurrent check claims the same HYDRA-EVO number.
const maxCodeAllocationAttempts = 5

const evolutionerPrompt = `You are the Evolutioner, Hydra's calibration analyst.
A human rater and the arbiter model disagreed sharply on one contest response.

Model: {{.ModelID}}
Round: {{.RoundID}}
User score: {{score .UserScore}} / 10
Arbiter score: {{score .ArbiterScore}} / 10
Gap: {{score .Delta}}
{{if .Prompt}}
Prompt:
{{truncate .Prompt 2000}}
{{end}}
Response:
{{truncate .ResponseText 4000}}

State the most likely cause of the disagreement in two to four sentences.
Consider rubric ambiguity, arbiter bias (length, style, position), user
expectations the prompt did not state, and factual errors only one side caught.
End with one concrete change to the arbiter instructions that would reduce
this gap.`

// DiscrepancyInput is one scored result to check for user/arbiter
// disagreement.
type DiscrepancyInput struct {
	ContestID    string  `json:"contest_id"`
	ResultID     string  `json:"result_id" validate:"required"`
	ModelID      string  `json:"model_id" validate:"required"`
	RoundID      string  `json:"round_id"`
	UserScore    float64 `json:"user_score" validate:"min=0,max=10"`
	ArbiterScore float64 `json:"arbiter_score" validate:"min=0,max=10"`
	Prompt       string  `json:"prompt,omitempty"`
	ResponseText string  `json:"response_text,omitempty"`
}

// promptData is the template view of a discrepancy.
type promptData struct {
	DiscrepancyInput
	Delta float64
}

// DiscrepancyService escalates large user/arbiter disagreements.
// A discrepant result gets a hypothesis from the Evolutioner LLM, a durable
// HYDRA-EVO record, and a notification to every supervisor.
type DiscrepancyService struct {
	uow         ports.UnitOfWork
	evolutioner ports.LLMClient
	notifiers   []ports.Notifier
	logger      *slog.Logger
	metrics     ports.MetricsCollector
	prompt      *template.Template
	threshold   float64
	maxParallel int
	now         func() time.Time
}

// DiscrepancyOption customizes a DiscrepancyService.
type DiscrepancyOption func(*DiscrepancyService)

// WithDiscrepancyClock replaces time.Now.
func WithDiscrepancyClock(now func() time.Time) DiscrepancyOption {
	return func(s *DiscrepancyService) { s.now = now }
}

// WithDiscrepancyMetrics records escalations and notification failures.
func WithDiscrepancyMetrics(m ports.MetricsCollector) DiscrepancyOption {
	return func(s *DiscrepancyService) { s.metrics = m }
}

// NewDiscrepancyService creates the trigger. The database inbox should be
// among notifiers so supervisors always get an in-app record.
func NewDiscrepancyService(
	uow ports.UnitOfWork,
	evolutioner ports.LLMClient,
	notifiers []ports.Notifier,
	cfg DiscrepancyConfig,
	logger *slog.Logger,
	opts ...DiscrepancyOption,
) (*DiscrepancyService, error) {
	if uow == nil {
		return nil, fmt.Errorf("unit of work cannot be nil")
	}
	if evolutioner == nil {
		return nil, fmt.Errorf("evolutioner client cannot be nil")
	}
	tmpl, err := template.New("evolutioner").Funcs(judge.TemplateFuncs()).Parse(evolutionerPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse evolutioner prompt: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &DiscrepancyService{
		uow:         uow,
		evolutioner: evolutioner,
		notifiers:   notifiers,
		logger:      logger,
		metrics:     ports.NopMetrics{},
		prompt:      tmpl,
		threshold:   cfg.Threshold,
		maxParallel: cfg.MaxParallelNotifications,
		now:         time.Now,
	}
	if s.threshold <= 0 {
		s.threshold = domain.DiscrepancyThreshold
	}
	if s.maxParallel < 1 {
		s.maxParallel = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check escalates in when the scores differ by at least the threshold.
//
// It returns (nil, nil) below the threshold. A result that was already
// escalated returns its existing record without calling the LLM. An LLM
// failure is returned as a wrapped *ports.LLMError and nothing is stored.
// Notification failures are logged and never fail the check.
func (s *DiscrepancyService) Check(ctx context.Context, in DiscrepancyInput) (*domain.EvolutionRecord, error) {
	if err := newValidator().Struct(in); err != nil {
		verr := domain.NewValidationError("discrepancy")
		verr.AddError(err.Error())
		return nil, verr
	}
	if !domain.ExceedsThreshold(in.UserScore, in.ArbiterScore, s.threshold) {
		return nil, nil
	}

	ctx, span := otel.Tracer("hydra").Start(ctx, "DiscrepancyService.Check")
	defer span.End()
	span.SetAttributes(
		attribute.String("result_id", in.ResultID),
		attribute.String("model_id", in.ModelID),
		attribute.Float64("user_score", in.UserScore),
		attribute.Float64("arbiter_score", in.ArbiterScore),
	)

	existing, err := s.uow.Evolutions().EvolutionByResult(ctx, in.ResultID)
	switch {
	case err == nil:
		span.AddEvent("already_escalated", trace.WithAttributes(attribute.String("code", existing.Code)))
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("lookup evolution for result %s: %w", in.ResultID, err)
	}

	hypothesis, err := s.hypothesize(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evolutioner failed")
		return nil, err
	}

	rec, created, err := s.store(ctx, in, hypothesis)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("code", rec.Code))
	if !created {
		return rec, nil
	}

	s.metrics.RecordCounter("discrepancies_total", 1, map[string]string{"model": in.ModelID})
	s.logger.Info("discrepancy escalated",
		"code", rec.Code, "result_id", in.ResultID, "model_id", in.ModelID, "delta", rec.Delta)

	s.notifySupervisors(ctx, rec)
	span.SetStatus(codes.Ok, "escalated")
	return rec, nil
}

func (s *DiscrepancyService) hypothesize(ctx context.Context, in DiscrepancyInput) (string, error) {
	var buf bytes.Buffer
	data := promptData{DiscrepancyInput: in, Delta: math.Abs(in.UserScore - in.ArbiterScore)}
	if err := s.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render evolutioner prompt: %w", err)
	}

	text, err := s.evolutioner.Complete(ctx, buf.String(), map[string]any{"temperature": 0.3})
	if err != nil {
		var llmErr *ports.LLMError
		if errors.As(err, &llmErr) {
			return "", fmt.Errorf("evolutioner: %w", err)
		}
		return "", fmt.Errorf("evolutioner: %w", ports.NewLLMError(s.evolutioner.GetModel(), "Hypothesize", err))
	}
	return strings.TrimSpace(text), nil
}

// store allocates the next code and inserts the record in one transaction.
// A unique violation means another check won the race: if it was for the
// same result that record is returned, otherwise the allocation is retried.
func (s *DiscrepancyService) store(ctx context.Context, in DiscrepancyInput, hypothesis string) (*domain.EvolutionRecord, bool, error) {
	for attempt := 0; attempt < maxCodeAllocationAttempts; attempt++ {
		rec := &domain.EvolutionRecord{
			ID:           uuid.NewString(),
			ContestID:    in.ContestID,
			ResultID:     in.ResultID,
			ModelID:      in.ModelID,
			RoundID:      in.RoundID,
			UserScore:    in.UserScore,
			ArbiterScore: in.ArbiterScore,
			Delta:        math.Abs(in.UserScore - in.ArbiterScore),
			Hypothesis:   hypothesis,
			CreatedAt:    s.now().UTC(),
		}

		err := s.uow.WithinTx(ctx, func(tx ports.Stores) error {
			taken, err := tx.Evolutions().EvolutionCodes(ctx)
			if err != nil {
				return err
			}
			rec.Code = domain.NextEvolutionCode(taken)
			return tx.Evolutions().InsertEvolution(ctx, rec)
		})
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, ports.ErrConflict) {
			return nil, false, fmt.Errorf("store evolution record: %w", err)
		}

		if existing, lookupErr := s.uow.Evolutions().EvolutionByResult(ctx, in.ResultID); lookupErr == nil {
			return existing, false, nil
		}
		s.logger.Debug("evolution code taken, retrying", "code", rec.Code, "attempt", attempt+1)
	}
	return nil, false, fmt.Errorf("store evolution record: %w", ports.ErrConflict)
}

func (s *DiscrepancyService) notifySupervisors(ctx context.Context, rec *domain.EvolutionRecord) {
	supervisors, err := s.uow.Users().UsersWithRole(ctx, domain.SupervisorRole)
	if err != nil {
		s.logger.Warn("failed to list supervisors", "code", rec.Code, "error", err)
		return
	}
	if len(supervisors) == 0 || len(s.notifiers) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for _, userID := range supervisors {
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      domain.NotificationEvolution,
			Title:     fmt.Sprintf("%s: score discrepancy on %s", rec.Code, rec.ModelID),
			Body:      fmt.Sprintf("User %.1f vs arbiter %.1f (gap %.1f). %s", rec.UserScore, rec.ArbiterScore, rec.Delta, rec.Hypothesis),
			Reference: rec.Code,
			CreatedAt: rec.CreatedAt,
		}
		for _, notifier := range s.notifiers {
			g.Go(func() error {
				if err := notifier.Notify(gctx, n); err != nil {
					s.metrics.RecordCounter("notification_failures_total", 1, map[string]string{"channel": notifier.Name()})
					s.logger.Warn("notification failed",
						"channel", notifier.Name(), "user_id", n.UserID, "code", rec.Code, "error", err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}
