package judge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

var _ ports.ArbiterJudge = (*Arbiter)(nil)

// Phase names and statuses emitted by the arbiter judge.
const (
	PhaseArbiter   = "arbiter"
	PhaseModerator = "moderator"

	StatusRunning = "running"
	StatusDone    = "done"
)

// ClientResolver resolves a "provider/model" spec into a client. The LLM
// registry satisfies it.
type ClientResolver interface {
	GetClient(spec string) (ports.LLMClient, error)
}

// Config selects the persona models.
type Config struct {
	// ArbiterModel is used when a request names no arbiter.
	ArbiterModel string
	// ModeratorModel writes the summary. Empty reuses the arbiter.
	ModeratorModel string
	// Temperature applies to both personas.
	Temperature float64
}

// Arbiter is the LLM-backed interview judge. It runs two phases: the
// arbiter scores the transcript as JSON, then the moderator summarizes the
// outcome in prose.
//
// Arbiter is stateless across calls and safe for concurrent use.
type Arbiter struct {
	resolver  ClientResolver
	config    Config
	arbiter   *template.Template
	moderator *template.Template
	tracer    trace.Tracer
}

// NewArbiter creates a judge that resolves persona models through resolver.
func NewArbiter(resolver ClientResolver, config Config) (*Arbiter, error) {
	if resolver == nil {
		return nil, fmt.Errorf("client resolver cannot be nil")
	}
	if config.ArbiterModel == "" {
		return nil, fmt.Errorf("arbiter model cannot be empty")
	}

	arbiterTmpl, err := template.New("arbiter").Funcs(TemplateFuncs()).Parse(arbiterPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arbiter prompt: %w", err)
	}
	moderatorTmpl, err := template.New("moderator").Funcs(TemplateFuncs()).Parse(moderatorPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse moderator prompt: %w", err)
	}

	return &Arbiter{
		resolver:  resolver,
		config:    config,
		arbiter:   arbiterTmpl,
		moderator: moderatorTmpl,
		tracer:    otel.Tracer("hydra/judge"),
	}, nil
}

// promptView is the data both persona templates render.
type promptView struct {
	Role               string
	CandidateModel     string
	Transcript         string
	Thresholds         domain.Thresholds
	RetestCompetencies []string
	Assessment         domain.ArbiterAssessment
}

// rawAssessment mirrors the arbiter JSON before normalization.
type rawAssessment struct {
	Scores         map[string]float64 `json:"scores"`
	RedFlags       []string           `json:"red_flags"`
	Recommendation string             `json:"recommendation"`
	Confidence     float64            `json:"confidence"`
	Rationale      string             `json:"rationale"`
}

// Evaluate implements ports.ArbiterJudge. Client resolution fails fast;
// everything after that is reported on the returned channel, which is
// closed after a complete or error event or when ctx is done.
func (a *Arbiter) Evaluate(ctx context.Context, req ports.EvaluationRequest) (<-chan domain.PhaseEvent, error) {
	arbiterSpec := req.ArbiterModel
	if arbiterSpec == "" {
		arbiterSpec = a.config.ArbiterModel
	}
	moderatorSpec := a.config.ModeratorModel
	if moderatorSpec == "" {
		moderatorSpec = arbiterSpec
	}

	arbiterClient, err := a.resolver.GetClient(arbiterSpec)
	if err != nil {
		return nil, fmt.Errorf("resolve arbiter %s: %w", arbiterSpec, err)
	}
	moderatorClient, err := a.resolver.GetClient(moderatorSpec)
	if err != nil {
		return nil, fmt.Errorf("resolve moderator %s: %w", moderatorSpec, err)
	}

	view := promptView{
		Role:               req.Session.Role,
		CandidateModel:     req.Session.CandidateModel,
		Transcript:         req.Session.Transcript,
		Thresholds:         req.Thresholds,
		RetestCompetencies: pendingRetest(req.Session.Verdict),
	}

	events := make(chan domain.PhaseEvent, 8)
	go func() {
		defer close(events)
		a.run(ctx, events, arbiterClient, moderatorClient, view)
	}()
	return events, nil
}

func (a *Arbiter) run(
	ctx context.Context,
	events chan<- domain.PhaseEvent,
	arbiterClient, moderatorClient ports.LLMClient,
	view promptView,
) {
	ctx, span := a.tracer.Start(ctx, "Arbiter.Evaluate",
		trace.WithAttributes(
			attribute.String("role", view.Role),
			attribute.String("candidate", view.CandidateModel),
			attribute.String("arbiter_model", arbiterClient.GetModel()),
		))
	defer span.End()

	emit := func(e domain.PhaseEvent) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(phase string, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, phase+" failed")
		emit(domain.PhaseEvent{Type: domain.EventError, Phase: phase, Message: err.Error()})
	}

	if !emit(domain.PhaseEvent{Type: domain.EventPhase, Phase: PhaseArbiter, Status: StatusRunning}) {
		return
	}
	assessment, err := a.assess(ctx, arbiterClient, view)
	if err != nil {
		fail(PhaseArbiter, err)
		return
	}
	verdict := &domain.Verdict{Arbiter: assessment}
	span.AddEvent("arbiter_done", trace.WithAttributes(
		attribute.String("recommendation", string(assessment.Recommendation)),
		attribute.Int("red_flags", len(assessment.RedFlags)),
	))
	if !emit(domain.PhaseEvent{Type: domain.EventPhase, Phase: PhaseArbiter, Status: StatusDone, Verdict: cloneVerdict(verdict)}) {
		return
	}

	if !emit(domain.PhaseEvent{Type: domain.EventPhase, Phase: PhaseModerator, Status: StatusRunning}) {
		return
	}
	view.Assessment = assessment
	view.Thresholds.CandidateScore = assessment.CandidateScore()
	summary, err := a.summarize(ctx, moderatorClient, view)
	if err != nil {
		fail(PhaseModerator, err)
		return
	}
	verdict.ModeratorSummary = summary
	if !emit(domain.PhaseEvent{Type: domain.EventPhase, Phase: PhaseModerator, Status: StatusDone, Verdict: cloneVerdict(verdict)}) {
		return
	}

	span.SetStatus(codes.Ok, "verdict complete")
	emit(domain.PhaseEvent{Type: domain.EventComplete, Verdict: verdict})
}

func (a *Arbiter) assess(ctx context.Context, client ports.LLMClient, view promptView) (domain.ArbiterAssessment, error) {
	var buf bytes.Buffer
	if err := a.arbiter.Execute(&buf, view); err != nil {
		return domain.ArbiterAssessment{}, fmt.Errorf("render arbiter prompt: %w", err)
	}

	resp, err := client.Complete(ctx, buf.String(), map[string]any{
		"system":      arbiterSystemPrompt,
		"temperature": a.config.Temperature,
	})
	if err != nil {
		return domain.ArbiterAssessment{}, wrapLLM(client, "Assess", err)
	}

	return ParseAssessment(resp)
}

func (a *Arbiter) summarize(ctx context.Context, client ports.LLMClient, view promptView) (string, error) {
	var buf bytes.Buffer
	if err := a.moderator.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render moderator prompt: %w", err)
	}

	resp, err := client.Complete(ctx, buf.String(), map[string]any{"temperature": a.config.Temperature})
	if err != nil {
		return "", wrapLLM(client, "Summarize", err)
	}
	return strings.TrimSpace(resp), nil
}

// ParseAssessment decodes an arbiter response. Scores are clamped to
// [0, 10] with non-finite values dropped, confidence is clamped to [0, 1]
// and the recommendation is normalized. An unrecognizable recommendation
// fails with ports.ErrInvalidResponse.
func ParseAssessment(response string) (domain.ArbiterAssessment, error) {
	var raw rawAssessment
	if err := decodeJSON(response, &raw); err != nil {
		return domain.ArbiterAssessment{}, err
	}

	rec, ok := NormalizeRecommendation(raw.Recommendation)
	if !ok {
		return domain.ArbiterAssessment{}, fmt.Errorf("%w: unknown recommendation %q", ports.ErrInvalidResponse, raw.Recommendation)
	}

	scores := make(map[string]float64, len(raw.Scores))
	for name, v := range raw.Scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		scores[strings.TrimSpace(name)] = math.Min(10, math.Max(0, v))
	}

	flags := make([]string, 0, len(raw.RedFlags))
	for _, f := range raw.RedFlags {
		if f = strings.TrimSpace(f); f != "" {
			flags = append(flags, f)
		}
	}

	return domain.ArbiterAssessment{
		Scores:         scores,
		RedFlags:       flags,
		Recommendation: rec,
		Confidence:     math.Min(1, math.Max(0, raw.Confidence)),
		Rationale:      strings.TrimSpace(raw.Rationale),
	}, nil
}

// pendingRetest returns the competencies of the latest pending retest.
func pendingRetest(v *domain.Verdict) []string {
	if v == nil || len(v.RetestHistory) == 0 {
		return nil
	}
	last := v.RetestHistory[len(v.RetestHistory)-1]
	if last.Result != domain.RetestPending {
		return nil
	}
	return last.Competencies
}

func cloneVerdict(v *domain.Verdict) *domain.Verdict {
	c := *v
	return &c
}

func wrapLLM(client ports.LLMClient, op string, err error) error {
	var llmErr *ports.LLMError
	if errors.As(err, &llmErr) {
		return err
	}
	return ports.NewLLMError(client.GetModel(), op, err)
}
