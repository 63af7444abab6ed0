package ports

import (
	"context"

	"github.com/ahrav/go-hydra/internal/domain"
)

// EvaluationRequest is the input of one interview verdict run.
type EvaluationRequest struct {
	// Session is the interview being judged.
	Session domain.InterviewSession

	// ArbiterModel is an optional "provider/model" override for the arbiter.
	ArbiterModel string

	// Thresholds is the comparison baseline computed before the run.
	Thresholds domain.Thresholds
}

// ArbiterJudge is the external, LLM-driven judge of an interview.
// Evaluate streams phase events and must close the channel after emitting a
// complete or error event, or when ctx is done.
type ArbiterJudge interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (<-chan domain.PhaseEvent, error)
}
