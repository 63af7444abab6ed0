package application

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/ahrav/go-hydra/infrastructure/schemes"
	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// ComputeInput is a request to rank the results of one contest.
type ComputeInput struct {
	// Results is the flat list of judged responses across all rounds.
	Results []domain.ContestResult `json:"results" validate:"dive"`

	// Scheme selects the ranking scheme. Unknown or empty values fall back
	// to weighted-avg.
	Scheme domain.Scheme `json:"scheme"`

	// UserWeight is the percentage given to the human score. Nil means 50.
	// Out-of-range values are clamped by ComputeScores and rejected by
	// Validate.
	UserWeight *int `json:"user_weight,omitempty" validate:"omitempty,min=0,max=100"`
}

// Weight returns the effective user weight before clamping.
func (in ComputeInput) Weight() int {
	if in.UserWeight == nil {
		return domain.DefaultUserWeight
	}
	return *in.UserWeight
}

// Scorer ranks contest results with the schemes of a registry.
// It holds no per-call state and is safe for concurrent use.
type Scorer struct {
	registry *SchemeRegistry
	logger   *slog.Logger
	metrics  ports.MetricsCollector
}

// NewScorer creates a scorer. A nil logger discards output and nil metrics
// are not recorded.
func NewScorer(registry *SchemeRegistry, logger *slog.Logger, metrics ports.MetricsCollector) *Scorer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Scorer{registry: registry, logger: logger, metrics: metrics}
}

var defaultScorer = func() *Scorer {
	registry, err := NewSchemeRegistry(schemes.DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("default scheme config is invalid: %v", err))
	}
	return NewScorer(registry, nil, nil)
}()

// ComputeScores ranks input with the default scheme parameters.
// See Scorer.ComputeScores.
func ComputeScores(input ComputeInput) []domain.ScoredModel {
	return defaultScorer.ComputeScores(input)
}

// Validate rejects inputs ComputeScores would silently repair: invalid
// results, an out-of-range weight or an unregistered scheme.
func (s *Scorer) Validate(input ComputeInput) error {
	verr := domain.NewValidationError("compute input")
	if err := newValidator().Struct(input); err != nil {
		verr.AddError(err.Error())
	}
	if input.Scheme != "" && !s.registry.Has(input.Scheme) {
		verr.AddError(fmt.Sprintf("unknown scheme %q", input.Scheme))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ComputeScores converts raw results into a ranked leaderboard.
//
// It never fails: empty input yields an empty slice, the weight is clamped
// to [0, 100], non-finite scores count as missing and an unknown scheme
// falls back to weighted-avg. The result is sorted by rank.
func (s *Scorer) ComputeScores(input ComputeInput) []domain.ScoredModel {
	if len(input.Results) == 0 {
		return []domain.ScoredModel{}
	}

	start := time.Now()
	scheme := input.Scheme
	agg, err := s.registry.Create(scheme)
	if err != nil {
		s.logger.Debug("falling back to weighted-avg", "scheme", scheme, "error", err)
		scheme = domain.SchemeWeightedAvg
		agg = schemes.NewWeightedAverage()
	}

	table := domain.BuildScoreTable(input.Results, input.Weight())
	ranked := AssignRanks(agg.Aggregate(table))

	s.metrics.RecordLatency("compute_scores", time.Since(start), map[string]string{"scheme": string(scheme)})
	return ranked
}

// AssignRanks returns a copy of models sorted by descending final score with
// ranks 1..N by position. Equal scores keep their input order and still get
// distinct consecutive ranks.
func AssignRanks(models []domain.ScoredModel) []domain.ScoredModel {
	ranked := make([]domain.ScoredModel, len(models))
	copy(ranked, models)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
