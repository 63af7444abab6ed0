package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-hydra/internal/domain"
	"github.com/ahrav/go-hydra/internal/ports"
)

// LeaderboardService serves cached contest standings and records new
// scores.
type LeaderboardService struct {
	results       ports.ResultStore
	scorer        *Scorer
	cache         ports.LeaderboardCache[[]domain.ScoredModel]
	discrepancy   *DiscrepancyService
	defaultScheme domain.Scheme
	defaultWeight int
	logger        *slog.Logger

	// group collapses concurrent computations of the same cache key.
	group singleflight.Group
	// checks tracks background discrepancy checks.
	checks sync.WaitGroup
}

// LeaderboardOption customizes a LeaderboardService.
type LeaderboardOption func(*LeaderboardService)

// WithDiscrepancyTrigger checks every fully scored result for user/arbiter
// disagreement after it is recorded.
func WithDiscrepancyTrigger(d *DiscrepancyService) LeaderboardOption {
	return func(s *LeaderboardService) { s.discrepancy = d }
}

// NewLeaderboardService creates a leaderboard service. cfg supplies the
// scheme and weight used when a request names none.
func NewLeaderboardService(
	results ports.ResultStore,
	scorer *Scorer,
	cache ports.LeaderboardCache[[]domain.ScoredModel],
	cfg ScoringConfig,
	logger *slog.Logger,
	opts ...LeaderboardOption,
) (*LeaderboardService, error) {
	if results == nil {
		return nil, fmt.Errorf("result store cannot be nil")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("leaderboard cache cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &LeaderboardService{
		results:       results,
		scorer:        scorer,
		cache:         cache,
		defaultScheme: domain.Scheme(cfg.DefaultScheme),
		defaultWeight: cfg.UserWeight,
		logger:        logger,
	}
	if s.defaultScheme == "" {
		s.defaultScheme = domain.SchemeWeightedAvg
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Standings returns the ranked leaderboard of a contest. An empty scheme
// and a nil weight take the configured defaults. Results are cached per
// contest revision, so any recorded score invalidates older entries.
func (s *LeaderboardService) Standings(
	ctx context.Context,
	contestID string,
	scheme domain.Scheme,
	userWeight *int,
) ([]domain.ScoredModel, error) {
	if scheme == "" {
		scheme = s.defaultScheme
	}
	weight := s.defaultWeight
	if userWeight != nil {
		weight = *userWeight
	}
	weight = domain.NewWeights(weight).User

	rev, err := s.results.ContestRevision(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("contest %s revision: %w", contestID, err)
	}
	key := fmt.Sprintf("%s|%s|%d|%d", contestID, scheme, weight, rev)

	if cached, ok := s.cache.Get(key); ok {
		return slices.Clone(cached), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		results, err := s.results.ListResults(ctx, contestID)
		if err != nil {
			return nil, fmt.Errorf("list results for contest %s: %w", contestID, err)
		}
		ranked := s.scorer.ComputeScores(ComputeInput{
			Results:    results,
			Scheme:     scheme,
			UserWeight: &weight,
		})
		s.cache.Set(key, ranked)
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.ScoredModel)), nil
}

// RecordScore stores r and, once both scores are present, runs the
// discrepancy check in the background. Check failures are logged only.
func (s *LeaderboardService) RecordScore(ctx context.Context, r *domain.ContestResult) error {
	verr := domain.NewValidationError("contest result")
	if r.ContestID == "" {
		verr.AddError("contest_id is required")
	}
	if err := newValidator().Struct(r); err != nil {
		verr.AddError(err.Error())
	}
	if verr.HasErrors() {
		return verr
	}

	if err := s.results.SaveResult(ctx, r); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	s.logger.Debug("result recorded", "contest_id", r.ContestID, "result_id", r.ID, "model_id", r.ModelID)

	if s.discrepancy == nil || r.UserScore == nil || r.ArbiterScore == nil {
		return nil
	}

	in := DiscrepancyInput{
		ContestID:    r.ContestID,
		ResultID:     r.ID,
		ModelID:      r.ModelID,
		RoundID:      r.RoundID,
		UserScore:    *r.UserScore,
		ArbiterScore: *r.ArbiterScore,
		ResponseText: r.ResponseText,
	}
	checkCtx := context.WithoutCancel(ctx)
	s.checks.Add(1)
	go func() {
		defer s.checks.Done()
		rec, err := s.discrepancy.Check(checkCtx, in)
		if err != nil {
			s.logger.Warn("discrepancy check failed", "result_id", in.ResultID, "error", err)
			return
		}
		if rec != nil {
			s.logger.Info("result escalated", "result_id", in.ResultID, "code", rec.Code)
		}
	}()
	return nil
}

// Wait blocks until background discrepancy checks finish.
func (s *LeaderboardService) Wait() { s.checks.Wait() }
