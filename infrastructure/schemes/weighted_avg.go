package schemes

import "github.com/ahrav/go-hydra/internal/domain"

var _ domain.ScoreAggregator = (*WeightedAverage)(nil)

// WeightedAverage ranks models by the weighted blend of their average user
// score and average arbiter score.
//
// For each model:
//
//	weightedTotal = (avgUser ?? 0) * userWeight/100 + (avgArbiter ?? 0) * arbiterWeight/100
//
// A model with no score of either kind gets a final score of 0.
//
// Performance: O(m) over the prepared table; all averaging is done while the
// table is built.
type WeightedAverage struct{}

// NewWeightedAverage creates the weighted-average scheme.
func NewWeightedAverage() *WeightedAverage { return &WeightedAverage{} }

// Scheme implements domain.ScoreAggregator.
func (*WeightedAverage) Scheme() domain.Scheme { return domain.SchemeWeightedAvg }

// Aggregate implements domain.ScoreAggregator.
func (*WeightedAverage) Aggregate(table *domain.ScoreTable) []domain.ScoredModel {
	out := make([]domain.ScoredModel, 0, len(table.Models))
	for _, m := range table.Models {
		sm := table.Baseline(m)
		total := table.Weights.Blend(sm.AvgUser, sm.AvgArbiter)
		sm.Details.WeightedTotal = domain.Float(total)
		if m.HasScores() {
			sm.FinalScore = total
		}
		out = append(out, sm)
	}
	return out
}
