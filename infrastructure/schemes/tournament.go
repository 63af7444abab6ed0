package schemes

import (
	"fmt"

	"github.com/ahrav/go-hydra/internal/domain"
)

var _ domain.ScoreAggregator = (*Tournament)(nil)

// Tournament plays a round-robin between every pair of models. Each match
// is decided by PairwiseResolver.Match and scored with WinPoints per win and
// DrawPoints per draw. Pairs with no common scored round play no match.
//
// Performance: O(m² · r) for m models and r rounds.
type Tournament struct {
	config Config
}

// NewTournament creates a tournament scheme with validated config.
func NewTournament(config Config) (*Tournament, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("tournament: %w", err)
	}
	return &Tournament{config: config}, nil
}

// Scheme implements domain.ScoreAggregator.
func (*Tournament) Scheme() domain.Scheme { return domain.SchemeTournament }

// Aggregate implements domain.ScoreAggregator.
func (t *Tournament) Aggregate(table *domain.ScoreTable) []domain.ScoredModel {
	n := len(table.Models)
	wins := make([]int, n)
	draws := make([]int, n)
	losses := make([]int, n)

	resolver := NewPairwiseResolver(table)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			outcome, played := resolver.Match(table.Models[i], table.Models[j])
			if !played {
				continue
			}
			switch outcome {
			case Win:
				wins[i]++
				losses[j]++
			case Loss:
				losses[i]++
				wins[j]++
			default:
				draws[i]++
				draws[j]++
			}
		}
	}

	out := make([]domain.ScoredModel, 0, n)
	for i, m := range table.Models {
		points := t.config.WinPoints*wins[i] + t.config.DrawPoints*draws[i]
		sm := table.Baseline(m)
		sm.FinalScore = float64(points)
		sm.Details.Wins = domain.Int(wins[i])
		sm.Details.Draws = domain.Int(draws[i])
		sm.Details.Losses = domain.Int(losses[i])
		sm.Details.TournamentPoints = domain.Int(points)
		out = append(out, sm)
	}
	return out
}
