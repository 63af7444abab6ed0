package schemes

import (
	"fmt"
	"math"

	"github.com/ahrav/go-hydra/internal/domain"
)

var _ domain.ScoreAggregator = (*Elo)(nil)

// Elo replays the contest round by round and updates ratings from pairwise
// comparisons of combined scores.
//
// Algorithm, per round in table order:
//  1. Participants are the models with a combined score in the round.
//  2. Every participant pair is compared with PairwiseResolver.CompareRound.
//  3. Expected score uses the pre-round ratings:
//     E_A = 1 / (1 + 10^((R_B - R_A) / 400)).
//  4. Deltas K·(S - E) are summed per model and applied together once the
//     round is fully resolved.
//
// Because every delta uses pre-round ratings and each pair contributes
// equal and opposite amounts, the result does not depend on pair order and
// the ratings of a round always sum to the same total as before it.
type Elo struct {
	config Config
}

// NewElo creates an Elo scheme with validated config.
func NewElo(config Config) (*Elo, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("elo: %w", err)
	}
	return &Elo{config: config}, nil
}

// Scheme implements domain.ScoreAggregator.
func (*Elo) Scheme() domain.Scheme { return domain.SchemeElo }

// Aggregate implements domain.ScoreAggregator.
func (e *Elo) Aggregate(table *domain.ScoreTable) []domain.ScoredModel {
	n := len(table.Models)
	ratings := make([]float64, n)
	for i := range ratings {
		ratings[i] = e.config.InitialRating
	}

	resolver := NewPairwiseResolver(table)
	deltas := make([]float64, n)
	for _, round := range table.Rounds {
		participants := make([]int, 0, n)
		for i, m := range table.Models {
			if _, ok := table.Combined(m, round); ok {
				participants = append(participants, i)
			}
		}
		if len(participants) < 2 {
			continue
		}

		for i := range deltas {
			deltas[i] = 0
		}
		for x := 0; x < len(participants); x++ {
			for y := x + 1; y < len(participants); y++ {
				a, b := participants[x], participants[y]
				outcome, _ := resolver.CompareRound(table.Models[a], table.Models[b], round)
				d := e.config.K * (outcome.Score() - Expected(ratings[a], ratings[b]))
				deltas[a] += d
				deltas[b] -= d
			}
		}
		for _, i := range participants {
			ratings[i] += deltas[i]
		}
	}

	out := make([]domain.ScoredModel, 0, n)
	for i, m := range table.Models {
		sm := table.Baseline(m)
		sm.FinalScore = ratings[i]
		sm.Details.EloRating = domain.Float(ratings[i])
		sm.Details.EloInitial = domain.Float(e.config.InitialRating)
		out = append(out, sm)
	}
	return out
}

// Expected returns the Elo expected score of a player rated ra against one
// rated rb.
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}
