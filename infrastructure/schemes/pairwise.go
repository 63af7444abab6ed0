package schemes

import "github.com/ahrav/go-hydra/internal/domain"

// Outcome is the result of a comparison from the first model's point of view.
type Outcome int

// Comparison outcomes.
const (
	Loss Outcome = iota
	Draw
	Win
)

// Score returns the Elo actual score for the outcome: 1, 0.5 or 0.
func (o Outcome) Score() float64 {
	switch o {
	case Win:
		return 1
	case Draw:
		return 0.5
	default:
		return 0
	}
}

// Invert returns the same outcome seen from the other side.
func (o Outcome) Invert() Outcome { return Win - o }

// PairwiseResolver derives win, draw and loss between two models from their
// combined per-round scores. Tournament and Elo share it so both schemes see
// the same comparison rules.
//
// The resolver holds no state and is safe for concurrent use.
type PairwiseResolver struct {
	table *domain.ScoreTable
}

// NewPairwiseResolver binds a resolver to table.
func NewPairwiseResolver(table *domain.ScoreTable) PairwiseResolver {
	return PairwiseResolver{table: table}
}

// CompareRound compares a and b in a single round. The second return is
// false when either model has no combined score for the round.
// A strictly higher combined score wins; equal scores draw.
func (p PairwiseResolver) CompareRound(a, b *domain.ModelScores, round string) (Outcome, bool) {
	sa, okA := p.table.Combined(a, round)
	sb, okB := p.table.Combined(b, round)
	if !okA || !okB {
		return Draw, false
	}
	return compare(sa, sb), true
}

// Match resolves a head-to-head match over every round both models scored
// in. The model with more round wins takes the match; equal round wins with
// at least one common round is a draw. The second return is false when the
// models share no scored round, in which case no match took place.
func (p PairwiseResolver) Match(a, b *domain.ModelScores) (Outcome, bool) {
	var winsA, winsB, common int
	for _, round := range p.table.Rounds {
		outcome, ok := p.CompareRound(a, b, round)
		if !ok {
			continue
		}
		common++
		switch outcome {
		case Win:
			winsA++
		case Loss:
			winsB++
		}
	}
	if common == 0 {
		return Draw, false
	}
	return compare(float64(winsA), float64(winsB)), true
}

func compare(a, b float64) Outcome {
	switch {
	case a > b:
		return Win
	case a < b:
		return Loss
	default:
		return Draw
	}
}
