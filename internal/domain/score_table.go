package domain

import (
	"math"
	"sort"
)

// Weights splits a blended score between the human and the arbiter. The two
// percentages always sum to 100.
type Weights struct {
	User    int
	Arbiter int
}

// NewWeights clamps userWeight into [0, 100] and derives the arbiter share.
func NewWeights(userWeight int) Weights {
	if userWeight < 0 {
		userWeight = 0
	}
	if userWeight > 100 {
		userWeight = 100
	}
	return Weights{User: userWeight, Arbiter: 100 - userWeight}
}

// Blend combines a user and an arbiter score. A missing side contributes 0.
// This is the single null policy shared by every scheme.
func (w Weights) Blend(user, arbiter *float64) float64 {
	var u, a float64
	if user != nil {
		u = *user
	}
	if arbiter != nil {
		a = *arbiter
	}
	return u*float64(w.User)/100 + a*float64(w.Arbiter)/100
}

// meanAcc accumulates a running mean.
type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v float64) {
	m.sum += v
	m.count++
}

func (m *meanAcc) mean() *float64 {
	if m == nil || m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

// roundAcc holds one model's scores for one round.
type roundAcc struct {
	user    meanAcc
	arbiter meanAcc
}

// ModelScores is one model's slice of a ScoreTable.
type ModelScores struct {
	// ModelID identifies the model.
	ModelID string

	user     meanAcc
	arbiter  meanAcc
	rounds   map[string]*roundAcc
	criteria map[string]*meanAcc
}

// AvgUser returns the mean of all non-nil user scores, or nil.
func (m *ModelScores) AvgUser() *float64 { return m.user.mean() }

// AvgArbiter returns the mean of all non-nil arbiter scores, or nil.
func (m *ModelScores) AvgArbiter() *float64 { return m.arbiter.mean() }

// HasScores reports whether the model received at least one score of either
// kind.
func (m *ModelScores) HasScores() bool { return m.user.count > 0 || m.arbiter.count > 0 }

// ScoreTable is the per-model, per-round view of a contest that every scheme
// aggregates over. It is immutable after BuildScoreTable returns.
type ScoreTable struct {
	// Weights is the clamped user/arbiter split.
	Weights Weights

	// Models lists every model in order of first appearance.
	Models []*ModelScores

	// Rounds lists round IDs in replay order. Rounds are ordered by their
	// smallest RoundIndex when any result carries one (unindexed rounds go
	// last), otherwise by first appearance.
	Rounds []string

	// CriteriaKeys is the union of criteria keys in order of first occurrence.
	CriteriaKeys []string
}

// BuildScoreTable indexes results by model and round. Non-finite scores are
// treated as missing.
func BuildScoreTable(results []ContestResult, userWeight int) *ScoreTable {
	table := &ScoreTable{Weights: NewWeights(userWeight)}

	byModel := make(map[string]*ModelScores)
	seenRound := make(map[string]bool)
	seenCriterion := make(map[string]bool)
	roundIndex := make(map[string]int)
	indexed := false

	for _, r := range results {
		ms, ok := byModel[r.ModelID]
		if !ok {
			ms = &ModelScores{
				ModelID:  r.ModelID,
				rounds:   make(map[string]*roundAcc),
				criteria: make(map[string]*meanAcc),
			}
			byModel[r.ModelID] = ms
			table.Models = append(table.Models, ms)
		}

		if !seenRound[r.RoundID] {
			seenRound[r.RoundID] = true
			table.Rounds = append(table.Rounds, r.RoundID)
		}
		if r.RoundIndex != nil {
			indexed = true
			if cur, ok := roundIndex[r.RoundID]; !ok || *r.RoundIndex < cur {
				roundIndex[r.RoundID] = *r.RoundIndex
			}
		}

		ra, ok := ms.rounds[r.RoundID]
		if !ok {
			ra = &roundAcc{}
			ms.rounds[r.RoundID] = ra
		}
		if v, ok := finite(r.UserScore); ok {
			ms.user.add(v)
			ra.user.add(v)
		}
		if v, ok := finite(r.ArbiterScore); ok {
			ms.arbiter.add(v)
			ra.arbiter.add(v)
		}

		for _, cs := range r.CriteriaScores {
			if !seenCriterion[cs.Key] {
				seenCriterion[cs.Key] = true
				table.CriteriaKeys = append(table.CriteriaKeys, cs.Key)
			}
			if math.IsNaN(cs.Score) || math.IsInf(cs.Score, 0) {
				continue
			}
			acc, ok := ms.criteria[cs.Key]
			if !ok {
				acc = &meanAcc{}
				ms.criteria[cs.Key] = acc
			}
			acc.add(cs.Score)
		}
	}

	if indexed {
		sort.SliceStable(table.Rounds, func(i, j int) bool {
			ii, iok := roundIndex[table.Rounds[i]]
			ji, jok := roundIndex[table.Rounds[j]]
			switch {
			case iok && jok:
				return ii < ji
			case iok:
				return true
			default:
				return false
			}
		})
	}

	return table
}

// Combined returns the blended score of model m in round, and false when the
// model has no score of either kind in that round.
func (t *ScoreTable) Combined(m *ModelScores, round string) (float64, bool) {
	ra, ok := m.rounds[round]
	if !ok || (ra.user.count == 0 && ra.arbiter.count == 0) {
		return 0, false
	}
	return t.Weights.Blend(ra.user.mean(), ra.arbiter.mean()), true
}

// Baseline returns the scheme-independent part of m's ScoredModel: the user
// and arbiter averages and one criteria average per table criterion.
func (t *ScoreTable) Baseline(m *ModelScores) ScoredModel {
	criteria := make([]CriterionAverage, 0, len(t.CriteriaKeys))
	for _, key := range t.CriteriaKeys {
		criteria = append(criteria, CriterionAverage{Key: key, Avg: m.criteria[key].mean()})
	}
	return ScoredModel{
		ModelID:     m.ModelID,
		AvgUser:     m.AvgUser(),
		AvgArbiter:  m.AvgArbiter(),
		CriteriaAvg: criteria,
	}
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}
