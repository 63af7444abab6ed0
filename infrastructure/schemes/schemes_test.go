package schemes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-hydra/internal/domain"
)

// result is a compact constructor for test inputs. Negative scores mean
// "not rated".
func result(model, round string, user, arbiter float64) domain.ContestResult {
	r := domain.ContestResult{ModelID: model, RoundID: round}
	if user >= 0 {
		r.UserScore = domain.Float(user)
	}
	if arbiter >= 0 {
		r.ArbiterScore = domain.Float(arbiter)
	}
	return r
}

func byModel(models []domain.ScoredModel) map[string]domain.ScoredModel {
	out := make(map[string]domain.ScoredModel, len(models))
	for _, m := range models {
		out[m.ModelID] = m
	}
	return out
}

func newTournament(t *testing.T) *Tournament {
	t.Helper()
	tour, err := NewTournament(DefaultConfig())
	require.NoError(t, err, "default config should be valid")
	return tour
}

func newElo(t *testing.T) *Elo {
	t.Helper()
	elo, err := NewElo(DefaultConfig())
	require.NoError(t, err, "default config should be valid")
	return elo
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero K rejected", mutate: func(c *Config) { c.K = 0 }, wantErr: true},
		{name: "zero initial rating rejected", mutate: func(c *Config) { c.InitialRating = 0 }, wantErr: true},
		{name: "zero win points rejected", mutate: func(c *Config) { c.WinPoints = 0 }, wantErr: true},
		{name: "draw above win rejected", mutate: func(c *Config) { c.DrawPoints = 4 }, wantErr: true},
		{name: "two points per win accepted", mutate: func(c *Config) { c.WinPoints = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSchemeConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, 1.0, Win.Score())
	assert.Equal(t, 0.5, Draw.Score())
	assert.Equal(t, 0.0, Loss.Score())

	assert.Equal(t, Loss, Win.Invert())
	assert.Equal(t, Draw, Draw.Invert())
	assert.Equal(t, Win, Loss.Invert())
}

func TestPairwiseResolver(t *testing.T) {
	t.Run("higher combined score wins the round", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 9, 9),
			result("B", "r1", 4, 4),
		}, 50)
		resolver := NewPairwiseResolver(table)

		outcome, ok := resolver.CompareRound(table.Models[0], table.Models[1], "r1")
		require.True(t, ok)
		assert.Equal(t, Win, outcome)

		outcome, ok = resolver.CompareRound(table.Models[1], table.Models[0], "r1")
		require.True(t, ok)
		assert.Equal(t, Loss, outcome)
	})

	t.Run("round without both scores is not compared", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 9, -1),
			result("B", "r1", -1, -1),
		}, 50)

		_, ok := NewPairwiseResolver(table).CompareRound(table.Models[0], table.Models[1], "r1")
		assert.False(t, ok, "B has no combined score in r1")
	})

	t.Run("match counts round wins", func(t *testing.T) {
		// Given A wins r1 and r2 while B wins r3
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 8, 8), result("B", "r1", 5, 5),
			result("A", "r2", 7, 7), result("B", "r2", 6, 6),
			result("A", "r3", 2, 2), result("B", "r3", 9, 9),
		}, 50)

		// When resolving the match
		outcome, played := NewPairwiseResolver(table).Match(table.Models[0], table.Models[1])

		// Then A takes it two rounds to one
		require.True(t, played)
		assert.Equal(t, Win, outcome)
	})

	t.Run("equal round wins draw", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 8, 8), result("B", "r1", 5, 5),
			result("A", "r2", 2, 2), result("B", "r2", 9, 9),
		}, 50)

		outcome, played := NewPairwiseResolver(table).Match(table.Models[0], table.Models[1])
		require.True(t, played)
		assert.Equal(t, Draw, outcome)
	})
}

func TestWeightedAverage_Aggregate(t *testing.T) {
	t.Run("tied blend from worked example", func(t *testing.T) {
		// Given A and B split 8/6 and 5/9 at an even weight
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 8, 6),
			result("B", "r1", 5, 9),
		}, 50)

		// When aggregating
		models := NewWeightedAverage().Aggregate(table)

		// Then both land on 7.0
		require.Len(t, models, 2)
		for _, m := range models {
			assert.InDelta(t, 7.0, m.FinalScore, 1e-9, "model %s", m.ModelID)
			require.NotNil(t, m.Details.WeightedTotal)
			assert.InDelta(t, 7.0, *m.Details.WeightedTotal, 1e-9)
			assert.Zero(t, m.Rank, "aggregators must not assign ranks")
			assert.Nil(t, m.Details.EloRating)
			assert.Nil(t, m.Details.Wins)
		}
	})

	t.Run("full user weight equals average user score", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 8, 1),
			result("A", "r2", 6, 2),
			result("B", "r1", -1, 9),
			result("C", "r1", 3, -1),
		}, 100)

		got := byModel(NewWeightedAverage().Aggregate(table))

		assert.InDelta(t, 7.0, got["A"].FinalScore, 1e-9)
		assert.InDelta(t, 0.0, got["B"].FinalScore, 1e-9, "missing user side counts as 0")
		assert.Nil(t, got["B"].AvgUser)
		assert.InDelta(t, 3.0, got["C"].FinalScore, 1e-9)
	})

	t.Run("unscored model gets zero", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", -1, -1),
		}, 50)

		models := NewWeightedAverage().Aggregate(table)

		require.Len(t, models, 1)
		assert.Equal(t, 0.0, models[0].FinalScore)
		assert.Nil(t, models[0].AvgUser)
		assert.Nil(t, models[0].AvgArbiter)
	})

	t.Run("criteria averages cover every key", func(t *testing.T) {
		a := result("A", "r1", 5, 5)
		a.CriteriaScores = domain.CriteriaScores{{Key: "accuracy", Score: 8}}
		b := result("B", "r1", 5, 5)
		b.CriteriaScores = domain.CriteriaScores{{Key: "clarity", Score: 6}, {Key: "accuracy", Score: 4}}

		models := NewWeightedAverage().Aggregate(domain.BuildScoreTable([]domain.ContestResult{a, b}, 50))
		got := byModel(models)

		require.Len(t, got["A"].CriteriaAvg, 2)
		assert.Equal(t, "accuracy", got["A"].CriteriaAvg[0].Key)
		assert.Equal(t, "clarity", got["A"].CriteriaAvg[1].Key)
		assert.Nil(t, got["A"].CriteriaAvg[1].Avg, "missing criterion stays nil")
		require.NotNil(t, got["B"].CriteriaAvg[0].Avg)
		assert.Equal(t, 4.0, *got["B"].CriteriaAvg[0].Avg)
	})
}

func TestTournament_Aggregate(t *testing.T) {
	tests := []struct {
		name    string
		results []domain.ContestResult
		want    map[string][4]int // wins, draws, losses, points
	}{
		{
			name: "equal combined scores draw",
			results: []domain.ContestResult{
				result("A", "r1", 8, 6),
				result("B", "r1", 5, 9),
			},
			want: map[string][4]int{"A": {0, 1, 0, 1}, "B": {0, 1, 0, 1}},
		},
		{
			name: "disjoint rounds play no match",
			results: []domain.ContestResult{
				result("A", "r1", 8, 8),
				result("B", "r2", 3, 3),
			},
			want: map[string][4]int{"A": {0, 0, 0, 0}, "B": {0, 0, 0, 0}},
		},
		{
			name: "three way round robin",
			results: []domain.ContestResult{
				result("A", "r1", 9, 9), result("B", "r1", 6, 6), result("C", "r1", 3, 3),
				result("A", "r2", 9, 9), result("B", "r2", 6, 6), result("C", "r2", 6, 6),
			},
			// A beats B and C. B vs C: B wins r1, r2 drawn, so B wins the match.
			want: map[string][4]int{"A": {2, 0, 0, 6}, "B": {1, 0, 1, 3}, "C": {0, 0, 2, 0}},
		},
		{
			name: "missing side treated as zero in combination",
			results: []domain.ContestResult{
				result("A", "r1", 6, -1),
				result("B", "r1", 2, 2),
			},
			// A combined 3.0, B combined 2.0.
			want: map[string][4]int{"A": {1, 0, 0, 3}, "B": {0, 0, 1, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := newTournament(t).Aggregate(domain.BuildScoreTable(tt.results, 50))
			got := byModel(models)
			require.Len(t, got, len(tt.want))

			for id, want := range tt.want {
				m := got[id]
				require.NotNil(t, m.Details.Wins, "model %s", id)
				assert.Equal(t, want[0], *m.Details.Wins, "wins for %s", id)
				assert.Equal(t, want[1], *m.Details.Draws, "draws for %s", id)
				assert.Equal(t, want[2], *m.Details.Losses, "losses for %s", id)
				assert.Equal(t, want[3], *m.Details.TournamentPoints, "points for %s", id)
				assert.Equal(t, float64(want[3]), m.FinalScore)
			}
		})
	}
}

func TestTournament_CustomPoints(t *testing.T) {
	tour, err := NewTournament(Config{K: 32, InitialRating: 1500, WinPoints: 2, DrawPoints: 1})
	require.NoError(t, err)

	models := tour.Aggregate(domain.BuildScoreTable([]domain.ContestResult{
		result("A", "r1", 9, 9),
		result("B", "r1", 1, 1),
	}, 50))

	assert.Equal(t, 2.0, byModel(models)["A"].FinalScore)
}

func TestElo_Aggregate(t *testing.T) {
	t.Run("two model round is zero sum", func(t *testing.T) {
		// Given A beats B once from equal ratings
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 9, 9),
			result("B", "r1", 3, 3),
		}, 50)

		// When replaying
		got := byModel(newElo(t).Aggregate(table))

		// Then A gains exactly what B loses
		assert.InDelta(t, 1516.0, got["A"].FinalScore, 1e-9)
		assert.InDelta(t, 1484.0, got["B"].FinalScore, 1e-9)
		assert.InDelta(t, 3000.0, got["A"].FinalScore+got["B"].FinalScore, 1e-9)
		require.NotNil(t, got["A"].Details.EloInitial)
		assert.Equal(t, 1500.0, *got["A"].Details.EloInitial)
		assert.Equal(t, got["A"].FinalScore, *got["A"].Details.EloRating)
	})

	t.Run("three participants use pre-round ratings", func(t *testing.T) {
		table := domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 9, 9),
			result("B", "r1", 6, 6),
			result("C", "r1", 3, 3),
		}, 50)

		got := byModel(newElo(t).Aggregate(table))

		assert.InDelta(t, 1532.0, got["A"].FinalScore, 1e-9)
		assert.InDelta(t, 1500.0, got["B"].FinalScore, 1e-9)
		assert.InDelta(t, 1468.0, got["C"].FinalScore, 1e-9)
	})

	t.Run("pair order does not change ratings", func(t *testing.T) {
		forward := []domain.ContestResult{
			result("A", "r1", 9, 9), result("B", "r1", 6, 6), result("C", "r1", 3, 3), result("D", "r1", 6, 6),
			result("A", "r2", 2, 2), result("B", "r2", 8, 8), result("C", "r2", 5, 5), result("D", "r2", 7, 7),
		}
		reversed := make([]domain.ContestResult, 0, len(forward))
		for _, round := range [][]domain.ContestResult{forward[:4], forward[4:]} {
			for i := len(round) - 1; i >= 0; i-- {
				reversed = append(reversed, round[i])
			}
		}

		a := byModel(newElo(t).Aggregate(domain.BuildScoreTable(forward, 50)))
		b := byModel(newElo(t).Aggregate(domain.BuildScoreTable(reversed, 50)))

		var total float64
		for id, m := range a {
			assert.InDelta(t, m.FinalScore, b[id].FinalScore, 1e-9, "model %s", id)
			total += m.FinalScore
		}
		assert.InDelta(t, 4*1500.0, total, 1e-9, "every round is zero sum")
	})

	t.Run("round index fixes replay order", func(t *testing.T) {
		// Given r2 appears first but carries the later index
		r2a, r2b := result("A", "r2", 9, 9), result("B", "r2", 1, 1)
		r2a.RoundIndex, r2b.RoundIndex = domain.Int(2), domain.Int(2)
		r1a, r1b, r1c := result("A", "r1", 1, 1), result("B", "r1", 9, 9), result("C", "r1", 5, 5)
		r1a.RoundIndex, r1b.RoundIndex, r1c.RoundIndex = domain.Int(1), domain.Int(1), domain.Int(1)

		indexed := []domain.ContestResult{r2a, r2b, r1a, r1b, r1c}
		chronological := []domain.ContestResult{r1a, r1b, r1c, r2a, r2b}

		// When replaying both orderings
		a := byModel(newElo(t).Aggregate(domain.BuildScoreTable(indexed, 50)))
		b := byModel(newElo(t).Aggregate(domain.BuildScoreTable(chronological, 50)))

		// Then the explicit index wins over array order
		for id := range b {
			assert.InDelta(t, b[id].FinalScore, a[id].FinalScore, 1e-9, "model %s", id)
		}
	})

	t.Run("lone participant keeps its rating", func(t *testing.T) {
		got := newElo(t).Aggregate(domain.BuildScoreTable([]domain.ContestResult{
			result("A", "r1", 9, 9),
			result("B", "r2", 1, 1),
		}, 50))

		for _, m := range got {
			assert.Equal(t, 1500.0, m.FinalScore)
		}
	})
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-12)
	assert.InDelta(t, 1.0, Expected(1900, 1500)+Expected(1500, 1900), 1e-12)
	assert.InDelta(t, 1/(1+math.Pow(10, -1)), Expected(1900, 1500), 1e-12)
}
