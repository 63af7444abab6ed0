package domain

// ScoreAggregator turns a prepared score table into one ScoredModel per
// model. Implementations provide the different leaderboard schemes such as
// weighted average, round-robin tournament or Elo.
//
// Aggregate must:
//   - return exactly one entry per model in table.Models, in the same order
//   - leave Rank unset; ranks are assigned by the caller after aggregation
//   - never fail; missing scores are handled by the table's null policy
//
// Implementations must be safe for concurrent use.
type ScoreAggregator interface {
	// Scheme returns the scheme this aggregator implements.
	Scheme() Scheme

	// Aggregate computes final scores and scheme details for every model.
	//
	// Example:
	//
	//	table := domain.BuildScoreTable(results, 50)
	//	models := aggregator.Aggregate(table)
	Aggregate(table *ScoreTable) []ScoredModel
}
