package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Scheme identifies the strategy used to turn per-round judge scores into a
// ranked leaderboard.
type Scheme string

// Supported scoring schemes.
const (
	// SchemeWeightedAvg blends each model's mean user and arbiter scores.
	SchemeWeightedAvg Scheme = "weighted-avg"

	// SchemeTournament plays a round-robin between every pair of models and
	// awards football-style points (win=3, draw=1, loss=0).
	SchemeTournament Scheme = "tournament"

	// SchemeElo replays rounds in order and updates Elo ratings pairwise.
	SchemeElo Scheme = "elo"
)

// DefaultUserWeight is the percentage of the blended score given to the human
// score when the caller does not specify one.
const DefaultUserWeight = 50

// Schemes returns the built-in schemes in documentation order.
func Schemes() []Scheme { return []Scheme{SchemeWeightedAvg, SchemeTournament, SchemeElo} }

// IsValid reports whether s names a built-in scheme.
func (s Scheme) IsValid() bool {
	switch s {
	case SchemeWeightedAvg, SchemeTournament, SchemeElo:
		return true
	default:
		return false
	}
}

// ContestResult is one judged response inside a contest round.
// Scores are on a 0-10 scale and either side may be absent when the response
// has not been rated yet.
type ContestResult struct {
	// ID identifies the stored result. It is empty for ad-hoc scoring input.
	ID string `json:"id,omitempty"`

	// ContestID groups results belonging to the same contest.
	ContestID string `json:"contest_id,omitempty"`

	// ModelID identifies the competing model.
	ModelID string `json:"model_id" validate:"required"`

	// RoundID groups results that answered the same prompt.
	RoundID string `json:"round_id" validate:"required"`

	// RoundIndex optionally pins the chronological position of the round.
	// When any result carries an index, Elo replays rounds by index instead
	// of by first appearance.
	RoundIndex *int `json:"round_index,omitempty" validate:"omitempty,min=0"`

	// UserScore is the human rating, nil when unrated.
	UserScore *float64 `json:"user_score,omitempty" validate:"omitempty,min=0,max=10"`

	// ArbiterScore is the arbiter model's rating, nil when unrated.
	ArbiterScore *float64 `json:"arbiter_score,omitempty" validate:"omitempty,min=0,max=10"`

	// CriteriaScores is the named sub-score breakdown in insertion order.
	CriteriaScores CriteriaScores `json:"criteria_scores,omitempty"`

	// ResponseText is the judged response body.
	ResponseText string `json:"response_text,omitempty"`
}

// CriterionScore is a single named sub-score.
type CriterionScore struct {
	Key   string
	Score float64
}

// CriteriaScores is an ordered set of criterion sub-scores. It encodes as a
// JSON object and keeps the key order of the decoded document so criteria
// columns render in the order judges produced them.
type CriteriaScores []CriterionScore

// Get returns the score recorded for key.
func (c CriteriaScores) Get(key string) (float64, bool) {
	for _, cs := range c {
		if cs.Key == key {
			return cs.Score, true
		}
	}
	return 0, false
}

// Set replaces the score for key or appends it when absent.
func (c CriteriaScores) Set(key string, score float64) CriteriaScores {
	for i := range c {
		if c[i].Key == key {
			c[i].Score = score
			return c
		}
	}
	return append(c, CriterionScore{Key: key, Score: score})
}

// MarshalJSON encodes the criteria as an object in insertion order.
func (c CriteriaScores) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cs := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cs.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cs.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object while preserving key order.
// Non-numeric values are skipped rather than rejected; malformed criteria
// must never fail a scoring run.
func (c *CriteriaScores) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("criteria_scores: expected object, got %v", tok)
	}

	out := make(CriteriaScores, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("criteria_scores: invalid key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var score *float64
		if err := json.Unmarshal(raw, &score); err != nil || score == nil {
			continue
		}
		out = out.Set(key, *score)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// ScoreDetails carries the scheme-specific breakdown of a ScoredModel.
// Only the fields belonging to the scheme that produced the model are set.
type ScoreDetails struct {
	// WeightedTotal is the weighted-avg blend.
	WeightedTotal *float64 `json:"weighted_total,omitempty"`

	// Wins, Draws, Losses and TournamentPoints describe tournament standings.
	Wins             *int `json:"wins,omitempty"`
	Draws            *int `json:"draws,omitempty"`
	Losses           *int `json:"losses,omitempty"`
	TournamentPoints *int `json:"tournament_points,omitempty"`

	// EloRating is the rating after all rounds; EloInitial is the seed.
	EloRating  *float64 `json:"elo_rating,omitempty"`
	EloInitial *float64 `json:"elo_initial,omitempty"`
}

// CriterionAverage is a model's mean score for one criterion. Avg is nil when
// the model never received that criterion.
type CriterionAverage struct {
	Key string   `json:"key"`
	Avg *float64 `json:"avg"`
}

// ScoredModel is the derived, per-model leaderboard entry.
type ScoredModel struct {
	ModelID     string             `json:"model_id"`
	FinalScore  float64            `json:"final_score"`
	Rank        int                `json:"rank"`
	AvgUser     *float64           `json:"avg_user"`
	AvgArbiter  *float64           `json:"avg_arbiter"`
	Details     ScoreDetails       `json:"details"`
	CriteriaAvg []CriterionAverage `json:"criteria_avg"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
