package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Decision is the outcome of an interview.
type Decision string

// Interview decisions.
const (
	DecisionHire   Decision = "hire"
	DecisionReject Decision = "reject"
	DecisionRetest Decision = "retest"
)

// ParseDecision converts s into a Decision. Matching is exact after trimming
// surrounding whitespace and lowercasing.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
	return d, nil
}

// IsValid reports whether d is hire, reject or retest.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionHire, DecisionReject, DecisionRetest:
		return true
	default:
		return false
	}
}

// DecidedByUser marks a decision applied by a human reviewer.
const DecidedByUser = "user"

// RetestPending is the result recorded for a freshly scheduled retest.
const RetestPending = "pending"

// ArbiterAssessment is the structured judgement returned by the arbiter.
type ArbiterAssessment struct {
	// Scores maps competency name to a 0-10 score.
	Scores map[string]float64 `json:"scores"`

	// RedFlags lists disqualifying observations.
	RedFlags []string `json:"red_flags"`

	// Recommendation is the arbiter's suggested decision.
	Recommendation Decision `json:"recommendation"`

	// Confidence is the arbiter's certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Rationale explains the recommendation.
	Rationale string `json:"rationale,omitempty"`
}

// CandidateScore returns the mean competency score, or 0 when the arbiter
// produced no scores.
func (a ArbiterAssessment) CandidateScore() float64 {
	if len(a.Scores) == 0 {
		return 0
	}
	keys := slices.Sorted(maps.Keys(a.Scores))
	var sum float64
	for _, k := range keys {
		sum += a.Scores[k]
	}
	return sum / float64(len(a.Scores))
}

// Thresholds captures the comparison baseline at verdict time.
type Thresholds struct {
	// CurrentHolder is the model holding the role, empty on a cold start.
	CurrentHolder string `json:"current_holder"`

	// PreviousAvg is the current holder's interview average, if recorded.
	PreviousAvg *float64 `json:"previous_avg"`

	// CandidateScore is the candidate's mean competency score.
	CandidateScore float64 `json:"candidate_score"`

	// IsSameModel is true when the candidate is the current holder.
	IsSameModel bool `json:"is_same_model"`

	// IsColdStart is true when the role has no current holder.
	IsColdStart bool `json:"is_cold_start"`
}

// RetestEntry records one scheduled retest.
type RetestEntry struct {
	Competencies []string  `json:"competencies"`
	Date         time.Time `json:"date"`
	Result       string    `json:"result"`
}

// Verdict is the persisted decision record of an interview session.
// FinalDecision, DecidedBy and DecidedAt are written exactly once.
type Verdict struct {
	Arbiter          ArbiterAssessment `json:"arbiter"`
	ModeratorSummary string            `json:"moderator_summary"`
	AutoDecision     Decision          `json:"auto_decision,omitempty"`
	Thresholds       Thresholds        `json:"thresholds"`
	FinalDecision    Decision          `json:"final_decision,omitempty"`
	DecidedBy        string            `json:"decided_by,omitempty"`
	DecidedAt        *time.Time        `json:"decided_at,omitempty"`
	RetestHistory    []RetestEntry     `json:"retest_history"`
}

// IsDecided reports whether a final decision has been stamped.
func (v *Verdict) IsDecided() bool { return v != nil && v.FinalDecision != "" }

// Stamp records the final decision. It fails with ErrAlreadyDecided when a
// different decision is already present; stamping the same decision again is
// a no-op that reports false.
func (v *Verdict) Stamp(d Decision, by string, at time.Time) (bool, error) {
	if v.IsDecided() {
		if v.FinalDecision == d {
			return false, nil
		}
		return false, fmt.Errorf("%w: verdict already marked %s", ErrAlreadyDecided, v.FinalDecision)
	}
	v.FinalDecision = d
	v.DecidedBy = by
	v.DecidedAt = &at
	return true, nil
}

// PhaseEvent types emitted by a judge stream.
const (
	EventPhase    = "phase"
	EventComplete = "complete"
	EventError    = "error"
)

// PhaseEvent is one message of a streamed verdict run.
type PhaseEvent struct {
	Type    string   `json:"type"`
	Phase   string   `json:"phase,omitempty"`
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
	Verdict *Verdict `json:"verdict,omitempty"`
}
