package domain

import (
	"math"
	"time"
)

// RemovalReason explains why a role assignment was closed.
type RemovalReason string

// Removal reasons.
const (
	// RemovalUpskilled closes a record because the same model was re-hired.
	RemovalUpskilled RemovalReason = "upskilled"

	// RemovalReplaced closes a record because a different model was hired.
	RemovalReplaced RemovalReason = "replaced"
)

// Cold-start baseline parameters.
const (
	// PhantomScoreGap is subtracted from the candidate score to derive the
	// synthetic predecessor's interview average.
	PhantomScoreGap = 0.5

	// PhantomAge is how far in the past the synthetic predecessor is dated.
	PhantomAge = 24 * time.Hour

	// PhantomModelPrefix prefixes the synthetic predecessor's model ID.
	PhantomModelPrefix = "phantom:"
)

// RoleAssignment records which model held a role for a user over
// [AssignedAt, RemovedAt). An open record has a nil RemovedAt.
type RoleAssignment struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Role              string         `json:"role"`
	ModelID           string         `json:"model_id"`
	AssignedAt        time.Time      `json:"assigned_at"`
	RemovedAt         *time.Time     `json:"removed_at,omitempty"`
	RemovalReason     RemovalReason  `json:"removal_reason,omitempty"`
	InterviewAvgScore *float64       `json:"interview_avg_score,omitempty"`
	IsSynthetic       bool           `json:"is_synthetic"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// IsOpen reports whether the assignment is still active.
func (a RoleAssignment) IsOpen() bool { return a.RemovedAt == nil }

// PhantomScore returns the baseline score recorded for a cold-start
// predecessor, clamped at 0.
func PhantomScore(candidateScore float64) float64 {
	return math.Max(0, candidateScore-PhantomScoreGap)
}

// PhantomPredecessor builds the synthetic, already-closed record inserted
// when a role is filled for the first time.
func PhantomPredecessor(userID, role string, candidateScore float64, now time.Time) RoleAssignment {
	at := now.Add(-PhantomAge)
	return RoleAssignment{
		UserID:            userID,
		Role:              role,
		ModelID:           PhantomModelPrefix + role,
		AssignedAt:        at,
		RemovedAt:         &at,
		RemovalReason:     RemovalReplaced,
		InterviewAvgScore: Float(PhantomScore(candidateScore)),
		IsSynthetic:       true,
		Metadata:          map[string]any{"source": "cold_start"},
	}
}
