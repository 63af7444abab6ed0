package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of an interview session.
type SessionStatus string

// Interview session states.
const (
	StatusBriefing     SessionStatus = "briefing"
	StatusScoring      SessionStatus = "scoring"
	StatusVerdictReady SessionStatus = "verdict_ready"
	StatusCompleted    SessionStatus = "completed"
	StatusBriefed      SessionStatus = "briefed"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusBriefing:     {StatusScoring},
	StatusBriefed:      {StatusScoring},
	StatusScoring:      {StatusScoring, StatusVerdictReady},
	StatusVerdictReady: {StatusScoring, StatusCompleted, StatusBriefed},
}

// CanTransition reports whether a session may move from one status to another.
// Completed sessions are terminal.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InterviewSession is a hiring simulation of CandidateModel for Role.
type InterviewSession struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Role           string        `json:"role"`
	CandidateModel string        `json:"candidate_model"`
	Transcript     string        `json:"transcript,omitempty"`
	Status         SessionStatus `json:"status"`
	Verdict        *Verdict      `json:"verdict,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TransitionTo moves the session to status or returns ErrInvalidTransition.
func (s *InterviewSession) TransitionTo(status SessionStatus) error {
	if !CanTransition(s.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, status)
	}
	s.Status = status
	return nil
}
