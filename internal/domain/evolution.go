package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DiscrepancyThreshold is the absolute user/arbiter gap, on the 0-10 scale,
// at which a result is escalated to the Evolutioner.
const DiscrepancyThreshold = 2.5

// EvolutionCodePrefix prefixes every evolution record code.
const EvolutionCodePrefix = "HYDRA-EVO-"

// SupervisorRole is the user role notified about new evolution records.
const SupervisorRole = "supervisor"

// EvolutionRecord is the durable audit trail of an escalated discrepancy.
type EvolutionRecord struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	ContestID    string    `json:"contest_id"`
	ResultID     string    `json:"result_id"`
	ModelID      string    `json:"model_id"`
	RoundID      string    `json:"round_id"`
	UserScore    float64   `json:"user_score"`
	ArbiterScore float64   `json:"arbiter_score"`
	Delta        float64   `json:"delta"`
	Hypothesis   string    `json:"hypothesis"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsDiscrepant reports whether the scores disagree by at least
// DiscrepancyThreshold.
func IsDiscrepant(userScore, arbiterScore float64) bool {
	return ExceedsThreshold(userScore, arbiterScore, DiscrepancyThreshold)
}

// ExceedsThreshold reports whether |userScore - arbiterScore| >= threshold.
func ExceedsThreshold(userScore, arbiterScore, threshold float64) bool {
	return math.Abs(userScore-arbiterScore) >= threshold
}

// ParseEvolutionCode returns the numeric suffix of a HYDRA-EVO code.
func ParseEvolutionCode(code string) (int, bool) {
	suffix, ok := strings.CutPrefix(code, EvolutionCodePrefix)
	if !ok || suffix == "" {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextEvolutionCode returns the code following the highest numeric suffix in
// existing, zero-padded to three digits. Codes that do not parse are ignored.
func NextEvolutionCode(existing []string) string {
	highest := 0
	for _, code := range existing {
		if n, ok := ParseEvolutionCode(code); ok && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", EvolutionCodePrefix, highest+1)
}
