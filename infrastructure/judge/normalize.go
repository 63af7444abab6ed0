package judge

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-hydra/internal/domain"
)

// maxRecommendationDistance is the largest edit distance at which a
// misspelled recommendation still maps to a decision.
const maxRecommendationDistance = 2

// minFuzzyWordLen keeps short words like "hi" from fuzzily matching "hire".
const minFuzzyWordLen = 4

var (
	// foldCaser is a package-level Unicode case folder for performance.
	foldCaser = cases.Fold()

	decisions = []domain.Decision{domain.DecisionHire, domain.DecisionReject, domain.DecisionRetest}

	negations = map[string]bool{"not": true, "no": true, "never": true, "dont": true}

	// synonyms maps common arbiter phrasings onto decisions.
	synonyms = map[string]domain.Decision{
		"accept":     domain.DecisionHire,
		"approve":    domain.DecisionHire,
		"hired":      domain.DecisionHire,
		"pass":       domain.DecisionHire,
		"decline":    domain.DecisionReject,
		"fail":       domain.DecisionReject,
		"rejected":   domain.DecisionReject,
		"reassess":   domain.DecisionRetest,
		"re-test":    domain.DecisionRetest,
		"reevaluate": domain.DecisionRetest,
	}
)

// NormalizeRecommendation maps free-form arbiter output such as "Hire",
// "strong hire", "REJECT." or "retset" onto a decision. Each word is case
// folded and matched exactly or by synonym; the first word that resolves
// wins, and a hire preceded by a negation such as "do not hire" reads as
// reject. A lone misspelled word matches by Levenshtein distance of at most
// two.
func NormalizeRecommendation(s string) (domain.Decision, bool) {
	words := strings.FieldsFunc(foldCaser.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})

	for i, w := range words {
		d, ok := synonyms[w]
		if dd := domain.Decision(w); dd.IsValid() {
			d, ok = dd, true
		}
		if !ok {
			continue
		}
		if d == domain.DecisionHire && i > 0 && negations[words[i-1]] {
			return domain.DecisionReject, true
		}
		return d, true
	}

	if len(words) != 1 || utf8.RuneCountInString(words[0]) < minFuzzyWordLen {
		return "", false
	}
	best, bestDist := domain.Decision(""), maxRecommendationDistance+1
	for _, d := range decisions {
		if dist := levenshtein.ComputeDistance(words[0], string(d)); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best, best != ""
}
