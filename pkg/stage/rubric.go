package stage

import (
	"strings"

	"github.com/caresim-lab/caseflow/pkg/domain/types"
)

// urgencyFloor applies the configured keyword rubric to the raw complaint
// and returns the minimum defensible urgency. The rubric runs under the
// model's assessment: whichever is higher wins. This keeps triage of known
// severe wording deterministic regardless of model variance.
//
// Negated mentions do not raise the floor: "no fever" and "denies chest
// pain" are statements of absence, not symptoms.
func urgencyFloor(complaint string, keywords map[string]types.UrgencyLevel) types.UrgencyLevel {
	lowered := strings.ToLower(complaint)
	floor := types.UrgencyLow
	for keyword, level := range keywords {
		if containsAffirmed(lowered, keyword) {
			floor = floor.Max(level)
		}
	}
	return floor
}

// containsAffirmed reports whether keyword occurs in text at least once
// outside a negation
func containsAffirmed(text, keyword string) bool {
	for from := 0; ; {
		idx := strings.Index(text[from:], keyword)
		if idx < 0 {
			return false
		}
		idx += from
		if !negated(text[:idx]) {
			return true
		}
		from = idx + len(keyword)
	}
}

// negated checks whether the text leading up to a keyword match ends with
// a negation cue. The cue scope covers up to three preceding words and
// stops at punctuation, so "no appetite, severe chest pain" still counts
// chest pain.
func negated(prefix string) bool {
	words := strings.Fields(prefix)
	for i := len(words) - 1; i >= 0 && len(words)-i <= 3; i-- {
		switch strings.Trim(words[i], ",.;:()") {
		case "no", "not", "denies", "denied", "without", "negative":
			return true
		}
		if strings.ContainsAny(words[i], ",.;:") {
			return false
		}
	}
	return false
}
