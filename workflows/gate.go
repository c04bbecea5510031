package workflows

import "strings"

// planningKeywords are the parameters a plan cannot be drafted without:
// goal, key metric, budget and time horizon.
var planningKeywords = []string{"cel", "kpi", "budżet", "horyzont"}

// ambiguityMarkers signal that the user is unsure or asking back.
var ambiguityMarkers = []string{"?", "nie wiem"}

// NeedsClarification reports whether the utterance is missing any planning
// parameter or reads as ambiguous. Matching is case-insensitive substring search.
func NeedsClarification(text string) bool {
	low := strings.ToLower(text)

	for _, k := range planningKeywords {
		if !strings.Contains(low, k) {
			return true
		}
	}
	for _, m := range ambiguityMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}
