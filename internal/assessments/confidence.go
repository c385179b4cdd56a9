package assessments

import "strings"

var lowConfidenceMarkers = []string{"unclear", "possibly", "uncertain", "may be"}

var highConfidenceMarkers = []string{"definitely", "clear", "explicit"}

// ClassifyConfidence normalizes the model's self-reported confidence against
// hedging language in its reasoning text. Low signals dominate: a verdict that
// claims high confidence but reasons in "possibly" terms is classified low,
// and high markers are only consulted when no low signal was found.
func ClassifyConfidence(reported, reasoning string) string {
	lower := strings.ToLower(reasoning)
	if strings.EqualFold(reported, ConfidenceLow) || containsAny(lower, lowConfidenceMarkers) {
		return ConfidenceLow
	}
	if containsAny(lower, highConfidenceMarkers) {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
