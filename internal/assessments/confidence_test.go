package assessments

import "testing"

func TestClassifyConfidenceReportedLowWins(t *testing.T) {
	got := ClassifyConfidence("low", "The document definitely contains a signature block.")
	if got != ConfidenceLow {
		t.Fatalf("ClassifyConfidence = %q, want low when the model reports low", got)
	}
}

func TestClassifyConfidenceLowMarkerBeatsHighMarker(t *testing.T) {
	// Precedence, not majority vote: one hedge drowns out any certainty.
	got := ClassifyConfidence("high", "It is definitely signed, although the date is unclear.")
	if got != ConfidenceLow {
		t.Fatalf("ClassifyConfidence = %q, want low when both marker kinds appear", got)
	}
}

func TestClassifyConfidenceHighMarkers(t *testing.T) {
	got := ClassifyConfidence("medium", "Section 3 contains an explicit retention policy.")
	if got != ConfidenceHigh {
		t.Fatalf("ClassifyConfidence = %q, want high", got)
	}
}

func TestClassifyConfidenceDefaultsToMedium(t *testing.T) {
	got := ClassifyConfidence("high", "The policy is described on page 4.")
	if got != ConfidenceMedium {
		t.Fatalf("ClassifyConfidence = %q, want medium without markers", got)
	}
}

func TestClassifyConfidenceMarkerMatchingIsCaseInsensitive(t *testing.T) {
	got := ClassifyConfidence("medium", "Possibly covered by the appendix.")
	if got != ConfidenceLow {
		t.Fatalf("ClassifyConfidence = %q, want low for capitalized hedge", got)
	}
}
