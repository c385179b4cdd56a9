package extract

import (
	"regexp"
	"strings"
)

// UntitledSection is attached to every page of a document that contains no
// detectable headings, so downstream joins never see an empty section.
const UntitledSection = "Untitled Section"

var (
	// Numbered headings: "3. Quality Records", "2.1 Scope", "4.1.2 Audits".
	numberedHeading = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)\.?\s+([A-Z][^\n]{2,80})\s*$`)
	// Labelled headings: "Section 4: Calibration", "Appendix B - Records".
	labelledHeading = regexp.MustCompile(`^\s*(?:Section|SECTION|Appendix|APPENDIX|Chapter|CHAPTER)\s+[A-Z0-9]+(?:\.\d+)*\s*[:\-–]?\s*(\S[^\n]{0,80})$`)
)

// tagSections runs the second extraction pass: scan each page's lines for
// heading-style text and carry the most recent heading forward. The section
// never resets once seen; pages before the first heading get UntitledSection.
func tagSections(pages []Page) []Page {
	current := ""
	for i := range pages {
		for _, line := range strings.Split(pages[i].Text, "\n") {
			if heading, ok := detectHeading(line); ok {
				current = heading
				break
			}
		}
		if current == "" {
			pages[i].Section = UntitledSection
		} else {
			pages[i].Section = current
		}
	}
	return pages
}

func detectHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 90 {
		return "", false
	}
	if m := numberedHeading.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1] + " " + strings.TrimSpace(m[2])), true
	}
	if m := labelledHeading.FindStringSubmatch(trimmed); m != nil {
		return trimmed, true
	}
	// All-caps lines of a few words read as headings in most certification
	// documents ("QUALITY MANAGEMENT SYSTEM").
	if isAllCapsHeading(trimmed) {
		return trimmed, true
	}
	return "", false
}

func isAllCapsHeading(s string) bool {
	if len(s) < 4 {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 8 {
		return false
	}
	letters := 0
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9', r == ' ', r == '-', r == '&', r == '/', r == '.':
		default:
			return false
		}
	}
	return letters >= 6
}
