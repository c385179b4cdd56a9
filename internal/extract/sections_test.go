package extract

import "testing"

func TestTagSectionsCarriesHeadingForward(t *testing.T) {
	pages := []Page{
		{Page: 1, Text: "Cover page\nAcme Corp"},
		{Page: 2, Text: "1. Introduction\nThis manual describes..."},
		{Page: 3, Text: "body text continues"},
		{Page: 4, Text: "2.1 Scope Of Certification\nThe scope covers..."},
		{Page: 5, Text: "more body text"},
	}
	tagged := tagSections(pages)

	if tagged[0].Section != UntitledSection {
		t.Fatalf("page 1 section = %q, want %q before first heading", tagged[0].Section, UntitledSection)
	}
	if tagged[1].Section != "1 Introduction" {
		t.Fatalf("page 2 section = %q", tagged[1].Section)
	}
	if tagged[2].Section != "1 Introduction" {
		t.Fatalf("page 3 should carry forward, got %q", tagged[2].Section)
	}
	if tagged[3].Section != "2.1 Scope Of Certification" {
		t.Fatalf("page 4 section = %q", tagged[3].Section)
	}
	if tagged[4].Section != "2.1 Scope Of Certification" {
		t.Fatalf("page 5 should carry forward, got %q", tagged[4].Section)
	}
}

func TestTagSectionsNoHeadingsYieldsUntitled(t *testing.T) {
	pages := []Page{
		{Page: 1, Text: "just prose"},
		{Page: 2, Text: "more prose"},
	}
	for _, p := range tagSections(pages) {
		if p.Section != UntitledSection {
			t.Fatalf("page %d section = %q, want %q", p.Page, p.Section, UntitledSection)
		}
	}
}

func TestTagSectionsNeverResets(t *testing.T) {
	pages := []Page{
		{Page: 1, Text: "QUALITY MANAGEMENT SYSTEM\nintro"},
		{Page: 2, Text: ""},
		{Page: 3, Text: "plain text, no heading"},
	}
	tagged := tagSections(pages)
	for _, p := range tagged {
		if p.Section != "QUALITY MANAGEMENT SYSTEM" {
			t.Fatalf("page %d section = %q, heading should persist", p.Page, p.Section)
		}
	}
}

func TestDetectHeadingRejectsProse(t *testing.T) {
	for _, line := range []string{
		"the audit was performed in March",
		"",
		"a",
		"This Is Mixed Case Prose That Should Not Match Because It Has No Number",
	} {
		if got, ok := detectHeading(line); ok {
			t.Fatalf("detectHeading(%q) = %q, want no match", line, got)
		}
	}
}

func TestDetectHeadingLabelled(t *testing.T) {
	if _, ok := detectHeading("Section 4: Calibration Records"); !ok {
		t.Fatal("expected labelled heading match")
	}
	if _, ok := detectHeading("Appendix B - Records"); !ok {
		t.Fatal("expected appendix heading match")
	}
}
