package assessments

import "github.com/bru-digital/qteria/internal/extract"

// ValidateEvidence cross-checks a verdict's claimed evidence location against
// the document's parsed structure. Unverifiable claims are nulled rather than
// persisted as dangling references. The function is pure and idempotent.
func ValidateEvidence(ev *Evidence, parsed *extract.ParsedDocument) *Evidence {
	if ev == nil {
		return nil
	}
	out := &Evidence{DocumentID: ev.DocumentID, Page: ev.Page, Section: ev.Section}
	if parsed == nil {
		out.Page = nil
		out.Section = nil
		return out
	}
	// A nil page means no location was claimed; nothing to verify.
	if out.Page == nil {
		return out
	}
	if p := *out.Page; p < 1 || p > parsed.MaxPage() {
		out.Page = nil
	}
	if out.Section != nil && !parsed.HasSection(*out.Section) {
		out.Section = nil
	}
	return out
}
