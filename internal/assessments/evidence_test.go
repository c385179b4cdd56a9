package assessments

import (
	"reflect"
	"testing"

	"github.com/bru-digital/qteria/internal/extract"
)

func tenPageDoc() *extract.ParsedDocument {
	doc := &extract.ParsedDocument{DocumentID: "doc-1"}
	for i := 1; i <= 10; i++ {
		section := "1 Scope"
		if i > 5 {
			section = "2 Requirements"
		}
		doc.Pages = append(doc.Pages, extract.Page{Page: i, Section: section, Text: "text"})
	}
	return doc
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestValidateEvidenceOutOfRangePageNulled(t *testing.T) {
	ev := &Evidence{DocumentID: "doc-1", Page: intPtr(999), Section: strPtr("1 Scope")}
	got := ValidateEvidence(ev, tenPageDoc())
	if got.Page != nil {
		t.Fatalf("page = %d, want nil for a claim beyond the last page", *got.Page)
	}
	if got.Section == nil || *got.Section != "1 Scope" {
		t.Fatal("a real section label should survive page nulling")
	}
}

func TestValidateEvidenceFabricatedSectionNulledPageKept(t *testing.T) {
	ev := &Evidence{DocumentID: "doc-1", Page: intPtr(3), Section: strPtr("7 Appendix Z")}
	got := ValidateEvidence(ev, tenPageDoc())
	if got.Section != nil {
		t.Fatalf("section = %q, want nil for a label absent from the document", *got.Section)
	}
	if got.Page == nil || *got.Page != 3 {
		t.Fatal("an in-range page should survive section nulling")
	}
}

func TestValidateEvidenceValidClaimUnchanged(t *testing.T) {
	ev := &Evidence{DocumentID: "doc-1", Page: intPtr(7), Section: strPtr("2 Requirements")}
	got := ValidateEvidence(ev, tenPageDoc())
	if got.Page == nil || *got.Page != 7 || got.Section == nil || *got.Section != "2 Requirements" {
		t.Fatalf("valid evidence was altered: %+v", got)
	}
}

func TestValidateEvidencePagelessClaimPassesThrough(t *testing.T) {
	ev := &Evidence{DocumentID: "doc-1", Section: strPtr("7 Appendix Z")}
	got := ValidateEvidence(ev, tenPageDoc())
	if got.Page != nil {
		t.Fatalf("page = %d, want nil", *got.Page)
	}
	if got.Section == nil || *got.Section != "7 Appendix Z" {
		t.Fatal("with no page claimed the evidence must pass through unchanged")
	}
}

func TestValidateEvidenceIdempotent(t *testing.T) {
	ev := &Evidence{DocumentID: "doc-1", Page: intPtr(999), Section: strPtr("nope")}
	doc := tenPageDoc()
	once := ValidateEvidence(ev, doc)
	twice := ValidateEvidence(once, doc)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed the output: %+v vs %+v", once, twice)
	}
}

func TestValidateEvidenceNilInputsPassThrough(t *testing.T) {
	if got := ValidateEvidence(nil, tenPageDoc()); got != nil {
		t.Fatal("nil evidence should stay nil")
	}
	got := ValidateEvidence(&Evidence{DocumentID: "doc-1", Page: intPtr(2)}, nil)
	if got.Page != nil {
		t.Fatal("evidence against a missing parse should lose its page claim")
	}
}
