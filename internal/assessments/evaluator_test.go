package assessments

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/extract"
	"github.com/bru-digital/qteria/internal/llm"
)

type scriptedClient struct {
	response string
	err      error
	prompts  []string
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (string, error) {
	c.prompts = append(c.prompts, req.Prompt)
	return c.response, c.err
}

func testBatch() []criteria.CriterionSpec {
	return []criteria.CriterionSpec{
		{ID: "crit-1", Name: "Documents must be signed"},
		{ID: "crit-2", Name: "Retention policy must be stated"},
	}
}

func testDocs() []extract.ParsedDocument {
	return []extract.ParsedDocument{{
		DocumentID: "doc-1",
		Pages: []extract.Page{
			{Page: 1, Section: "1 Scope", Text: "signed by the CTO"},
			{Page: 2, Section: "2 Retention", Text: "kept for seven years"},
		},
	}}
}

func TestEvaluateParsesWellFormedResponse(t *testing.T) {
	client := &scriptedClient{response: `[
		{"criteria_id": "crit-1", "pass": true, "confidence": "high", "evidence_page": 1, "evidence_section": "1 Scope", "evidence_document_id": "doc-1", "reasoning": "signed"},
		{"criteria_id": "crit-2", "pass": false, "confidence": "medium", "evidence_page": null, "evidence_section": null, "evidence_document_id": null, "reasoning": "not found"}
	]`}
	e := &Evaluator{Client: client}

	got, err := e.Evaluate(context.Background(), testBatch(), testDocs())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(got))
	}
	if got[0].Pass == nil || !*got[0].Pass {
		t.Fatal("crit-1 should pass")
	}
	if got[1].EvidencePage != nil {
		t.Fatal("crit-2 evidence_page should be nil")
	}
}

func TestEvaluateToleratesMarkdownFences(t *testing.T) {
	client := &scriptedClient{response: "```json\n[{\"criteria_id\": \"crit-1\", \"pass\": true, \"confidence\": \"high\", \"reasoning\": \"ok\"}]\n```"}
	e := &Evaluator{Client: client}

	got, err := e.Evaluate(context.Background(), testBatch()[:1], testDocs())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].CriteriaID != "crit-1" {
		t.Fatalf("unexpected verdicts: %+v", got)
	}
}

func TestEvaluateMissingCriterionIsFormatError(t *testing.T) {
	client := &scriptedClient{response: `[{"criteria_id": "crit-1", "pass": true, "confidence": "high", "reasoning": "ok"}]`}
	e := &Evaluator{Client: client}

	_, err := e.Evaluate(context.Background(), testBatch(), testDocs())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FormatError", err)
	}
	if !reflect.DeepEqual(fe.MissingCriteria, []string{"crit-2"}) {
		t.Fatalf("MissingCriteria = %v, want [crit-2]", fe.MissingCriteria)
	}
}

func TestEvaluateNonBooleanPassIsFormatError(t *testing.T) {
	client := &scriptedClient{response: `[
		{"criteria_id": "crit-1", "pass": null, "confidence": "high", "reasoning": "ok"},
		{"criteria_id": "crit-2", "pass": false, "confidence": "low", "reasoning": "no"}
	]`}
	e := &Evaluator{Client: client}

	_, err := e.Evaluate(context.Background(), testBatch(), testDocs())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FormatError for null pass", err)
	}
}

func TestEvaluateUnexpectedAndDuplicateIDsAreFormatErrors(t *testing.T) {
	cases := map[string]string{
		"unexpected": `[{"criteria_id": "crit-99", "pass": true, "confidence": "high", "reasoning": "?"}]`,
		"duplicate": `[
			{"criteria_id": "crit-1", "pass": true, "confidence": "high", "reasoning": "a"},
			{"criteria_id": "crit-1", "pass": false, "confidence": "low", "reasoning": "b"}
		]`,
		"not JSON": `the documents look fine to me`,
	}
	for name, response := range cases {
		e := &Evaluator{Client: &scriptedClient{response: response}}
		_, err := e.Evaluate(context.Background(), testBatch()[:1], testDocs())
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: err = %v, want *FormatError", name, err)
		}
	}
}

func TestEvaluatePromptCarriesPagesAndCriteria(t *testing.T) {
	client := &scriptedClient{err: errors.New("stop here")}
	e := &Evaluator{Client: client}

	_, _ = e.Evaluate(context.Background(), testBatch(), testDocs())
	if len(client.prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(client.prompts))
	}
	prompt := client.prompts[0]
	for _, want := range []string{"--- page 1 [1 Scope] ---", "--- page 2 [2 Retention] ---", "crit-1", "crit-2", "Documents must be signed"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestEvaluateEmptyBatchRejected(t *testing.T) {
	e := &Evaluator{Client: &scriptedClient{}}
	_, err := e.Evaluate(context.Background(), nil, testDocs())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
