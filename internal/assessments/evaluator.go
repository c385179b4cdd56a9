package assessments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/extract"
	"github.com/bru-digital/qteria/internal/llm"
	"github.com/bru-digital/qteria/internal/shared/metrics"
	"github.com/bru-digital/qteria/internal/shared/telemetry"
)

const evaluatorSystemPrompt = `You are a compliance auditor. You check named criteria against the text of the documents provided and answer with evidence. Respond with JSON only, no prose, no markdown fences.`

// RawVerdict is one object of the model's JSON array, before evidence
// validation and confidence classification. Pass is a pointer so a missing
// or non-boolean value is detectable instead of defaulting to false.
type RawVerdict struct {
	CriteriaID         string  `json:"criteria_id"`
	Pass               *bool   `json:"pass"`
	Confidence         string  `json:"confidence"`
	EvidencePage       *int    `json:"evidence_page"`
	EvidenceSection    *string `json:"evidence_section"`
	EvidenceDocumentID *string `json:"evidence_document_id"`
	Reasoning          string  `json:"reasoning"`
}

// Evaluator builds one prompt per criteria batch, calls the model once, and
// polices the response shape. It never retries; retry ownership lives in the
// runner.
type Evaluator struct {
	Client      llm.Client
	CallTimeout time.Duration
}

// Evaluate submits a batch of criteria against the given documents and
// returns one RawVerdict per criterion. A response that is not valid JSON,
// omits a submitted criterion, repeats one, or carries a non-boolean pass
// yields a *FormatError.
func (e *Evaluator) Evaluate(ctx context.Context, batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty criteria batch", ErrInvalidInput)
	}
	callCtx := ctx
	if e.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.Client.Complete(callCtx, llm.Request{
		System: evaluatorSystemPrompt,
		Prompt: buildPrompt(batch, docs),
	})
	metrics.ObserveModelCallDurationMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}

	verdicts, err := parseVerdicts(out, batch)
	if err != nil {
		telemetry.Error("evaluator response rejected", map[string]any{
			"error":         sanitizeError(err),
			"criteriaCount": len(batch),
			"responseBytes": len(out),
		})
		return nil, err
	}
	return verdicts, nil
}

func buildPrompt(batch []criteria.CriterionSpec, docs []extract.ParsedDocument) string {
	var b strings.Builder

	b.WriteString("## Documents\n\n")
	if len(docs) == 0 {
		b.WriteString("(no document text available)\n\n")
	}
	for _, doc := range docs {
		fmt.Fprintf(&b, "### Document %s\n", doc.DocumentID)
		for _, p := range doc.Pages {
			fmt.Fprintf(&b, "--- page %d [%s] ---\n%s\n", p.Page, p.Section, p.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Criteria\n\n")
	for _, c := range batch {
		fmt.Fprintf(&b, "- criteria_id %q: %s", c.ID, c.Name)
		if c.Description != "" {
			b.WriteString(": ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
## Output

Return a JSON array with exactly one object per criteria_id listed above:
[{"criteria_id": "...", "pass": true|false, "confidence": "high"|"medium"|"low", "evidence_page": <int or null>, "evidence_section": <string or null>, "evidence_document_id": <string or null>, "reasoning": "..."}]

pass must be a boolean. If you cannot verify a criterion from the text, set pass to false and confidence to "low". Cite the page, section and document id where you found your evidence, or null if there is none.`)
	return b.String()
}

// parseVerdicts enforces the response contract: valid JSON, exactly the
// submitted criteria, strict boolean pass. Markdown fences around the array
// are tolerated since some providers add them despite instructions.
func parseVerdicts(out string, batch []criteria.CriterionSpec) ([]RawVerdict, error) {
	var raw []RawVerdict
	if err := json.Unmarshal([]byte(stripFences(out)), &raw); err != nil {
		return nil, &FormatError{Err: fmt.Errorf("not a JSON array: %w", err)}
	}

	expected := make(map[string]bool, len(batch))
	for _, c := range batch {
		expected[c.ID] = false
	}
	for _, v := range raw {
		seen, ok := expected[v.CriteriaID]
		if !ok {
			return nil, &FormatError{Err: fmt.Errorf("unexpected criteria_id %q", v.CriteriaID)}
		}
		if seen {
			return nil, &FormatError{Err: fmt.Errorf("duplicate criteria_id %q", v.CriteriaID)}
		}
		if v.Pass == nil {
			return nil, &FormatError{Err: fmt.Errorf("criteria_id %q: pass missing or not a boolean", v.CriteriaID)}
		}
		expected[v.CriteriaID] = true
	}

	var missing []string
	for id, seen := range expected {
		if !seen {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &FormatError{MissingCriteria: missing}
	}
	return raw, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
