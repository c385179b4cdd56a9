package assessments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/extract"
)

type stubCriteria struct {
	specs []criteria.CriterionSpec
}

func (s *stubCriteria) ListByWorkflow(_ context.Context, _, _ string) ([]criteria.CriterionSpec, error) {
	return s.specs, nil
}

type stubFetcher struct {
	bytes map[string][]byte
	errs  map[string]error
}

func (s *stubFetcher) FetchBytes(_ context.Context, _, documentID string) ([]byte, error) {
	if err, ok := s.errs[documentID]; ok {
		return nil, err
	}
	data, ok := s.bytes[documentID]
	if !ok {
		return nil, errors.New("no such document")
	}
	return data, nil
}

type stubExtractor struct {
	corrupted map[string]bool
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte, documentID string) (extract.ParsedDocument, error) {
	if s.corrupted[documentID] {
		return extract.ParsedDocument{}, &extract.ExtractionError{DocumentID: documentID, Err: errors.New("bad xref")}
	}
	return extract.ParsedDocument{
		DocumentID: documentID,
		Pages:      []extract.Page{{Page: 1, Section: "Untitled Section", Text: "content of " + documentID}},
	}, nil
}

type stubEvaluator struct {
	mu      sync.Mutex
	calls   int
	seen    [][]string // document IDs per call
	respond func(batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error)
}

func (s *stubEvaluator) Evaluate(_ context.Context, batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error) {
	s.mu.Lock()
	s.calls++
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.DocumentID)
	}
	s.seen = append(s.seen, ids)
	s.mu.Unlock()
	return s.respond(batch, docs)
}

func passAll(batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error) {
	out := make([]RawVerdict, 0, len(batch))
	for _, c := range batch {
		pass := true
		page := 1
		out = append(out, RawVerdict{
			CriteriaID:         c.ID,
			Pass:               &pass,
			Confidence:         "high",
			EvidencePage:       &page,
			EvidenceDocumentID: &docs[0].DocumentID,
			Reasoning:          "the text explicitly covers this",
		})
	}
	return out, nil
}

type runnerEnv struct {
	repo      *MemoryRepo
	evaluator *stubEvaluator
	runner    *Runner
}

func newRunnerEnv(t *testing.T, specs []criteria.CriterionSpec, refs []DocumentRef, corrupted ...string) *runnerEnv {
	t.Helper()
	repo := NewMemoryRepo()
	a := Assessment{
		ID:         "assess-1",
		TenantID:   "tenant-1",
		WorkflowID: "wf-1",
		Status:     StatusPending,
		Documents:  refs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("create assessment: %v", err)
	}

	fetcher := &stubFetcher{bytes: map[string][]byte{}}
	for _, ref := range refs {
		fetcher.bytes[ref.DocumentID] = []byte("pdf bytes for " + ref.DocumentID)
	}
	bad := map[string]bool{}
	for _, id := range corrupted {
		bad[id] = true
	}
	evaluator := &stubEvaluator{respond: passAll}
	return &runnerEnv{
		repo:      repo,
		evaluator: evaluator,
		runner: &Runner{
			Repo:             repo,
			Criteria:         &stubCriteria{specs: specs},
			Documents:        fetcher,
			Extractor:        &stubExtractor{corrupted: bad},
			Evaluator:        evaluator,
			Concurrency:      2,
			BatchSize:        5,
			MaxBatchAttempts: 2,
			RetryBaseDelay:   time.Millisecond,
			JobTimeout:       5 * time.Second,
		},
	}
}

func fiveCriteria() []criteria.CriterionSpec {
	return []criteria.CriterionSpec{
		{ID: "c1", Name: "signed", AppliesTo: criteria.All()},
		{ID: "c2", Name: "dated", AppliesTo: criteria.All()},
		{ID: "c3", Name: "tech spec present", AppliesTo: criteria.Buckets("technical")},
		{ID: "c4", Name: "test report present", AppliesTo: criteria.Buckets("testing")},
		{ID: "c5", Name: "legal review present", AppliesTo: criteria.Buckets("legal")},
	}
}

func threeDocs() []DocumentRef {
	return []DocumentRef{
		{BucketID: "technical", DocumentID: "doc-a"},
		{BucketID: "legal", DocumentID: "doc-b"},
		{BucketID: "testing", DocumentID: "doc-c"},
	}
}

func TestRunnerCompletesWithDegradedVerdictsForCorruptedDocument(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs(), "doc-c")

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}

	a, err := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed despite one unextractable document", a.Status)
	}

	res, err := env.repo.GetResult(context.Background(), "tenant-1", "assess-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(res.Verdicts) != 5 {
		t.Fatalf("got %d verdicts, want one per criterion", len(res.Verdicts))
	}

	byID := map[string]CriterionVerdict{}
	for _, v := range res.Verdicts {
		byID[v.CriterionID] = v
	}
	degraded := byID["c4"]
	if degraded.Pass || degraded.Confidence != ConfidenceLow || degraded.Evidence != nil {
		t.Fatalf("c4 = %+v, want pass=false confidence=low evidence=nil", degraded)
	}
	if !byID["c3"].Pass || !byID["c5"].Pass {
		t.Fatal("criteria on readable documents should resolve normally")
	}
	for _, ids := range env.evaluator.seen {
		for _, id := range ids {
			if id == "doc-c" {
				t.Fatal("corrupted document text must never reach the model")
			}
		}
	}
}

func TestRunnerFailsWhenBatchExhaustsRetries(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs())
	env.evaluator.respond = func(batch []criteria.CriterionSpec, _ []extract.ParsedDocument) ([]RawVerdict, error) {
		// The model persistently omits the first criterion of the batch.
		return nil, &FormatError{MissingCriteria: []string{batch[0].ID}}
	}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}

	a, _ := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if a.Status != StatusFailed {
		t.Fatalf("status = %q, want failed after the retry budget", a.Status)
	}
	if a.ErrorCode == nil || *a.ErrorCode != ErrorCodeSchemaMismatch {
		t.Fatalf("error code = %v, want %s", a.ErrorCode, ErrorCodeSchemaMismatch)
	}
	if a.ErrorDetail == nil || len(a.ErrorDetail.UnresolvedCriteria) == 0 {
		t.Fatal("error detail should list the unresolved criteria ids")
	}
	if _, err := env.repo.GetResult(context.Background(), "tenant-1", "assess-1"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("GetResult err = %v, want ErrNotCompleted; no partial results", err)
	}
}

func TestRunnerRetriesTransientFormatError(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria()[:2], threeDocs()[:1])
	var calls int
	var mu sync.Mutex
	env.evaluator.respond = func(batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, &FormatError{Err: errors.New("not a JSON array")}
		}
		return passAll(batch, docs)
	}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	a, _ := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if a.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed after a successful retry", a.Status)
	}
	if calls != 2 {
		t.Fatalf("evaluator calls = %d, want 2", calls)
	}
}

func TestRunnerFailsWithStorageErrorWhenFetchExhausts(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs())
	fetcher := env.runner.Documents.(*stubFetcher)
	fetcher.errs = map[string]error{"doc-b": errors.New("object store unavailable")}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	a, _ := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if a.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", a.Status)
	}
	if a.ErrorCode == nil || *a.ErrorCode != ErrorCodeStorage {
		t.Fatalf("error code = %v, want %s", a.ErrorCode, ErrorCodeStorage)
	}
	if a.ErrorDetail == nil || len(a.ErrorDetail.UnresolvedDocuments) != 1 || a.ErrorDetail.UnresolvedDocuments[0] != "doc-b" {
		t.Fatalf("error detail = %+v, want doc-b listed", a.ErrorDetail)
	}
}

func TestRunnerHonorsCancelRequest(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs())
	if err := env.repo.RequestCancel(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	a, _ := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if a.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", a.Status)
	}
	if a.ErrorCode == nil || *a.ErrorCode != ErrorCodeCancelled {
		t.Fatalf("error code = %v, want %s", a.ErrorCode, ErrorCodeCancelled)
	}
	if env.evaluator.calls != 0 {
		t.Fatalf("evaluator calls = %d, want 0 after an early cancel", env.evaluator.calls)
	}
}

func TestRunnerSkipsDuplicateDelivery(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs())
	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := env.evaluator.calls

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}
	if env.evaluator.calls != first {
		t.Fatal("duplicate delivery must not re-run the pipeline")
	}
}

func TestRunnerBatchesByScopeSignature(t *testing.T) {
	specs := []criteria.CriterionSpec{
		{ID: "c1", Name: "a", AppliesTo: criteria.Buckets("technical")},
		{ID: "c2", Name: "b", AppliesTo: criteria.Buckets("technical")},
		{ID: "c3", Name: "c", AppliesTo: criteria.Buckets("legal")},
	}
	env := newRunnerEnv(t, specs, threeDocs()[:2])

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	if env.evaluator.calls != 2 {
		t.Fatalf("evaluator calls = %d, want one per distinct document set", env.evaluator.calls)
	}
}

func TestRunnerOversizedGroupSplitsIntoChunks(t *testing.T) {
	var specs []criteria.CriterionSpec
	for i := 1; i <= 7; i++ {
		specs = append(specs, criteria.CriterionSpec{ID: fmt.Sprintf("c%02d", i), Name: "rule", AppliesTo: criteria.All()})
	}
	env := newRunnerEnv(t, specs, threeDocs()[:1])
	env.runner.BatchSize = 3

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	if env.evaluator.calls != 3 {
		t.Fatalf("evaluator calls = %d, want ceil(7/3)", env.evaluator.calls)
	}
	res, err := env.repo.GetResult(context.Background(), "tenant-1", "assess-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(res.Verdicts) != 7 {
		t.Fatalf("got %d verdicts, want 7", len(res.Verdicts))
	}
}

func TestRunnerFailsWhenJobExceedsWallClock(t *testing.T) {
	specs := []criteria.CriterionSpec{
		{ID: "c1", Name: "signed", AppliesTo: criteria.All()},
		{ID: "c2", Name: "dated", AppliesTo: criteria.All()},
	}
	env := newRunnerEnv(t, specs, threeDocs()[:1])
	env.runner.JobTimeout = 50 * time.Millisecond

	var mu sync.Mutex
	drained := 0
	env.evaluator.respond = func(batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error) {
		time.Sleep(300 * time.Millisecond)
		mu.Lock()
		drained++
		mu.Unlock()
		return passAll(batch, docs)
	}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}

	a, _ := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if a.Status != StatusFailed {
		t.Fatalf("status = %q, want failed once the wall-clock ceiling passes", a.Status)
	}
	if a.ErrorCode == nil || *a.ErrorCode != ErrorCodeJobTimeout {
		t.Fatalf("error code = %v, want %s", a.ErrorCode, ErrorCodeJobTimeout)
	}
	mu.Lock()
	defer mu.Unlock()
	if env.evaluator.calls != 1 || drained != 1 {
		t.Fatalf("calls = %d drained = %d, want the in-flight call to run to completion", env.evaluator.calls, drained)
	}
}

func TestRunnerReconcilesUnitTotalAfterDegradedExtraction(t *testing.T) {
	env := newRunnerEnv(t, fiveCriteria(), threeDocs(), "doc-c")

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}

	a, err := env.repo.GetByID(context.Background(), "tenant-1", "assess-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", a.Status)
	}
	if a.UnitsDone != a.UnitsTotal {
		t.Fatalf("units done = %d total = %d, want equality on completion", a.UnitsDone, a.UnitsTotal)
	}
	if p := a.Progress(); p != 1.0 {
		t.Fatalf("progress = %v, want 1.0", p)
	}
}

func TestRunnerDropsEvidenceClaimedAgainstUnknownDocument(t *testing.T) {
	specs := []criteria.CriterionSpec{{ID: "c1", Name: "signed", AppliesTo: criteria.All()}}
	env := newRunnerEnv(t, specs, threeDocs()[:1])
	env.evaluator.respond = func(batch []criteria.CriterionSpec, _ []extract.ParsedDocument) ([]RawVerdict, error) {
		pass := true
		page := 1
		unknown := "doc-x"
		return []RawVerdict{{
			CriteriaID:         batch[0].ID,
			Pass:               &pass,
			Confidence:         "high",
			EvidencePage:       &page,
			EvidenceDocumentID: &unknown,
			Reasoning:          "the text explicitly covers this",
		}}, nil
	}

	if err := env.runner.ProcessAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("ProcessAssessment: %v", err)
	}
	res, err := env.repo.GetResult(context.Background(), "tenant-1", "assess-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Verdicts[0].Evidence != nil {
		t.Fatalf("evidence = %+v, want nil for a claim against a document outside the batch", res.Verdicts[0].Evidence)
	}
}
