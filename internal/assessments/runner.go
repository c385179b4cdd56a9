package assessments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bru-digital/qteria/internal/criteria"
	"github.com/bru-digital/qteria/internal/extract"
	"github.com/bru-digital/qteria/internal/shared/metrics"
	"github.com/bru-digital/qteria/internal/shared/telemetry"
)

// DocumentFetcher loads the raw bytes of a stored document.
type DocumentFetcher interface {
	FetchBytes(ctx context.Context, tenantID, documentID string) ([]byte, error)
}

// CriteriaSource lists the criteria of a workflow.
type CriteriaSource interface {
	ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]criteria.CriterionSpec, error)
}

// Extractor turns document bytes into page-indexed text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, documentID string) (extract.ParsedDocument, error)
}

// BatchEvaluator submits one criteria batch to the model.
type BatchEvaluator interface {
	Evaluate(ctx context.Context, batch []criteria.CriterionSpec, docs []extract.ParsedDocument) ([]RawVerdict, error)
}

// Runner drives one assessment from claimed to terminal: extraction across
// documents, batched evaluation across criteria, post-processing, and the
// atomic terminal transition. It is the single writer for the assessments it
// claims.
type Runner struct {
	Repo      Repo
	Criteria  CriteriaSource
	Documents DocumentFetcher
	Extractor Extractor
	Evaluator BatchEvaluator

	Concurrency      int
	BatchSize        int
	MaxBatchAttempts int
	RetryBaseDelay   time.Duration
	JobTimeout       time.Duration
}

var errCancelRequested = errors.New("cancel requested")

// extractionOutcome is the per-document result of the extraction phase.
type extractionOutcome struct {
	parsed  map[string]extract.ParsedDocument
	skipped []string // unextractable, degrade to cannot-verify verdicts
	fatal   []string // bytes could not be fetched at all
}

// batchOutcome is the per-batch result of the evaluation phase.
type batchOutcome struct {
	verdicts []CriterionVerdict
	failed   []string // criterion IDs left unresolved after the retry budget
	lastErr  error
}

// ProcessAssessment runs one queued assessment to a terminal state. A false
// claim (duplicate delivery, already terminal) returns nil so the message is
// acked without work. Errors that escape are infrastructure failures worth a
// redelivery; domain failures are absorbed into the failed state.
func (r *Runner) ProcessAssessment(ctx context.Context, tenantID, assessmentID string) error {
	leaseUntil := time.Now().UTC().Add(r.JobTimeout + time.Minute)
	claimed, err := r.Repo.Claim(ctx, assessmentID, leaseUntil)
	if err != nil {
		return fmt.Errorf("claim assessment: %w", err)
	}
	if !claimed {
		telemetry.Info("assessment already claimed, skipping", map[string]any{"assessmentId": assessmentID})
		return nil
	}
	metrics.IncAssessmentStarted()
	started := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, r.JobTimeout)
	defer cancel()

	err = r.run(jobCtx, tenantID, assessmentID)
	metrics.ObserveAssessmentDurationMs(float64(time.Since(started).Milliseconds()))

	switch {
	case err == nil:
		metrics.IncAssessmentCompleted()
		return nil
	case errors.Is(err, errCancelRequested):
		metrics.IncAssessmentCancelled()
		return r.fail(ctx, assessmentID, ErrorCodeCancelled, &ErrorDetail{Message: "cancelled before completion"})
	case jobCtx.Err() != nil:
		return r.fail(ctx, assessmentID, ErrorCodeJobTimeout, &ErrorDetail{Message: "assessment exceeded its wall-clock ceiling"})
	default:
		var tf *terminalFailure
		if errors.As(err, &tf) {
			return r.fail(ctx, assessmentID, tf.code, tf.detail)
		}
		if ferr := r.fail(ctx, assessmentID, ErrorCodeInternal, &ErrorDetail{Message: sanitizeError(err)}); ferr != nil {
			telemetry.Error("failed to record assessment failure", map[string]any{
				"assessmentId": assessmentID,
				"error":        sanitizeError(ferr),
			})
		}
		return err
	}
}

// terminalFailure carries a classified failure out of run to the single
// place that writes the failed state.
type terminalFailure struct {
	code   string
	detail *ErrorDetail
}

func (f *terminalFailure) Error() string { return f.code + ": " + f.detail.Message }

func (r *Runner) fail(ctx context.Context, assessmentID, code string, detail *ErrorDetail) error {
	if code != ErrorCodeCancelled {
		metrics.IncAssessmentFailed()
	}
	// The job context may already be expired; the terminal write must not be.
	return r.Repo.Fail(context.WithoutCancel(ctx), assessmentID, code, detail)
}

func (r *Runner) run(ctx context.Context, tenantID, assessmentID string) error {
	a, err := r.Repo.GetByID(ctx, tenantID, assessmentID)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}
	specs, err := r.Criteria.ListByWorkflow(ctx, tenantID, a.WorkflowID)
	if err != nil {
		return fmt.Errorf("load criteria: %w", err)
	}
	if err := r.checkCancel(ctx, assessmentID); err != nil {
		return err
	}

	planned, _, _ := r.assemble(a, specs, nil)
	if err := r.Repo.SetUnitsTotal(ctx, assessmentID, len(a.Documents)+len(planned)); err != nil {
		telemetry.Error("failed to set unit total", map[string]any{"assessmentId": assessmentID, "error": sanitizeError(err)})
	}

	ext, err := r.extractAll(ctx, tenantID, assessmentID, a.Documents)
	if err != nil {
		return err
	}
	if len(ext.fatal) > 0 {
		sort.Strings(ext.fatal)
		return &terminalFailure{code: ErrorCodeStorage, detail: &ErrorDetail{
			Message:             "document bytes could not be fetched",
			UnresolvedDocuments: ext.fatal,
		}}
	}
	if err := r.checkCancel(ctx, assessmentID); err != nil {
		return err
	}

	// Assemble against what extraction actually produced. Criteria whose
	// scope lost every document degrade to synthesized cannot-verify
	// verdicts instead of a model call.
	batches, synthesized, docsByBatch := r.assemble(a, specs, ext.parsed)

	// Degraded documents can merge or drop planned batches; reconcile the
	// unit total so progress reaches 1.0 on completion.
	if len(batches) != len(planned) {
		if err := r.Repo.SetUnitsTotal(ctx, assessmentID, len(a.Documents)+len(batches)); err != nil {
			telemetry.Error("failed to reconcile unit total", map[string]any{"assessmentId": assessmentID, "error": sanitizeError(err)})
		}
	}

	outcome := r.evaluateAll(ctx, assessmentID, batches, docsByBatch)
	if err := r.checkCancel(ctx, assessmentID); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(outcome.failed) > 0 {
		sort.Strings(outcome.failed)
		metrics.IncBatchExhausted()
		return &terminalFailure{code: classifyFailure(outcome.lastErr), detail: &ErrorDetail{
			Message:            "criteria could not be resolved within the retry budget",
			UnresolvedCriteria: outcome.failed,
		}}
	}

	verdicts := append(outcome.verdicts, synthesized...)
	for i := range verdicts {
		verdicts[i].AssessmentID = assessmentID
	}
	if err := r.Repo.CompleteWithResult(context.WithoutCancel(ctx), assessmentID, verdicts); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	telemetry.Info("assessment completed", map[string]any{
		"assessmentId": assessmentID,
		"requestId":    RequestIDFromContext(ctx),
		"verdicts":     len(verdicts),
	})
	return nil
}

// extractAll fetches and extracts every document concurrently. Unreadable
// bytes degrade; fetch failures after retries are fatal for the assessment.
func (r *Runner) extractAll(ctx context.Context, tenantID, assessmentID string, refs []DocumentRef) (*extractionOutcome, error) {
	out := &extractionOutcome{parsed: make(map[string]extract.ParsedDocument)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			defer func() { _ = r.Repo.IncUnitsDone(context.WithoutCancel(gctx), assessmentID) }()
			data, err := r.fetchWithRetry(gctx, tenantID, ref.DocumentID)
			if err != nil {
				mu.Lock()
				out.fatal = append(out.fatal, ref.DocumentID)
				mu.Unlock()
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}
			parsed, err := r.Extractor.Extract(gctx, data, ref.DocumentID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var xerr *extract.ExtractionError
				if errors.As(err, &xerr) {
					telemetry.Error("document unextractable, degrading", map[string]any{
						"assessmentId": assessmentID,
						"documentId":   ref.DocumentID,
						"error":        sanitizeError(err),
					})
					out.skipped = append(out.skipped, ref.DocumentID)
					return nil
				}
				return err
			}
			out.parsed[ref.DocumentID] = parsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) fetchWithRetry(ctx context.Context, tenantID, documentID string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts(); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		data, err := r.Documents.FetchBytes(ctx, tenantID, documentID)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// criteriaBatch is one model call's worth of criteria sharing a document set.
type criteriaBatch struct {
	key      string
	criteria []criteria.CriterionSpec
}

// assemble partitions criteria into batches keyed by their resolved document
// set, chunked to the batch size, and synthesizes cannot-verify verdicts for
// criteria whose scope contains no extracted document.
func (r *Runner) assemble(a Assessment, specs []criteria.CriterionSpec, parsed map[string]extract.ParsedDocument) ([]criteriaBatch, []CriterionVerdict, map[string][]extract.ParsedDocument) {
	bucketSet := make(map[string]bool)
	docsByBucket := make(map[string][]string)
	for _, ref := range a.Documents {
		bucketSet[ref.BucketID] = true
		docsByBucket[ref.BucketID] = append(docsByBucket[ref.BucketID], ref.DocumentID)
	}
	var bucketIDs []string
	for id := range bucketSet {
		bucketIDs = append(bucketIDs, id)
	}
	sort.Strings(bucketIDs)

	grouped := make(map[string][]criteria.CriterionSpec)
	docsByKey := make(map[string][]extract.ParsedDocument)
	var synthesized []CriterionVerdict

	for _, spec := range specs {
		var docIDs []string
		for _, bucket := range spec.AppliesTo.Resolve(bucketIDs) {
			docIDs = append(docIDs, docsByBucket[bucket]...)
		}
		sort.Strings(docIDs)

		var docs []extract.ParsedDocument
		for _, id := range docIDs {
			if parsed == nil {
				// Planning pass before extraction: assume every document
				// will carry text so the unit total can be set up front.
				docs = append(docs, extract.ParsedDocument{DocumentID: id})
				continue
			}
			if p, ok := parsed[id]; ok {
				docs = append(docs, p)
			}
		}
		if len(docs) == 0 {
			synthesized = append(synthesized, CriterionVerdict{
				CriterionID: spec.ID,
				Pass:        false,
				Confidence:  ConfidenceLow,
				Reasoning:   "cannot verify: no readable document text in the criterion's scope",
			})
			continue
		}

		var ids []string
		for _, d := range docs {
			ids = append(ids, d.DocumentID)
		}
		key := strings.Join(ids, "|")
		grouped[key] = append(grouped[key], spec)
		docsByKey[key] = docs
	}

	var keys []string
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var batches []criteriaBatch
	docsByBatch := make(map[string][]extract.ParsedDocument)
	for _, key := range keys {
		group := grouped[key]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i := 0; i < len(group); i += r.batchSize() {
			end := i + r.batchSize()
			if end > len(group) {
				end = len(group)
			}
			batchKey := fmt.Sprintf("%s#%d", key, i/r.batchSize())
			batches = append(batches, criteriaBatch{key: batchKey, criteria: group[i:end]})
			docsByBatch[batchKey] = docsByKey[key]
		}
	}
	return batches, synthesized, docsByBatch
}

// evaluateAll runs every batch concurrently, each with its own retry budget.
// A cancel request or job timeout stops further dispatch; calls already in
// flight drain on their own call timeout.
func (r *Runner) evaluateAll(ctx context.Context, assessmentID string, batches []criteriaBatch, docsByBatch map[string][]extract.ParsedDocument) *batchOutcome {
	out := &batchOutcome{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency())
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			verdicts, err := r.evaluateBatch(ctx, assessmentID, batch, docsByBatch[batch.key])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				for _, c := range batch.criteria {
					out.failed = append(out.failed, c.ID)
				}
				out.lastErr = err
				return nil
			}
			out.verdicts = append(out.verdicts, verdicts...)
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Runner) evaluateBatch(ctx context.Context, assessmentID string, batch criteriaBatch, docs []extract.ParsedDocument) ([]CriterionVerdict, error) {
	defer func() { _ = r.Repo.IncUnitsDone(context.WithoutCancel(ctx), assessmentID) }()

	var lastErr error
	for attempt := 0; attempt < r.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cancelled, _ := r.Repo.CancelRequested(ctx, assessmentID); cancelled {
			return nil, errCancelRequested
		}
		if attempt > 0 {
			metrics.IncBatchRetried()
			if err := sleepCtx(ctx, r.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		// The in-flight call drains on its own timeout even when the job
		// context is cancelled out from under it.
		raw, err := r.Evaluator.Evaluate(context.WithoutCancel(ctx), batch.criteria, docs)
		if err == nil {
			return r.postProcess(batch.criteria, raw, docs), nil
		}
		lastErr = err
		telemetry.Error("criteria batch attempt failed", map[string]any{
			"assessmentId": assessmentID,
			"requestId":    RequestIDFromContext(ctx),
			"attempt":      attempt + 1,
			"criteria":     len(batch.criteria),
			"error":        sanitizeError(err),
		})
	}
	return nil, lastErr
}

// postProcess applies evidence validation and confidence classification to a
// schema-valid batch response.
func (r *Runner) postProcess(batch []criteria.CriterionSpec, raws []RawVerdict, docs []extract.ParsedDocument) []CriterionVerdict {
	byID := make(map[string]extract.ParsedDocument, len(docs))
	for _, d := range docs {
		byID[d.DocumentID] = d
	}

	out := make([]CriterionVerdict, 0, len(raws))
	for _, raw := range raws {
		v := CriterionVerdict{
			CriterionID: raw.CriteriaID,
			Pass:        *raw.Pass,
			Reasoning:   raw.Reasoning,
			Confidence:  ClassifyConfidence(raw.Confidence, raw.Reasoning),
		}
		if b, err := json.Marshal(raw); err == nil {
			v.RawOutput = b
		}

		ev, parsed := resolveEvidence(raw, byID, docs)
		if ev != nil {
			v.Evidence = ValidateEvidence(ev, parsed)
		}
		out = append(out, v)
	}
	return out
}

// resolveEvidence picks the document an evidence claim is anchored to: the
// claimed id when it names a document in the batch, or the only document
// when no id was claimed and the batch has exactly one. A claimed id the
// model was never shown drops the evidence rather than guessing.
func resolveEvidence(raw RawVerdict, byID map[string]extract.ParsedDocument, docs []extract.ParsedDocument) (*Evidence, *extract.ParsedDocument) {
	if raw.EvidencePage == nil && raw.EvidenceSection == nil {
		return nil, nil
	}
	var doc extract.ParsedDocument
	switch {
	case raw.EvidenceDocumentID != nil && *raw.EvidenceDocumentID != "":
		d, ok := byID[*raw.EvidenceDocumentID]
		if !ok {
			return nil, nil
		}
		doc = d
	case len(docs) == 1:
		doc = docs[0]
	default:
		return nil, nil
	}
	return &Evidence{DocumentID: doc.DocumentID, Page: raw.EvidencePage, Section: raw.EvidenceSection}, &doc
}

func (r *Runner) checkCancel(ctx context.Context, assessmentID string) error {
	cancelled, err := r.Repo.CancelRequested(ctx, assessmentID)
	if err != nil {
		telemetry.Error("cancel check failed", map[string]any{"assessmentId": assessmentID, "error": sanitizeError(err)})
		return nil
	}
	if cancelled {
		return errCancelRequested
	}
	return nil
}

func classifyFailure(err error) string {
	var fe *FormatError
	switch {
	case err == nil:
		return ErrorCodeInternal
	case errors.As(err, &fe):
		return ErrorCodeSchemaMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeLLMTimeout
	default:
		return ErrorCodeInternal
	}
}

func (r *Runner) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return 4
}

func (r *Runner) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return 5
}

func (r *Runner) attempts() int {
	if r.MaxBatchAttempts > 0 {
		return r.MaxBatchAttempts
	}
	return 3
}

func (r *Runner) backoff(attempt int) time.Duration {
	base := r.RetryBaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
