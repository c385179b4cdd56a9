package assessments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bru-digital/qteria/internal/shared/telemetry"
)

// JobEnqueuer schedules a claimed-nowhere assessment onto the durable queue.
type JobEnqueuer interface {
	EnqueueAssessment(ctx context.Context, tenantID, assessmentID string) error
}

// Service owns the assessment lifecycle on the API side: triggering, status
// and result reads, cancellation, and re-runs. All pipeline work happens in
// the Runner on a worker.
type Service struct {
	Repo  Repo
	Queue JobEnqueuer

	// Runner enables inline execution when no queue is configured, for
	// local development and tests. The job runs on a detached context so
	// the triggering request returning does not kill it.
	Runner *Runner
}

// Start creates a new pending assessment over the given document refs and
// schedules it for execution.
func (s *Service) Start(ctx context.Context, tenantID, workflowID string, refs []DocumentRef) (Assessment, error) {
	if tenantID == "" || workflowID == "" {
		return Assessment{}, fmt.Errorf("%w: tenant and workflow are required", ErrInvalidInput)
	}
	if len(refs) == 0 {
		return Assessment{}, fmt.Errorf("%w: at least one document is required", ErrInvalidInput)
	}
	return s.create(ctx, Assessment{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		WorkflowID: workflowID,
		Status:     StatusPending,
		Documents:  normalizeRefs(refs),
		CreatedAt:  time.Now().UTC(),
	})
}

// StartOrReuse is the idempotent trigger: when a non-terminal assessment for
// the same workflow and document set already exists, it is returned instead
// of creating a duplicate run.
func (s *Service) StartOrReuse(ctx context.Context, tenantID, workflowID string, refs []DocumentRef) (Assessment, error) {
	existing, err := s.Repo.ListByWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return Assessment{}, err
	}
	want := normalizeRefs(refs)
	for _, a := range existing {
		if !a.Terminal() && sameRefs(a.Documents, want) {
			return a, nil
		}
	}
	return s.Start(ctx, tenantID, workflowID, refs)
}

// Rerun creates a new assessment linked to a terminal parent. When refs is
// empty the parent's document set is reused; a non-empty refs allows a
// scoped re-run over a corrected subset.
func (s *Service) Rerun(ctx context.Context, tenantID, parentID string, refs []DocumentRef) (Assessment, error) {
	parent, err := s.Repo.GetByID(ctx, tenantID, parentID)
	if err != nil {
		return Assessment{}, err
	}
	if !parent.Terminal() {
		return Assessment{}, ErrNotTerminal
	}
	if len(refs) == 0 {
		refs = parent.Documents
	}
	return s.create(ctx, Assessment{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		WorkflowID: parent.WorkflowID,
		ParentID:   &parent.ID,
		Status:     StatusPending,
		Documents:  normalizeRefs(refs),
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *Service) create(ctx context.Context, a Assessment) (Assessment, error) {
	if err := s.Repo.Create(ctx, a); err != nil {
		return Assessment{}, fmt.Errorf("create assessment: %w", err)
	}
	if err := s.schedule(ctx, a); err != nil {
		detail := &ErrorDetail{Message: "could not schedule assessment job"}
		if ferr := s.Repo.Fail(ctx, a.ID, ErrorCodeInternal, detail); ferr != nil {
			telemetry.Error("failed to mark unschedulable assessment", map[string]any{
				"assessmentId": a.ID,
				"error":        sanitizeError(ferr),
			})
		}
		return Assessment{}, fmt.Errorf("schedule assessment: %w", err)
	}
	telemetry.Info("assessment scheduled", map[string]any{
		"assessmentId": a.ID,
		"workflowId":   a.WorkflowID,
		"documents":    len(a.Documents),
	})
	return a, nil
}

func (s *Service) schedule(ctx context.Context, a Assessment) error {
	if s.Queue != nil {
		return s.Queue.EnqueueAssessment(ctx, a.TenantID, a.ID)
	}
	if s.Runner == nil {
		return fmt.Errorf("no queue or inline runner configured")
	}
	go func() {
		jobCtx := context.WithoutCancel(ctx)
		if err := s.Runner.ProcessAssessment(jobCtx, a.TenantID, a.ID); err != nil {
			telemetry.Error("inline assessment run failed", map[string]any{
				"assessmentId": a.ID,
				"error":        sanitizeError(err),
			})
		}
	}()
	return nil
}

// Status returns the assessment row, a cheap read suitable for polling.
func (s *Service) Status(ctx context.Context, tenantID, assessmentID string) (Assessment, error) {
	return s.Repo.GetByID(ctx, tenantID, assessmentID)
}

// Result returns the aggregate verdicts of a completed assessment.
func (s *Service) Result(ctx context.Context, tenantID, assessmentID string) (AssessmentResult, error) {
	return s.Repo.GetResult(ctx, tenantID, assessmentID)
}

// Cancel requests cooperative cancellation of a non-terminal assessment.
// In-flight model calls drain; no further batches are dispatched.
func (s *Service) Cancel(ctx context.Context, tenantID, assessmentID string) error {
	return s.Repo.RequestCancel(ctx, tenantID, assessmentID)
}

// FlagNeedsRerun marks a terminal assessment as stale after a document in
// its set was replaced.
func (s *Service) FlagNeedsRerun(ctx context.Context, tenantID, assessmentID string) error {
	return s.Repo.MarkNeedsRerun(ctx, tenantID, assessmentID)
}

// List returns a workflow's assessments, newest first.
func (s *Service) List(ctx context.Context, tenantID, workflowID string) ([]Assessment, error) {
	return s.Repo.ListByWorkflow(ctx, tenantID, workflowID)
}

func normalizeRefs(refs []DocumentRef) []DocumentRef {
	out := append([]DocumentRef(nil), refs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].BucketID != out[j].BucketID {
			return out[i].BucketID < out[j].BucketID
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

func sameRefs(a, b []DocumentRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
