package assessments

import (
	"context"
	"time"
)

// Repo defines persistence operations for assessments and their verdicts.
// All mutations after creation are performed by the single worker that
// claimed the assessment, so implementations do not need per-row locking
// beyond the claim itself.
type Repo interface {
	Create(ctx context.Context, a Assessment) error
	GetByID(ctx context.Context, tenantID, assessmentID string) (Assessment, error)
	ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]Assessment, error)

	// Claim atomically moves a pending assessment to in_progress and takes
	// a lease. An in_progress assessment whose lease has expired is
	// claimable again. It returns false when another worker holds a live
	// claim, which the caller treats as a duplicate delivery.
	Claim(ctx context.Context, assessmentID string, leaseUntil time.Time) (bool, error)

	RequestCancel(ctx context.Context, tenantID, assessmentID string) error
	CancelRequested(ctx context.Context, assessmentID string) (bool, error)

	SetUnitsTotal(ctx context.Context, assessmentID string, total int) error
	IncUnitsDone(ctx context.Context, assessmentID string) error

	// CompleteWithResult persists all verdicts and flips the status to
	// completed in one atomic step.
	CompleteWithResult(ctx context.Context, assessmentID string, verdicts []CriterionVerdict) error
	Fail(ctx context.Context, assessmentID, errorCode string, detail *ErrorDetail) error

	// MarkNeedsRerun flags a terminal assessment whose document set changed.
	MarkNeedsRerun(ctx context.Context, tenantID, assessmentID string) error

	GetResult(ctx context.Context, tenantID, assessmentID string) (AssessmentResult, error)
}
