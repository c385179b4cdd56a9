package assessments

import (
	"encoding/json"
	"time"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	// StatusNeedsRerun flags a terminal assessment whose document set changed.
	// It is a data flag for the UI; the pipeline never re-enters it.
	StatusNeedsRerun = "needs_rerun"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// DocumentRef is a (bucket, document) pairing attached to an assessment.
// Immutable once the assessment starts; replacing a document spawns a new
// assessment rather than mutating the ref.
type DocumentRef struct {
	BucketID   string `json:"bucketId"`
	DocumentID string `json:"documentId"`
}

// Assessment is one validation run over a workflow's documents and criteria.
type Assessment struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	WorkflowID      string        `json:"workflowId"`
	ParentID        *string       `json:"parentId,omitempty"`
	Status          string        `json:"status"`
	ErrorCode       *string       `json:"errorCode,omitempty"`
	ErrorDetail     *ErrorDetail  `json:"errorDetail,omitempty"`
	CancelRequested bool          `json:"cancelRequested"`
	UnitsTotal      int           `json:"unitsTotal"`
	UnitsDone       int           `json:"unitsDone"`
	Documents       []DocumentRef `json:"documents"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
}

// Progress returns the fraction of dispatched units that have terminated.
func (a Assessment) Progress() float64 {
	if a.UnitsTotal <= 0 {
		return 0
	}
	return float64(a.UnitsDone) / float64(a.UnitsTotal)
}

// Terminal reports whether the assessment will not transition further.
func (a Assessment) Terminal() bool {
	switch a.Status {
	case StatusCompleted, StatusFailed, StatusNeedsRerun:
		return true
	}
	return false
}

// ErrorDetail records which specific units could not be resolved so the UI
// can offer a scoped re-run instead of a generic failure.
type ErrorDetail struct {
	Message             string   `json:"message"`
	UnresolvedCriteria  []string `json:"unresolvedCriteria,omitempty"`
	UnresolvedDocuments []string `json:"unresolvedDocuments,omitempty"`
}

// Evidence is a verified page/section location supporting a verdict. A nil
// Page means no verifiable page-level claim survived validation.
type Evidence struct {
	DocumentID string  `json:"documentId"`
	Page       *int    `json:"page,omitempty"`
	Section    *string `json:"section,omitempty"`
}

// CriterionVerdict is the post-processed outcome for one criterion.
type CriterionVerdict struct {
	AssessmentID string          `json:"assessmentId"`
	CriterionID  string          `json:"criterionId"`
	Pass         bool            `json:"pass"`
	Confidence   string          `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	Evidence     *Evidence       `json:"evidence,omitempty"`
	RawOutput    json.RawMessage `json:"rawOutput,omitempty"`
}

// AssessmentResult is the aggregate computed once at the terminal transition
// into completed, immutable thereafter. Verdicts are ordered by criterion ID,
// not completion order.
type AssessmentResult struct {
	AssessmentID   string             `json:"assessmentId"`
	Verdicts       []CriterionVerdict `json:"verdicts"`
	OverallPass    bool               `json:"overallPass"`
	PassCount      int                `json:"passCount"`
	FailCount      int                `json:"failCount"`
	LowConfidence  int                `json:"lowConfidenceCount"`
}
