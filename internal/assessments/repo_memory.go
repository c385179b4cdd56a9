package assessments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo used by tests and local development.
type MemoryRepo struct {
	mu       sync.Mutex
	items    map[string]*Assessment
	verdicts map[string][]CriterionVerdict
	leases   map[string]time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:    make(map[string]*Assessment),
		verdicts: make(map[string][]CriterionVerdict),
		leases:   make(map[string]time.Time),
	}
}

func (r *MemoryRepo) Create(_ context.Context, a Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := a
	cp.Documents = append([]DocumentRef(nil), a.Documents...)
	r.items[a.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, tenantID, assessmentID string) (Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok || a.TenantID != tenantID {
		return Assessment{}, ErrNotFound
	}
	return cloneAssessment(a), nil
}

func (r *MemoryRepo) ListByWorkflow(_ context.Context, tenantID, workflowID string) ([]Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Assessment
	for _, a := range r.items {
		if a.TenantID == tenantID && a.WorkflowID == workflowID {
			out = append(out, cloneAssessment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Claim(_ context.Context, assessmentID string, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return false, ErrNotFound
	}
	now := time.Now().UTC()
	switch a.Status {
	case StatusPending:
	case StatusInProgress:
		// An expired lease means the previous worker died mid-run.
		if lease, held := r.leases[assessmentID]; !held || lease.After(now) {
			return false, nil
		}
	default:
		return false, nil
	}
	a.Status = StatusInProgress
	a.StartedAt = &now
	r.leases[assessmentID] = leaseUntil
	return true, nil
}

func (r *MemoryRepo) RequestCancel(_ context.Context, tenantID, assessmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok || a.TenantID != tenantID {
		return ErrNotFound
	}
	if a.Terminal() {
		return ErrNotTerminal
	}
	a.CancelRequested = true
	return nil
}

func (r *MemoryRepo) CancelRequested(_ context.Context, assessmentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return false, ErrNotFound
	}
	return a.CancelRequested, nil
}

func (r *MemoryRepo) SetUnitsTotal(_ context.Context, assessmentID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return ErrNotFound
	}
	a.UnitsTotal = total
	return nil
}

func (r *MemoryRepo) IncUnitsDone(_ context.Context, assessmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return ErrNotFound
	}
	a.UnitsDone++
	return nil
}

func (r *MemoryRepo) CompleteWithResult(_ context.Context, assessmentID string, verdicts []CriterionVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	delete(r.leases, assessmentID)
	r.verdicts[assessmentID] = append([]CriterionVerdict(nil), verdicts...)
	return nil
}

func (r *MemoryRepo) Fail(_ context.Context, assessmentID, errorCode string, detail *ErrorDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = StatusFailed
	a.CompletedAt = &now
	delete(r.leases, assessmentID)
	a.ErrorCode = &errorCode
	a.ErrorDetail = detail
	return nil
}

func (r *MemoryRepo) MarkNeedsRerun(_ context.Context, tenantID, assessmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok || a.TenantID != tenantID {
		return ErrNotFound
	}
	if !a.Terminal() {
		return ErrNotTerminal
	}
	a.Status = StatusNeedsRerun
	return nil
}

func (r *MemoryRepo) GetResult(_ context.Context, tenantID, assessmentID string) (AssessmentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[assessmentID]
	if !ok || a.TenantID != tenantID {
		return AssessmentResult{}, ErrNotFound
	}
	vs, ok := r.verdicts[assessmentID]
	if !ok {
		return AssessmentResult{}, ErrNotCompleted
	}
	return buildResult(assessmentID, vs), nil
}

func cloneAssessment(a *Assessment) Assessment {
	cp := *a
	cp.Documents = append([]DocumentRef(nil), a.Documents...)
	return cp
}

// buildResult orders verdicts by criterion ID and computes the aggregate.
func buildResult(assessmentID string, verdicts []CriterionVerdict) AssessmentResult {
	vs := append([]CriterionVerdict(nil), verdicts...)
	sort.Slice(vs, func(i, j int) bool { return vs[i].CriterionID < vs[j].CriterionID })
	res := AssessmentResult{AssessmentID: assessmentID, Verdicts: vs, OverallPass: true}
	for _, v := range vs {
		if v.Pass {
			res.PassCount++
		} else {
			res.FailCount++
			res.OverallPass = false
		}
		if v.Confidence == ConfidenceLow {
			res.LowConfidence++
		}
	}
	if len(vs) == 0 {
		res.OverallPass = false
	}
	return res
}
