package criteria

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]CriterionSpec // tenantID -> specs
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]CriterionSpec),
	}
}

// Create stores a criterion for a tenant.
func (r *MemoryRepo) Create(ctx context.Context, spec CriterionSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[spec.TenantID] = append(r.data[spec.TenantID], spec)
	return nil
}

// ListByWorkflow returns a workflow's criteria ordered by ID for stable results.
func (r *MemoryRepo) ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]CriterionSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []CriterionSpec
	for _, spec := range r.data[tenantID] {
		if spec.WorkflowID == workflowID {
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
