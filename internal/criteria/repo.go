package criteria

import "context"

// Repo defines persistence operations for criteria.
type Repo interface {
	Create(ctx context.Context, spec CriterionSpec) error
	ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]CriterionSpec, error)
}
