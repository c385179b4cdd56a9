package criteria

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a criterion row. The bucket scope is stored as an
// applies_to_all flag plus a JSONB array of bucket IDs.
func (r *PGRepo) Create(ctx context.Context, spec CriterionSpec) error {
	bucketIDs, err := json.Marshal(spec.AppliesTo.BucketIDs())
	if err != nil {
		return fmt.Errorf("marshal bucket ids: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO criteria (id, tenant_id, workflow_id, name, description, applies_to_all, bucket_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		spec.ID, spec.TenantID, spec.WorkflowID, spec.Name, spec.Description, spec.AppliesTo.IsAll(), bucketIDs, spec.CreatedAt,
	)
	return err
}

// ListByWorkflow returns a workflow's criteria ordered by ID for stable results.
func (r *PGRepo) ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]CriterionSpec, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, name, description, applies_to_all, bucket_ids, created_at
		FROM criteria
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY id`,
		tenantID, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CriterionSpec
	for rows.Next() {
		var (
			spec      CriterionSpec
			all       bool
			bucketRaw []byte
		)
		if err := rows.Scan(&spec.ID, &spec.TenantID, &spec.WorkflowID, &spec.Name, &spec.Description, &all, &bucketRaw, &spec.CreatedAt); err != nil {
			return nil, err
		}
		if all {
			spec.AppliesTo = All()
		} else {
			var ids []string
			if err := json.Unmarshal(bucketRaw, &ids); err != nil {
				return nil, fmt.Errorf("unmarshal bucket ids for criterion %s: %w", spec.ID, err)
			}
			spec.AppliesTo = Buckets(ids...)
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}
