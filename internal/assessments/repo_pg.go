package assessments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres. The pending -> in_progress claim is
// a conditional UPDATE, so duplicate queue deliveries resolve to exactly one
// winner without any in-process coordination.
type PGRepo struct {
	DB *sql.DB
}

const assessmentColumns = `id, tenant_id, workflow_id, parent_id, status, error_code, error_detail, cancel_requested, units_total, units_done, created_at, started_at, completed_at`

func (r *PGRepo) Create(ctx context.Context, a Assessment) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assessments (id, tenant_id, workflow_id, parent_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.TenantID, a.WorkflowID, a.ParentID, a.Status, a.CreatedAt,
	)
	if err != nil {
		return err
	}
	for _, ref := range a.Documents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assessment_documents (assessment_id, bucket_id, document_id)
			VALUES ($1, $2, $3)`,
			a.ID, ref.BucketID, ref.DocumentID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PGRepo) GetByID(ctx context.Context, tenantID, assessmentID string) (Assessment, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, assessmentID,
	)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, ErrNotFound
	}
	if err != nil {
		return Assessment{}, err
	}
	a.Documents, err = r.loadDocumentRefs(ctx, assessmentID)
	return a, err
}

func (r *PGRepo) ListByWorkflow(ctx context.Context, tenantID, workflowID string) ([]Assessment, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM assessments
		WHERE tenant_id = $1 AND workflow_id = $2
		ORDER BY created_at DESC`,
		tenantID, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepo) Claim(ctx context.Context, assessmentID string, leaseUntil time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE assessments
		SET status = $1, started_at = now(), lease_until = $2
		WHERE id = $3 AND (status = $4 OR (status = $1 AND lease_until < now()))`,
		StatusInProgress, leaseUntil, assessmentID, StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PGRepo) RequestCancel(ctx context.Context, tenantID, assessmentID string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE assessments
		SET cancel_requested = TRUE
		WHERE tenant_id = $1 AND id = $2 AND status IN ($3, $4)`,
		tenantID, assessmentID, StatusPending, StatusInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) CancelRequested(ctx context.Context, assessmentID string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT cancel_requested FROM assessments WHERE id = $1`,
		assessmentID,
	).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return requested, err
}

func (r *PGRepo) SetUnitsTotal(ctx context.Context, assessmentID string, total int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE assessments SET units_total = $1 WHERE id = $2`,
		total, assessmentID,
	)
	return err
}

func (r *PGRepo) IncUnitsDone(ctx context.Context, assessmentID string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE assessments SET units_done = units_done + 1 WHERE id = $1`,
		assessmentID,
	)
	return err
}

func (r *PGRepo) CompleteWithResult(ctx context.Context, assessmentID string, verdicts []CriterionVerdict) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, v := range verdicts {
		var docID *string
		var page *int
		var section *string
		if v.Evidence != nil {
			docID = &v.Evidence.DocumentID
			page = v.Evidence.Page
			section = v.Evidence.Section
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO verdicts (assessment_id, criterion_id, pass, confidence, reasoning, evidence_doc_id, evidence_page, evidence_section, raw_output)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			assessmentID, v.CriterionID, v.Pass, v.Confidence, v.Reasoning, docID, page, section, nullableRaw(v.RawOutput),
		)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE assessments
		SET status = $1, completed_at = now(), lease_until = NULL
		WHERE id = $2`,
		StatusCompleted, assessmentID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepo) Fail(ctx context.Context, assessmentID, errorCode string, detail *ErrorDetail) error {
	var detailJSON any
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		detailJSON = b
	}
	_, err := r.DB.ExecContext(ctx, `
		UPDATE assessments
		SET status = $1, error_code = $2, error_detail = $3, completed_at = now(), lease_until = NULL
		WHERE id = $4`,
		StatusFailed, errorCode, detailJSON, assessmentID,
	)
	return err
}

func (r *PGRepo) MarkNeedsRerun(ctx context.Context, tenantID, assessmentID string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE assessments
		SET status = $1
		WHERE tenant_id = $2 AND id = $3 AND status IN ($4, $5)`,
		StatusNeedsRerun, tenantID, assessmentID, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotTerminal
	}
	return nil
}

func (r *PGRepo) GetResult(ctx context.Context, tenantID, assessmentID string) (AssessmentResult, error) {
	var status string
	err := r.DB.QueryRowContext(ctx, `
		SELECT status FROM assessments WHERE tenant_id = $1 AND id = $2`,
		tenantID, assessmentID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return AssessmentResult{}, ErrNotFound
	}
	if err != nil {
		return AssessmentResult{}, err
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT criterion_id, pass, confidence, reasoning, evidence_doc_id, evidence_page, evidence_section, raw_output
		FROM verdicts
		WHERE assessment_id = $1
		ORDER BY criterion_id`,
		assessmentID,
	)
	if err != nil {
		return AssessmentResult{}, err
	}
	defer rows.Close()

	var verdicts []CriterionVerdict
	for rows.Next() {
		v := CriterionVerdict{AssessmentID: assessmentID}
		var docID *string
		var page *int
		var section *string
		var raw []byte
		if err := rows.Scan(&v.CriterionID, &v.Pass, &v.Confidence, &v.Reasoning, &docID, &page, &section, &raw); err != nil {
			return AssessmentResult{}, err
		}
		if docID != nil {
			v.Evidence = &Evidence{DocumentID: *docID, Page: page, Section: section}
		}
		v.RawOutput = json.RawMessage(raw)
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return AssessmentResult{}, err
	}
	if len(verdicts) == 0 {
		return AssessmentResult{}, ErrNotCompleted
	}
	return buildResult(assessmentID, verdicts), nil
}

func (r *PGRepo) loadDocumentRefs(ctx context.Context, assessmentID string) ([]DocumentRef, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT bucket_id, document_id
		FROM assessment_documents
		WHERE assessment_id = $1
		ORDER BY bucket_id, document_id`,
		assessmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []DocumentRef
	for rows.Next() {
		var ref DocumentRef
		if err := rows.Scan(&ref.BucketID, &ref.DocumentID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (Assessment, error) {
	var a Assessment
	var detail []byte
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.WorkflowID,
		&a.ParentID,
		&a.Status,
		&a.ErrorCode,
		&detail,
		&a.CancelRequested,
		&a.UnitsTotal,
		&a.UnitsDone,
		&a.CreatedAt,
		&a.StartedAt,
		&a.CompletedAt,
	)
	if err != nil {
		return Assessment{}, err
	}
	if len(detail) > 0 {
		var d ErrorDetail
		if err := json.Unmarshal(detail, &d); err == nil {
			a.ErrorDetail = &d
		}
	}
	return a, nil
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
