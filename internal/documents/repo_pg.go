package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, tenant_id, bucket_id, file_name, mime_type, size_bytes, storage_key, content_hash, created_at`

// Create inserts a document row.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, bucket_id, file_name, mime_type, size_bytes, storage_key, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.TenantID, doc.BucketID, doc.FileName, doc.MimeType, doc.SizeBytes, doc.StorageKey, doc.ContentHash, doc.CreatedAt,
	)
	return err
}

// GetByID returns a document by ID scoped to a tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, documentID string) (Document, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, documentID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// ListByBucket returns a tenant's documents in a bucket, newest first.
func (r *PGRepo) ListByBucket(ctx context.Context, tenantID, bucketID string) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = $1 AND bucket_id = $2
		ORDER BY created_at DESC`,
		tenantID, bucketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.BucketID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&doc.ContentHash,
		&doc.CreatedAt,
	)
	return doc, err
}
