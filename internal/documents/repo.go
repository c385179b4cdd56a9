package documents

import "context"

// Repo defines persistence operations for documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, tenantID, documentID string) (Document, error)
	ListByBucket(ctx context.Context, tenantID, bucketID string) ([]Document, error)
}
