package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bru-digital/qteria/internal/shared/storage/object"
	"github.com/bru-digital/qteria/internal/shared/util"
)

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
}

// Upload saves the file to object storage and records the document. The
// content hash is computed up front so the parse cache can key on it without
// re-reading the blob.
func (s *Service) Upload(ctx context.Context, tenantID, bucketID, fileName string, data []byte) (Document, error) {
	if tenantID == "" || bucketID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, tenantID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		BucketID:    bucketID,
		FileName:    fileName,
		MimeType:    mimeType,
		SizeBytes:   size,
		StorageKey:  storageKey,
		ContentHash: util.HashBytes(data),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}

	return doc, nil
}

// FetchBytes loads a document's raw bytes from the object store. This is the
// fallible I/O boundary the pipeline retries at the job level.
func (s *Service) FetchBytes(ctx context.Context, tenantID, documentID string) ([]byte, error) {
	doc, err := s.Repo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("lookup document %s: %w", documentID, err)
	}
	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open document %s key=%s: %w", doc.ID, doc.StorageKey, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read document %s key=%s: %w", doc.ID, doc.StorageKey, err)
	}
	return data, nil
}

// Get returns a document scoped to a tenant.
func (s *Service) Get(ctx context.Context, tenantID, documentID string) (Document, error) {
	if tenantID == "" || documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, tenantID, documentID)
}
