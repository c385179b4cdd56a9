package documents

import "time"

// Document represents an uploaded certification document owned by a tenant
// and filed under a workflow bucket.
type Document struct {
	ID          string
	TenantID    string
	BucketID    string
	FileName    string
	MimeType    string
	SizeBytes   int64
	StorageKey  string
	ContentHash string
	CreatedAt   time.Time
}
