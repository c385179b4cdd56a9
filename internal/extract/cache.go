package extract

import "context"

// Cache stores parse results keyed by content hash, with no expiry.
// Re-uploads of byte-identical content never re-parse. Writes are idempotent
// upserts; content is deterministic for identical bytes so last-writer-wins
// is conflict-free.
type Cache interface {
	Get(ctx context.Context, contentHash string) (ParsedDocument, bool, error)
	Put(ctx context.Context, contentHash string, doc ParsedDocument) error
}
