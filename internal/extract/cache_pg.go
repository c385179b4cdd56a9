package extract

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGCache implements Cache on the parsed_documents table.
type PGCache struct {
	DB *sql.DB
}

// Get returns the cached parse for a content hash, if present.
func (c *PGCache) Get(ctx context.Context, contentHash string) (ParsedDocument, bool, error) {
	var raw []byte
	err := c.DB.QueryRowContext(ctx, `
		SELECT pages FROM parsed_documents WHERE content_hash = $1`,
		contentHash,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ParsedDocument{}, false, nil
	}
	if err != nil {
		return ParsedDocument{}, false, err
	}

	var pages []Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		return ParsedDocument{}, false, fmt.Errorf("unmarshal cached pages hash=%s: %w", contentHash, err)
	}
	return ParsedDocument{ContentHash: contentHash, Pages: pages}, true, nil
}

// Put upserts a parse result. Last writer wins; identical bytes parse
// identically so concurrent writers cannot conflict.
func (c *PGCache) Put(ctx context.Context, contentHash string, doc ParsedDocument) error {
	raw, err := json.Marshal(doc.Pages)
	if err != nil {
		return fmt.Errorf("marshal pages hash=%s: %w", contentHash, err)
	}
	_, err = c.DB.ExecContext(ctx, `
		INSERT INTO parsed_documents (content_hash, pages, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_hash) DO UPDATE SET pages = EXCLUDED.pages`,
		contentHash, raw, time.Now().UTC(),
	)
	return err
}
