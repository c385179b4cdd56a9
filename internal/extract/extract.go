package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/bru-digital/qteria/internal/shared/metrics"
	"github.com/bru-digital/qteria/internal/shared/telemetry"
	"github.com/bru-digital/qteria/internal/shared/util"
)

// Extractor turns raw document bytes into page-indexed, section-tagged text.
// Results are cached by content hash so byte-identical uploads parse once.
type Extractor struct {
	Cache Cache
}

// Extract parses document bytes into a ParsedDocument. A cache hit
// short-circuits all parsing work. On a miss the primary reader runs first;
// if it rejects the stream the bytes are repaired via pdfcpu and re-read
// before the document is declared unreadable.
func (e *Extractor) Extract(ctx context.Context, data []byte, documentID string) (ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return ParsedDocument{}, err
	}

	contentHash := util.HashBytes(data)

	if e.Cache != nil {
		cached, ok, err := e.Cache.Get(ctx, contentHash)
		if err != nil {
			return ParsedDocument{}, fmt.Errorf("parse cache get hash=%s: %w", contentHash, err)
		}
		if ok {
			metrics.IncParseCacheHit()
			cached.DocumentID = documentID
			return cached, nil
		}
		metrics.IncParseCacheMiss()
	}

	pages, err := extractPages(data)
	if err != nil {
		repaired, repairErr := repairPDF(data)
		if repairErr != nil {
			return ParsedDocument{}, &ExtractionError{DocumentID: documentID, Err: fmt.Errorf("primary: %v; repair: %w", err, repairErr)}
		}
		pages, err = extractPages(repaired)
		if err != nil {
			return ParsedDocument{}, &ExtractionError{DocumentID: documentID, Err: err}
		}
	}

	doc := ParsedDocument{
		DocumentID:  documentID,
		ContentHash: contentHash,
		Pages:       tagSections(pages),
	}

	if e.Cache != nil {
		if err := e.Cache.Put(ctx, contentHash, doc); err != nil {
			// The cache is an optimization; a failed write must not fail
			// the extraction that already succeeded.
			telemetry.Error("extract.cache_put_failed", map[string]any{
				"document_id":  documentID,
				"content_hash": contentHash,
				"error":        err.Error(),
			})
		}
	}

	return doc, nil
}

// extractPages reads per-page text with the primary reader. The reader
// panics on some malformed xref tables, so panics become errors here and
// route the bytes into the repair path.
func extractPages(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Page: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, Page{Page: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

// repairPDF rewrites the stream through pdfcpu with relaxed validation,
// recovering documents the primary reader chokes on.
func repairPDF(data []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
