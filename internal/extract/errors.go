package extract

import "fmt"

// ExtractionError marks a document whose bytes could not be read by either
// extraction path. It is scoped to one document and never aborts the whole
// assessment.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract document %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
