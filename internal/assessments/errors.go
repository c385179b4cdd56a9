package assessments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotTerminal  = errors.New("assessment is not terminal")
	ErrNotCompleted = errors.New("assessment is not completed")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	ErrorCodeExtraction     = "EXTRACTION_ERROR"
	ErrorCodeLLMTimeout     = "LLM_TIMEOUT"
	ErrorCodeSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage        = "STORAGE_ERROR"
	ErrorCodeCancelled      = "CANCELLED"
	ErrorCodeJobTimeout     = "JOB_TIMEOUT"
	ErrorCodeInternal       = "INTERNAL_ERROR"
)

// FormatError reports a model response that failed strict schema validation:
// not valid JSON, a missing or duplicated criterion object, or a non-boolean
// pass. It is retryable until the batch's attempt budget runs out.
type FormatError struct {
	MissingCriteria []string
	Err             error
}

func (e *FormatError) Error() string {
	if len(e.MissingCriteria) > 0 {
		return fmt.Sprintf("model response invalid: missing criteria [%s]", strings.Join(e.MissingCriteria, ", "))
	}
	if e.Err != nil {
		return "model response invalid: " + e.Err.Error()
	}
	return "model response invalid"
}

func (e *FormatError) Unwrap() error { return e.Err }

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
