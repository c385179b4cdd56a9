package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bru-digital/qteria/internal/assessments"
	"github.com/bru-digital/qteria/internal/queue"
)

// AssessmentProcessor runs one queued assessment to a terminal state.
type AssessmentProcessor interface {
	ProcessAssessment(ctx context.Context, tenantID, assessmentID string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingAssessmentID indicates a message missing the assessment id.
type ErrMissingAssessmentID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingAssessmentID) Error() string { return "missing assessment id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	AssessmentID string
	RequestID    string
	Err          error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process assessment"
	}
	return "process assessment: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AssessmentID) == "" {
		return msg, meta, ErrMissingAssessmentID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Unrecoverable reports whether a message should be deleted instead of
// redelivered: malformed payloads never get better on retry.
func Unrecoverable(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var missing ErrMissingAssessmentID
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, proc AssessmentProcessor, body string) error {
	if proc == nil {
		return errors.New("assessment processor not configured")
	}

	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}

	ctxWithRequest := assessments.WithRequestID(ctx, msg.RequestID)
	if err := proc.ProcessAssessment(ctxWithRequest, msg.TenantID, msg.AssessmentID); err != nil {
		return ErrProcess{AssessmentID: msg.AssessmentID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
