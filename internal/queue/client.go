package queue

import (
	"context"
	"time"

	"github.com/bru-digital/qteria/internal/assessments"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueuer schedules assessment jobs as queue messages.
type Enqueuer struct {
	Client Client
}

// EnqueueAssessment sends one job message for the given assessment. The
// request ID travels with the message so worker logs correlate with the
// API call that triggered the job.
func (e *Enqueuer) EnqueueAssessment(ctx context.Context, tenantID, assessmentID string) error {
	return e.Client.Send(ctx, Message{
		AssessmentID: assessmentID,
		TenantID:     tenantID,
		RequestID:    assessments.RequestIDFromContext(ctx),
		EnqueuedAt:   time.Now().UTC().Format(time.RFC3339),
		Version:      1,
	})
}
