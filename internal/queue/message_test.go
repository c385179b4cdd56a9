package queue

import (
	"context"
	"reflect"
	"testing"

	"github.com/bru-digital/qteria/internal/assessments"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		AssessmentID: "assess-123",
		TenantID:     "tenant-456",
		RequestID:    "request-789",
		EnqueuedAt:   "2026-08-30T22:00:00Z",
		Version:      1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected an error for a non-JSON payload")
	}
}

type captureClient struct {
	sent []Message
}

func (c *captureClient) Send(_ context.Context, msg Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestEnqueuerStampsMessage(t *testing.T) {
	client := &captureClient{}
	e := &Enqueuer{Client: client}

	if err := e.EnqueueAssessment(context.Background(), "tenant-1", "assess-1"); err != nil {
		t.Fatalf("EnqueueAssessment: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(client.sent))
	}
	msg := client.sent[0]
	if msg.AssessmentID != "assess-1" || msg.TenantID != "tenant-1" || msg.Version != 1 || msg.EnqueuedAt == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestEnqueuerCarriesRequestID(t *testing.T) {
	client := &captureClient{}
	e := &Enqueuer{Client: client}
	ctx := assessments.WithRequestID(context.Background(), "request-789")

	if err := e.EnqueueAssessment(ctx, "tenant-1", "assess-1"); err != nil {
		t.Fatalf("EnqueueAssessment: %v", err)
	}
	if got := client.sent[0].RequestID; got != "request-789" {
		t.Fatalf("requestId = %q, want the one attached to the context", got)
	}
}
