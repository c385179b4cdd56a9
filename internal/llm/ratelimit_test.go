package llm

import (
	"context"
	"testing"
)

type recordingClient struct {
	calls int
}

func (r *recordingClient) Complete(ctx context.Context, req Request) (string, error) {
	r.calls++
	return "ok", nil
}

func TestNewRateLimitedZeroRateReturnsBase(t *testing.T) {
	base := &recordingClient{}
	if got := NewRateLimited(base, 0); got != Client(base) {
		t.Fatal("zero rate should return the base client unchanged")
	}
}

func TestRateLimitedPassesThrough(t *testing.T) {
	base := &recordingClient{}
	limited := NewRateLimited(base, 600)

	for i := 0; i < 3; i++ {
		out, err := limited.Complete(context.Background(), Request{Prompt: "p"})
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if out != "ok" {
			t.Fatalf("out = %q", out)
		}
	}
	if base.calls != 3 {
		t.Fatalf("base calls = %d", base.calls)
	}
}

func TestRateLimitedHonorsContextCancel(t *testing.T) {
	base := &recordingClient{}
	// One token per minute: the second call must block on the limiter.
	limited := NewRateLimited(base, 1)

	if _, err := limited.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limited.Complete(ctx, Request{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if base.calls != 1 {
		t.Fatalf("cancelled call must not reach base, calls = %d", base.calls)
	}
}
