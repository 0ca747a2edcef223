package run

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func TestRun_ExitCodes(t *testing.T) {
	r := New(zap.NewNop())
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"clean", nil, 0},
		{"server closed", http.ErrServerClosed, 0},
		{"failure", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.run(context.Background(), func(context.Context) error { return tc.err })
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := New(zap.NewNop()).run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if got != 0 {
		t.Fatalf("expected 0 on cancellation, got %d", got)
	}
}

func TestGraceful_PassesDeadline(t *testing.T) {
	var hasDeadline bool
	New(zap.NewNop()).Graceful("test", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return errors.New("ignored")
	})
	if !hasDeadline {
		t.Fatal("expected shutdown context to carry a deadline")
	}
}
