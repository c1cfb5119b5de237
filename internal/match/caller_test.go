package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentduel/agents/internal/agent"
)

// TestCallerRunsCallbacks ensures callbacks execute in order and return their
// results.
func TestCallerRunsCallbacks(t *testing.T) {
	c := newCaller()
	defer c.close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		want := i
		action, err := c.invoke(ctx, time.Second, func(ctx context.Context) (agent.Action, error) {
			return agent.Action{"seq": want}, nil
		})
		if err != nil {
			t.Fatalf("invoke %d returned error: %v", want, err)
		}
		if action["seq"] != want {
			t.Fatalf("expected seq %d, got %v", want, action["seq"])
		}
	}
}

// TestCallerTimeout ensures a callback that outlives its deadline returns the
// timeout error without blocking the invoker.
func TestCallerTimeout(t *testing.T) {
	c := newCaller()
	defer c.close()

	start := time.Now()
	_, err := c.invoke(context.Background(), 20*time.Millisecond, func(ctx context.Context) (agent.Action, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, errCallbackTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("invoke blocked for %v past a 20ms deadline", elapsed)
	}
}

// TestCallerDeadlineCoversQueueing ensures a call queued behind a stale
// callback still honors its own deadline.
func TestCallerDeadlineCoversQueueing(t *testing.T) {
	c := newCaller()
	defer c.close()

	release := make(chan struct{})
	go func() {
		c.invoke(context.Background(), 10*time.Millisecond, func(ctx context.Context) (agent.Action, error) {
			<-release
			return nil, nil
		})
	}()
	// Give the stale callback time to occupy the worker.
	time.Sleep(20 * time.Millisecond)

	_, err := c.invoke(context.Background(), 20*time.Millisecond, func(ctx context.Context) (agent.Action, error) {
		return agent.Action{}, nil
	})
	close(release)
	if !errors.Is(err, errCallbackTimeout) {
		t.Fatalf("expected timeout while queued, got %v", err)
	}
}

// TestCallerParentCancellation ensures cancellation of the match context wins
// over the timeout in the returned error.
func TestCallerParentCancellation(t *testing.T) {
	c := newCaller()
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.invoke(ctx, time.Second, func(ctx context.Context) (agent.Action, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
