package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestGate_StartsOpen(t *testing.T) {
	g := NewGate()
	if !g.Open() {
		t.Fatalf("expected a new gate to start open")
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on an open gate should not block or error: %v", err)
	}
}

func TestGate_CloseBlocksWaitUntilReopened(t *testing.T) {
	g := NewGate()
	g.CloseGate()
	if g.Open() {
		t.Fatalf("expected gate to report closed")
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Wait should still be blocked on a closed gate")
	case <-time.After(50 * time.Millisecond):
	}

	g.OpenGate()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Wait did not unblock after OpenGate")
	}
}

func TestGate_WaitRespectsContextCancellation(t *testing.T) {
	g := NewGate()
	g.CloseGate()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to return an error once ctx is canceled")
	}
}
