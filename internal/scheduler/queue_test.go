package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/worker"
)

func TestQueue_PullReturnsLowestPriorityFirst(t *testing.T) {
	q := NewQueue()
	low := &models.Task{ID: 1}
	high := &models.Task{ID: 2}

	q.Push(PriorityFresh, worker.Entry{Task: high})
	q.Push(PriorityResume, worker.Entry{Task: low})

	ctx := context.Background()
	entry, ok := q.Pull(ctx)
	if !ok {
		t.Fatalf("expected an entry")
	}
	if entry.Task.ID != 1 {
		t.Fatalf("expected the higher-priority (lower number) task first, got id %d", entry.Task.ID)
	}
}

func TestQueue_SamePriorityIsFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(PriorityFresh, worker.Entry{Task: &models.Task{ID: 1}})
	q.Push(PriorityFresh, worker.Entry{Task: &models.Task{ID: 2}})

	ctx := context.Background()
	first, _ := q.Pull(ctx)
	second, _ := q.Pull(ctx)

	if first.Task.ID != 1 || second.Task.ID != 2 {
		t.Fatalf("expected FIFO order within equal priority, got %d then %d", first.Task.ID, second.Task.ID)
	}
}

func TestQueue_PullTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	start := time.Now()
	_, ok := q.Pull(ctx)
	elapsed := time.Since(start)

	if ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if elapsed < 900*time.Millisecond {
		t.Fatalf("expected roughly a 1s bound, got %v", elapsed)
	}
}

func TestQueue_PullRespectsCancellation(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pull(ctx)
	if ok {
		t.Fatalf("expected no entry once ctx is canceled")
	}
}

func TestQueue_ShutdownEntryPriorityZeroDrainsFirst(t *testing.T) {
	q := NewQueue()
	q.Push(PriorityFresh, worker.Entry{Task: &models.Task{ID: 1}})
	q.Push(PriorityShutdown, worker.Entry{Shutdown: true})

	entry, ok := q.Pull(context.Background())
	if !ok || !entry.Shutdown {
		t.Fatalf("expected the shutdown sentinel to dispatch first")
	}
}
