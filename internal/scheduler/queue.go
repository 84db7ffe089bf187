package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/tvget/internal/worker"
)

// Resumed tasks jump ahead of freshly enqueued ones, and shutdown
// sentinels drain first of all.
const (
	PriorityShutdown = 0
	PriorityResume   = 1
	PriorityFresh    = 3
)

// queueItem is one entry in the priority heap. seq breaks ties between
// equal-priority items in FIFO order (container/heap is not otherwise
// stable).
type queueItem struct {
	priority int
	seq      int64
	entry    worker.Entry
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the scheduler's shared priority queue: lower priority
// numbers dispatch first, FIFO within a level. It implements
// worker.Queue.
type Queue struct {
	mu     sync.Mutex
	heap   itemHeap
	seq    int64
	notify chan struct{}
}

// NewQueue constructs an empty priority queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push enqueues an entry at the given priority.
func (q *Queue) Push(priority int, entry worker.Entry) {
	q.mu.Lock()
	item := &queueItem{priority: priority, seq: q.seq, entry: entry}
	q.seq++
	heap.Push(&q.heap, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pull blocks for up to one second waiting for an entry, returning
// ok=false on timeout or ctx cancellation so the caller's run loop can
// re-check its exit conditions.
func (q *Queue) Pull(ctx context.Context) (worker.Entry, bool) {
	q.mu.Lock()
	if q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*queueItem)
		q.mu.Unlock()
		return item.entry, true
	}
	q.mu.Unlock()

	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return worker.Entry{}, false
	case <-timer.C:
		return worker.Entry{}, false
	case <-q.notify:
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.heap.Len() > 0 {
			item := heap.Pop(&q.heap).(*queueItem)
			return item.entry, true
		}
		return worker.Entry{}, false
	}
}

// Len reports the number of entries currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
