// Package scheduler implements the priority queue, worker pool,
// run-gate, per-task paused set, and stop-event that together decide
// which task downloads next.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/worker"
)

// workerCleanupWait bounds how long shutdown waits for each worker to
// notice the stop-event and exit before proceeding regardless.
const workerCleanupWait = 5 * time.Second

type workerHandle struct {
	worker *worker.Worker
	done   chan struct{}
}

// Scheduler owns the worker pool and its shared collaborators: the
// priority queue, the run-gate, the per-task paused set, and the
// stop-event.
type Scheduler struct {
	Queue  *Queue
	Gate   *Gate
	Paused *PausedSet
	Stop   *StopEvent
	Sink   events.Sink

	downloader worker.Downloader
	metadata   worker.MetadataFetcher
	logger     *slog.Logger

	mu           sync.Mutex
	workers      []*workerHandle
	nextWorkerID int

	workerCtx    context.Context
	cancelWorker context.CancelFunc
}

// New constructs a Scheduler. It does not start any workers; call
// Initialize or AdjustWorkerCount to spawn the pool.
func New(downloader worker.Downloader, metadataFetcher worker.MetadataFetcher, sink events.Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Queue:        NewQueue(),
		Gate:         NewGate(),
		Paused:       NewPausedSet(),
		Stop:         &StopEvent{},
		Sink:         sink,
		downloader:   downloader,
		metadata:     metadataFetcher,
		logger:       logger,
		workerCtx:    ctx,
		cancelWorker: cancel,
	}
}

// Initialize opens the run-gate and spawns n workers.
func (s *Scheduler) Initialize(n int) {
	s.Gate.OpenGate()
	s.AdjustWorkerCount(n)
}

// Enqueue adds a task to the priority queue at the given priority.
// Callers should use PriorityFresh for new work and PriorityResume
// when reenqueueing a resumed task.
func (s *Scheduler) Enqueue(priority int, task *models.Task) {
	s.Queue.Push(priority, worker.Entry{Task: task})
}

// PauseAll closes the run-gate, blocking every worker before its next
// dispatch.
func (s *Scheduler) PauseAll() {
	s.Gate.CloseGate()
}

// ResumeAll reopens the run-gate.
func (s *Scheduler) ResumeAll() {
	s.Gate.OpenGate()
}

// PauseTask marks a single task id as per-task paused.
func (s *Scheduler) PauseTask(id int64) {
	s.Paused.Pause(id)
}

// ResumeTask clears a single task id's per-task paused flag.
func (s *Scheduler) ResumeTask(id int64) {
	s.Paused.Resume(id)
}

// QueueLength reports the number of entries waiting in the priority
// queue.
func (s *Scheduler) QueueLength() int {
	return s.Queue.Len()
}

// WorkerCount reports the number of workers currently in the pool
// (including any marked for retirement but not yet exited).
func (s *Scheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// AdjustWorkerCount grows or shrinks the pool to target. Growing spawns
// new workers immediately; shrinking marks the excess workers for
// graceful retirement so each finishes its in-flight task before
// exiting.
func (s *Scheduler) AdjustWorkerCount(target int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := len(s.workers)
	switch {
	case target > current:
		for i := 0; i < target-current; i++ {
			s.spawnWorkerLocked()
		}
	case target < current:
		toRetire := current - target
		for i := 0; i < toRetire; i++ {
			idx := len(s.workers) - 1
			s.workers[idx].worker.Retire()
			s.workers = s.workers[:idx]
		}
	}
}

func (s *Scheduler) spawnWorkerLocked() {
	id := s.nextWorkerID
	s.nextWorkerID++

	w := worker.New(id, s.Queue, s.Gate, s.Paused, s.Stop, s.downloader, s.metadata, s.Sink, s.logger)
	done := make(chan struct{})
	go func() {
		w.Run(s.workerCtx)
		close(done)
	}()

	s.workers = append(s.workers, &workerHandle{worker: w, done: done})
}

// Shutdown sets the stop-event, pushes one shutdown sentinel per live
// worker, and awaits the whole pool against a single workerCleanupWait
// window before returning regardless. The bound is shared, not
// per-worker: shutdown with N stuck workers still returns within one
// cleanup window, independent of download progress.
func (s *Scheduler) Shutdown() {
	s.Stop.Set()

	s.mu.Lock()
	handles := append([]*workerHandle(nil), s.workers...)
	s.workers = nil
	s.mu.Unlock()

	for range handles {
		s.Queue.Push(PriorityShutdown, worker.Entry{Shutdown: true})
	}

	// Cancel the worker context up front so in-flight downloader
	// subprocesses are killed inside the cleanup window rather than
	// left to run it out.
	s.cancelWorker()

	allDone := make(chan struct{})
	go func() {
		for _, h := range handles {
			<-h.done
		}
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-time.After(workerCleanupWait):
		s.logger.Warn("abandoning workers still alive after cleanup window",
			"workers", len(handles))
	}
}
