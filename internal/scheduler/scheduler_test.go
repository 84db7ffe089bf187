package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

type instantDownloader struct{}

func (d *instantDownloader) Download(ctx context.Context, url string, opts ytdlp.Options, progress ytdlp.ProgressCallback) (bool, string, error) {
	return true, "download complete", nil
}

// stuckDownloader blocks mid-download until its context is canceled,
// signalling each start on started.
type stuckDownloader struct {
	started chan struct{}
}

func (d *stuckDownloader) Download(ctx context.Context, url string, opts ytdlp.Options, progress ytdlp.ProgressCallback) (bool, string, error) {
	d.started <- struct{}{}
	<-ctx.Done()
	return false, "", ctx.Err()
}

type noopMetadataFetcher struct{}

func (noopMetadataFetcher) Fetch(ctx context.Context, url string) (models.Metadata, error) {
	return models.Metadata{Title: "T"}, nil
}

type countingSink struct {
	finishedIDs chan int64
}

func newCountingSink() *countingSink {
	return &countingSink{finishedIDs: make(chan int64, 16)}
}

func (s *countingSink) TaskStarted(taskID int64)                           {}
func (s *countingSink) MetadataFetched(taskID int64, meta models.Metadata) {}
func (s *countingSink) ProgressUpdated(taskID int64, p events.ProgressRecord) {}
func (s *countingSink) DownloadFinished(taskID int64, ok bool, message, outputPath string) {
	s.finishedIDs <- taskID
}

func newTestScheduler() (*Scheduler, *countingSink) {
	sink := newCountingSink()
	s := New(&instantDownloader{}, noopMetadataFetcher{}, sink, nil)
	return s, sink
}

func TestScheduler_AdjustWorkerCountGrowsAndShrinks(t *testing.T) {
	s, _ := newTestScheduler()

	s.AdjustWorkerCount(3)
	if got := s.WorkerCount(); got != 3 {
		t.Fatalf("expected 3 workers, got %d", got)
	}

	s.AdjustWorkerCount(1)
	if got := s.WorkerCount(); got != 1 {
		t.Fatalf("expected pool to shrink to 1 worker, got %d", got)
	}
}

func TestScheduler_EnqueueDispatchesToAWorker(t *testing.T) {
	s, sink := newTestScheduler()
	s.Initialize(1)

	settings := config.SettingsConfig{DownloadFolder: t.TempDir(), Format: "mp4"}
	task := models.NewTask("https://www.youtube.com/watch?v=abc", models.ClassificationSingleVideo, settings)
	task.Metadata = models.Metadata{Title: "Already Has Metadata"}

	s.Enqueue(PriorityFresh, task)

	select {
	case id := <-sink.finishedIDs:
		if id != task.ID {
			t.Fatalf("expected finish event for task %d, got %d", task.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the enqueued task to be processed")
	}

	s.Shutdown()
}

func TestScheduler_PauseAllClosesGate(t *testing.T) {
	s, _ := newTestScheduler()
	if !s.Gate.Open() {
		t.Fatalf("expected gate to start open")
	}
	s.PauseAll()
	if s.Gate.Open() {
		t.Fatalf("expected PauseAll to close the gate")
	}
	s.ResumeAll()
	if !s.Gate.Open() {
		t.Fatalf("expected ResumeAll to reopen the gate")
	}
}

func TestScheduler_PauseTaskAndResumeTask(t *testing.T) {
	s, _ := newTestScheduler()
	s.PauseTask(7)
	if !s.Paused.IsPaused(7) {
		t.Fatalf("expected task 7 to be marked paused")
	}
	s.ResumeTask(7)
	if s.Paused.IsPaused(7) {
		t.Fatalf("expected task 7 to be unmarked")
	}
}

func TestScheduler_ShutdownBoundedWhileWorkersDownloading(t *testing.T) {
	downloader := &stuckDownloader{started: make(chan struct{}, 3)}
	sink := newCountingSink()
	s := New(downloader, noopMetadataFetcher{}, sink, nil)
	s.Initialize(3)

	settings := config.SettingsConfig{DownloadFolder: t.TempDir(), Format: "mp4"}
	for i := 0; i < 3; i++ {
		task := models.NewTask("https://www.youtube.com/watch?v=abc", models.ClassificationSingleVideo, settings)
		task.Metadata = models.Metadata{Title: "T"}
		s.Enqueue(PriorityFresh, task)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-downloader.started:
		case <-time.After(3 * time.Second):
			t.Fatalf("worker %d never began downloading", i)
		}
	}

	start := time.Now()
	s.Shutdown()
	elapsed := time.Since(start)

	// One shared cleanup window plus scheduling slack, never N windows.
	if elapsed > workerCleanupWait+2*time.Second {
		t.Fatalf("Shutdown took %v with 3 downloading workers; want a single shared %v bound", elapsed, workerCleanupWait)
	}
}

func TestScheduler_ShutdownStopsAllWorkers(t *testing.T) {
	s, _ := newTestScheduler()
	s.Initialize(2)

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatalf("Shutdown did not return within its cleanup bound")
	}

	if !s.Stop.Stopped() {
		t.Fatalf("expected the stop-event to be set after Shutdown")
	}
	if got := s.WorkerCount(); got != 0 {
		t.Fatalf("expected the worker list to be cleared after Shutdown, got %d", got)
	}
}
