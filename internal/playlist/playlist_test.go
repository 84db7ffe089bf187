package playlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

type fakeExtractor struct {
	info *ytdlp.Info
	err  error
}

func (f *fakeExtractor) ExtractInfo(ctx context.Context, url string, opts ytdlp.Options) (*ytdlp.Info, error) {
	return f.info, f.err
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*models.Task
}

func (e *recordingEnqueuer) Enqueue(priority int, task *models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}

func (e *recordingEnqueuer) videoIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.tasks))
	for i, t := range e.tasks {
		ids[i] = t.VideoID
	}
	return ids
}

func setupHistoryStore(t *testing.T) *store.HistoryStore {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: "silent"}
	db, err := database.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	hs := store.NewHistoryStore(db)
	if err := hs.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return hs
}

func TestExpand_EnqueuesAllNewEntries(t *testing.T) {
	history := setupHistoryStore(t)
	extractor := &fakeExtractor{info: &ytdlp.Info{
		Type: "playlist",
		Entries: []ytdlp.Info{
			{ID: "aaa"}, {ID: "bbb"}, {ID: "ccc"},
		},
	}}
	enqueuer := &recordingEnqueuer{}
	e := New(extractor, enqueuer, history, func() []*models.Task { return nil }, nil)

	done := make(chan Result, 1)
	e.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL1", config.SettingsConfig{Format: "mp4"}, func(r Result) {
		done <- r
	})

	select {
	case r := <-done:
		if len(r.Enqueued) != 3 {
			t.Fatalf("expected 3 enqueued ids, got %d", len(r.Enqueued))
		}
		if !r.Meta.IsPlaylist || r.Meta.VideoCount != 3 {
			t.Fatalf("expected playlist metadata with 3 entries, got %+v", r.Meta)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for expansion to finish")
	}

	if got := enqueuer.videoIDs(); len(got) != 3 {
		t.Fatalf("expected 3 tasks enqueued, got %d", len(got))
	}
}

func TestExpand_SkipsAlreadyDownloadedEntries(t *testing.T) {
	history := setupHistoryStore(t)
	if err := history.Add(context.Background(), "aaa", "mp4", "Title", "Uploader"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	extractor := &fakeExtractor{info: &ytdlp.Info{
		Entries: []ytdlp.Info{{ID: "aaa"}, {ID: "bbb"}},
	}}
	enqueuer := &recordingEnqueuer{}
	e := New(extractor, enqueuer, history, func() []*models.Task { return nil }, nil)

	done := make(chan Result, 1)
	e.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL2", config.SettingsConfig{Format: "mp4"}, func(r Result) {
		done <- r
	})

	r := <-done
	if len(r.Skipped) != 1 || r.Skipped[0] != "aaa" {
		t.Fatalf("expected aaa to be skipped as already downloaded, got %v", r.Skipped)
	}
	if len(r.Enqueued) != 1 || r.Enqueued[0] != "bbb" {
		t.Fatalf("expected bbb to be enqueued, got %v", r.Enqueued)
	}
}

func TestExpand_SkipsEntriesAlreadyActive(t *testing.T) {
	history := setupHistoryStore(t)
	extractor := &fakeExtractor{info: &ytdlp.Info{
		Entries: []ytdlp.Info{{ID: "aaa"}, {ID: "bbb"}},
	}}
	enqueuer := &recordingEnqueuer{}
	active := []*models.Task{{VideoID: "aaa"}}
	e := New(extractor, enqueuer, history, func() []*models.Task { return active }, nil)

	done := make(chan Result, 1)
	e.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL3", config.SettingsConfig{Format: "mp4"}, func(r Result) {
		done <- r
	})

	r := <-done
	if len(r.Skipped) != 1 || r.Skipped[0] != "aaa" {
		t.Fatalf("expected aaa to be skipped as already active, got %v", r.Skipped)
	}
}

func TestExpand_ExtractInfoFailureReportsError(t *testing.T) {
	history := setupHistoryStore(t)
	extractor := &fakeExtractor{err: context.DeadlineExceeded}
	enqueuer := &recordingEnqueuer{}
	e := New(extractor, enqueuer, history, func() []*models.Task { return nil }, nil)

	done := make(chan Result, 1)
	e.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL4", config.SettingsConfig{}, func(r Result) {
		done <- r
	})

	r := <-done
	if r.Err == nil {
		t.Fatalf("expected an error to be reported")
	}
	if len(enqueuer.videoIDs()) != 0 {
		t.Fatalf("expected no tasks enqueued on extraction failure")
	}
}
