// Package playlist implements the Playlist Expander: a background
// fan-out that turns one playlist URL into one child Task per surviving
// video id.
package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/metadata"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

// priorityFresh mirrors the Scheduler's PriorityFresh; kept
// as a local constant rather than importing internal/scheduler so this
// package only depends on the narrow Enqueuer interface below.
const priorityFresh = 3

// maxConcurrentLookups bounds how many history/active-task checks run
// at once while expanding a large playlist.
const maxConcurrentLookups = 5

// InfoExtractor is the subset of *ytdlp.Wrapper the expander depends on.
type InfoExtractor interface {
	ExtractInfo(ctx context.Context, url string, opts ytdlp.Options) (*ytdlp.Info, error)
}

// Enqueuer is the subset of *scheduler.Scheduler the expander depends on.
type Enqueuer interface {
	Enqueue(priority int, task *models.Task)
}

// ActiveTasksFunc returns a snapshot of the Controller's current task
// list, used to skip videos already queued or in flight.
type ActiveTasksFunc func() []*models.Task

// Result summarizes one expansion run, primarily for the completion
// signal the Controller relays back to the client. Meta is the
// playlist-level metadata snapshot (title, uploader, entry count).
type Result struct {
	PlaylistURL string
	Meta        models.Metadata
	Enqueued    []string
	Skipped     []string
	Err         error
}

// Expander runs playlist expansion in the background so the client
// stays responsive while a large playlist is resolved.
type Expander struct {
	Extractor   InfoExtractor
	Enqueuer    Enqueuer
	History     *store.HistoryStore
	ActiveTasks ActiveTasksFunc
	Logger      *slog.Logger
}

// New constructs an Expander.
func New(extractor InfoExtractor, enqueuer Enqueuer, history *store.HistoryStore, activeTasks ActiveTasksFunc, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{Extractor: extractor, Enqueuer: enqueuer, History: history, ActiveTasks: activeTasks, Logger: logger}
}

// Expand launches the expansion of playlistURL in a new goroutine and
// returns immediately; onDone, if non-nil, receives the final Result.
func (e *Expander) Expand(ctx context.Context, playlistURL string, settings config.SettingsConfig, onDone func(Result)) {
	go func() {
		result := e.run(ctx, playlistURL, settings)
		if onDone != nil {
			onDone(result)
		}
	}()
}

func (e *Expander) run(ctx context.Context, playlistURL string, settings config.SettingsConfig) Result {
	info, err := e.Extractor.ExtractInfo(ctx, playlistURL, ytdlp.Options{ExtractFlat: true})
	if err != nil {
		e.Logger.Warn("playlist expansion failed", "url", playlistURL, "error", err)
		return Result{PlaylistURL: playlistURL, Err: err}
	}

	meta := metadata.FromInfo(info)

	ids := make([]string, 0, len(info.Entries))
	for _, entry := range info.Entries {
		if entry.ID != "" {
			ids = append(ids, entry.ID)
		}
	}

	active := make(map[string]bool, len(ids))
	for _, t := range e.ActiveTasks() {
		if t.VideoID != "" {
			active[t.VideoID] = true
		}
	}

	var mu sync.Mutex
	var enqueued, skipped []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if active[id] {
				mu.Lock()
				skipped = append(skipped, id)
				mu.Unlock()
				return nil
			}

			downloaded, lookupErr := e.History.IsDownloadedAnyFormat(gctx, id)
			if lookupErr == nil && downloaded {
				mu.Lock()
				skipped = append(skipped, id)
				mu.Unlock()
				return nil
			}

			childURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
			task := models.NewTask(childURL, models.ClassificationPlaylistChild, settings)
			task.VideoID = id
			task.PlaylistID = playlistURL
			e.Enqueuer.Enqueue(priorityFresh, task)

			mu.Lock()
			enqueued = append(enqueued, id)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.Logger.Info("playlist expansion complete",
		"url", playlistURL, "title", meta.Title, "entries", meta.VideoCount,
		"enqueued", len(enqueued), "skipped", len(skipped))

	return Result{PlaylistURL: playlistURL, Meta: meta, Enqueued: enqueued, Skipped: skipped}
}
