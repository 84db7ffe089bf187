// Package controller implements the thin orchestration layer that wires
// the URL classifier, duplicate checker, scheduler, task store, and
// history store together behind a small set of client-facing intents.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/dupcheck"
	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/playlist"
	"github.com/jmylchreest/tvget/internal/scheduler"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/jmylchreest/tvget/internal/taskstore"
	"github.com/jmylchreest/tvget/internal/urlclassify"
)

// Controller owns the in-memory task list and coordinates every
// client-facing intent.
type Controller struct {
	mu    sync.Mutex
	tasks map[int64]*models.Task

	scheduler *scheduler.Scheduler
	taskStore *taskstore.Store
	history   *store.HistoryStore
	dup       *dupcheck.Checker
	expander  *playlist.Expander
	logger    *slog.Logger
}

// New constructs a Controller over an already-initialized Scheduler.
func New(sched *scheduler.Scheduler, taskStore *taskstore.Store, history *store.HistoryStore, dup *dupcheck.Checker, expander *playlist.Expander, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		tasks:     make(map[int64]*models.Task),
		scheduler: sched,
		taskStore: taskStore,
		history:   history,
		dup:       dup,
		expander:  expander,
		logger:    logger,
	}
}

// LoadTasks restores the task list from the Task Store at startup into
// the in-memory task list only; nothing is pushed onto the priority
// queue, so Paused/Waiting tasks are visible in listings without being
// dispatched until the Controller explicitly reenqueues them.
func (c *Controller) LoadTasks() error {
	tasks, err := c.taskStore.Load()
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tasks {
		c.tasks[t.ID] = t
	}
	return nil
}

// Tasks returns a snapshot slice of every known task.
func (c *Controller) Tasks() []*models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() []*models.Task {
	out := make([]*models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	return out
}

func (c *Controller) addTaskLocked(task *models.Task) {
	c.tasks[task.ID] = task
}

func (c *Controller) get(id int64) (*models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	return t, ok
}

// Add validates and classifies a URL. A URL carrying both a video and a
// list parameter is rejected with ErrAmbiguousURL; the client resolves
// the ambiguity and calls AddAs. A playlist URL is handed to the
// Playlist Expander and Add returns (nil, nil) immediately; a single
// video is duplicate-checked and, if clear, enqueued at PriorityFresh.
func (c *Controller) Add(ctx context.Context, rawURL string, settings config.SettingsConfig) (*models.Task, error) {
	if urlclassify.HasVideoAndList(rawURL) {
		return nil, models.ErrAmbiguousURL
	}
	return c.add(ctx, rawURL, settings, false, false)
}

// AddAs classifies rawURL with an explicit single-video/playlist
// preference, for URLs the client has already disambiguated.
func (c *Controller) AddAs(ctx context.Context, rawURL string, settings config.SettingsConfig, preferPlaylist bool) (*models.Task, error) {
	return c.add(ctx, rawURL, settings, preferPlaylist, false)
}

// AddWithConsent is the consent step of the duplicate flow: it purges
// the (video id, format) history entry so the check does not trip again
// within the same action, then enqueues regardless of any remaining
// live-task conflict.
func (c *Controller) AddWithConsent(ctx context.Context, rawURL string, settings config.SettingsConfig, preferPlaylist bool) (*models.Task, error) {
	canonical, isPlaylist := urlclassify.Classify(rawURL, preferPlaylist)
	if !isPlaylist {
		if videoID := urlclassify.ExtractVideoID(canonical); videoID != "" {
			if err := c.dup.Forget(ctx, videoID, settings.Format); err != nil {
				return nil, fmt.Errorf("forgetting history: %w", err)
			}
		}
	}
	return c.add(ctx, rawURL, settings, preferPlaylist, true)
}

func (c *Controller) add(ctx context.Context, rawURL string, settings config.SettingsConfig, preferPlaylist, skipDupCheck bool) (*models.Task, error) {
	canonical, isPlaylist := urlclassify.Classify(rawURL, preferPlaylist)
	if canonical == "" {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidURL, rawURL)
	}
	if isPlaylist {
		c.expander.Expand(ctx, canonical, settings, nil)
		return nil, nil
	}

	videoID := urlclassify.ExtractVideoID(canonical)

	if !skipDupCheck {
		c.mu.Lock()
		existing := c.snapshotLocked()
		c.mu.Unlock()

		conflict, msg, conflictingTask, err := c.dup.Check(ctx, videoID, 0, existing, settings.Format)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if conflict {
			return conflictingTask, fmt.Errorf("%w: %s", models.ErrDuplicateDownload, msg)
		}
	}

	task := models.NewTask(canonical, models.ClassificationSingleVideo, settings)
	task.VideoID = videoID

	c.mu.Lock()
	c.addTaskLocked(task)
	c.mu.Unlock()

	c.scheduler.Enqueue(scheduler.PriorityFresh, task)
	return task, nil
}

// Enqueue adopts a task created elsewhere (playlist expansion) into the
// in-memory list, then hands it to the Scheduler. It implements
// playlist.Enqueuer so expanded children stay visible to pause, resume,
// and shutdown persistence.
func (c *Controller) Enqueue(priority int, task *models.Task) {
	c.mu.Lock()
	c.addTaskLocked(task)
	c.mu.Unlock()
	c.scheduler.Enqueue(priority, task)
}

// Pause marks a task Paused and asks the Scheduler to drop it from
// dispatch.
func (c *Controller) Pause(id int64) error {
	task, ok := c.get(id)
	if !ok {
		return models.ErrTaskNotFound
	}
	c.mu.Lock()
	task.Status = models.StatusPaused
	c.mu.Unlock()
	c.scheduler.PauseTask(id)
	return nil
}

// Resume clears the per-task paused flag and reenqueues the task at
// PriorityResume with IsResume set, so the downloader preserves any
// partial file already on disk.
func (c *Controller) Resume(id int64) error {
	task, ok := c.get(id)
	if !ok {
		return models.ErrTaskNotFound
	}
	c.scheduler.ResumeTask(id)

	c.mu.Lock()
	task.Status = models.StatusWaiting
	task.IsResume = true
	c.mu.Unlock()

	c.scheduler.Enqueue(scheduler.PriorityResume, task)
	return nil
}

// Retry clears the task's history entry (so the Duplicate Checker
// doesn't immediately reject the retry) and re-adds it via the normal
// Add path.
func (c *Controller) Retry(ctx context.Context, id int64) (*models.Task, error) {
	task, ok := c.get(id)
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	if !task.CanRetry() {
		return nil, fmt.Errorf("task %d is %s; only failed tasks can be retried", id, task.Status)
	}

	if task.VideoID != "" {
		if err := c.dup.Forget(ctx, task.VideoID, task.Settings.Format); err != nil {
			return nil, fmt.Errorf("forgetting history: %w", err)
		}
	}

	c.Remove(id)
	return c.Add(ctx, task.Origin, task.Settings)
}

// Remove deletes a task from the in-memory list. The history record for
// its video, if any, is untouched.
func (c *Controller) Remove(id int64) {
	c.mu.Lock()
	delete(c.tasks, id)
	c.mu.Unlock()
}

// DeleteFile removes a Finished task's output file, if present, then
// removes the task itself.
func (c *Controller) DeleteFile(id int64) error {
	task, ok := c.get(id)
	if !ok {
		return models.ErrTaskNotFound
	}

	if task.Output != "" {
		if _, err := os.Stat(task.Output); err != nil {
			if os.IsNotExist(err) {
				c.Remove(id)
				return models.ErrFileNotFound
			}
			return fmt.Errorf("stat output file: %w", err)
		}
		if err := os.Remove(task.Output); err != nil {
			return fmt.Errorf("deleting output file: %w", err)
		}
	}

	c.Remove(id)
	return nil
}

// ToggleGlobal flips the Scheduler's run-gate and, when resuming,
// reenqueues every Paused task that is not individually per-task-paused.
func (c *Controller) ToggleGlobal() {
	if c.scheduler.Gate.Open() {
		// Pre-mark every actively-downloading task Paused before closing
		// the run-gate, so the worker's paused-by-user event never races
		// a status the Controller hasn't set yet.
		c.mu.Lock()
		for _, t := range c.tasks {
			if t.Status == models.StatusDownloading {
				t.Status = models.StatusPaused
			}
		}
		c.mu.Unlock()

		c.scheduler.PauseAll()
		return
	}

	c.scheduler.ResumeAll()

	c.mu.Lock()
	var toResume []*models.Task
	for _, t := range c.tasks {
		if t.Status == models.StatusPaused && !c.scheduler.Paused.IsPaused(t.ID) {
			t.Status = models.StatusWaiting
			t.IsResume = true
			toResume = append(toResume, t)
		}
	}
	c.mu.Unlock()

	for _, t := range toResume {
		c.scheduler.Enqueue(scheduler.PriorityResume, t)
	}
}

// Listen consumes the client-facing event stream, applying the state
// transitions that belong to the Controller rather than the worker:
// Waiting -> Downloading on task_started, metadata snapshots, and the
// terminal Finished/Failed/Paused transition plus the history record on
// download_finished. It blocks until sub's channel closes or ctx is
// done; run it in its own goroutine.
func (c *Controller) Listen(ctx context.Context, sub *events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			c.apply(ctx, ev)
		}
	}
}

func (c *Controller) apply(ctx context.Context, ev events.Event) {
	task, ok := c.get(ev.TaskID)
	if !ok {
		return
	}

	switch ev.Kind {
	case events.KindTaskStarted:
		c.mu.Lock()
		if task.Status == models.StatusWaiting {
			task.Status = models.StatusDownloading
		}
		c.mu.Unlock()

	case events.KindMetadataFetched:
		c.mu.Lock()
		task.Metadata = ev.Metadata
		c.mu.Unlock()

	case events.KindDownloadFinished:
		c.finish(ctx, task, ev)
	}
}

func (c *Controller) finish(ctx context.Context, task *models.Task, ev events.Event) {
	if !ev.OK {
		c.mu.Lock()
		// A cooperative cancel terminates as Paused, never Failed. The
		// pause_all path pre-marks the status, so only confirm it here.
		if ev.Message == "paused" || ev.Message == "shutdown" {
			task.Status = models.StatusPaused
		} else {
			task.Status = models.StatusFailed
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	task.Status = models.StatusFinished
	task.Output = ev.OutputPath
	c.mu.Unlock()

	if task.VideoID == "" {
		return
	}
	meta := task.Metadata.WithDefaults()
	if err := c.history.Add(ctx, task.VideoID, task.Settings.Format, meta.Title, meta.Uploader); err != nil {
		c.logger.Error("failed to record download history",
			"task_id", task.ID, "video_id", task.VideoID, "error", err)
	}
}

// Shutdown persists the full task list then shuts the Scheduler down.
func (c *Controller) Shutdown() error {
	if err := c.taskStore.Save(c.Tasks()); err != nil {
		c.logger.Error("failed to persist tasks at shutdown", "error", err)
		return fmt.Errorf("saving tasks: %w", err)
	}
	c.scheduler.Shutdown()
	return nil
}

// HistoryList returns the History Store entry for a (video id, format)
// pair, if one exists.
func (c *Controller) HistoryList(ctx context.Context, videoID, format string) (*models.HistoryRecord, error) {
	return c.history.Get(ctx, videoID, format)
}

// HistoryPurge removes a History Store entry.
func (c *Controller) HistoryPurge(ctx context.Context, videoID, format string) error {
	return c.history.Remove(ctx, videoID, format)
}
