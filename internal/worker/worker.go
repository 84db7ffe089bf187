// Package worker implements the Worker: the long-running execution
// context that pulls one task at a time off the Scheduler's queue and
// drives it through the downloader wrapper.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

// Downloader is the subset of *ytdlp.Wrapper the Worker depends on.
type Downloader interface {
	Download(ctx context.Context, url string, opts ytdlp.Options, progress ytdlp.ProgressCallback) (bool, string, error)
}

// MetadataFetcher is the subset of *metadata.Fetcher the Worker depends on.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (models.Metadata, error)
}

// Queue is pulled from by a Worker's run loop. Pull blocks up to a
// short implementation-defined bound and returns ok=false on timeout,
// which the caller treats as "loop again".
type Queue interface {
	Pull(ctx context.Context) (entry Entry, ok bool)
}

// Entry is one item dispatched from the Scheduler's priority queue.
// Shutdown entries carry no Task and signal the worker to exit.
type Entry struct {
	Task     *models.Task
	Shutdown bool
}

// Gate blocks until the Scheduler's run-gate is open, or ctx is done.
// Open reports the gate's current state without blocking, used by the
// in-flight progress callback to detect a pause_all mid-download.
type Gate interface {
	Wait(ctx context.Context) error
	Open() bool
}

// PausedSet reports whether a specific task id is currently in the
// Scheduler's per-task paused set.
type PausedSet interface {
	IsPaused(taskID int64) bool
}

// StopSignal reports whether the Scheduler's sticky stop-event has been
// set.
type StopSignal interface {
	Stopped() bool
}

// Worker owns one long-running execution context.
type Worker struct {
	ID         int
	Queue      Queue
	Gate       Gate
	Paused     PausedSet
	Stop       StopSignal
	Downloader Downloader
	Metadata   MetadataFetcher
	Sink       events.Sink
	Logger     *slog.Logger

	retire bool
}

// New constructs a Worker. logger may be nil, in which case
// slog.Default() is used.
func New(id int, queue Queue, gate Gate, paused PausedSet, stop StopSignal, downloader Downloader, metadataFetcher MetadataFetcher, sink events.Sink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID: id, Queue: queue, Gate: gate, Paused: paused, Stop: stop,
		Downloader: downloader, Metadata: metadataFetcher, Sink: sink, Logger: logger,
	}
}

// Retire marks the worker for graceful retirement: it finishes any task
// currently in flight and exits instead of looping again. Used by the
// Scheduler when the pool shrinks.
func (w *Worker) Retire() {
	w.retire = true
}

// Run is the worker's blocking execution loop. It returns when the
// stop-event is set, a shutdown sentinel is dispatched, ctx is done, or
// the worker has been retired and just finished its current task.
func (w *Worker) Run(ctx context.Context) {
	for {
		if w.Stop.Stopped() {
			return
		}
		if err := w.Gate.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		entry, ok := w.Queue.Pull(ctx)
		if !ok {
			continue
		}
		if entry.Shutdown {
			return
		}
		if w.Paused.IsPaused(entry.Task.ID) {
			continue
		}

		w.process(ctx, entry.Task)

		if w.retire {
			return
		}
	}
}

// process drives a single task from metadata fetch through completion.
func (w *Worker) process(ctx context.Context, task *models.Task) {
	w.Sink.TaskStarted(task.ID)

	// The task itself is mutated by the Controller applying emitted
	// events, not by the worker; a local copy of the metadata keeps this
	// side race-free.
	meta := task.Metadata
	if meta.IsEmpty() {
		fetched, err := w.Metadata.Fetch(ctx, task.Origin)
		if err != nil {
			w.Logger.Warn("metadata fetch failed, proceeding with empty metadata",
				"task_id", task.ID, "url", task.Origin, "error", err)
		} else {
			meta = fetched
			w.Sink.MetadataFetched(task.ID, meta)
		}
	}

	tracker := newBucketTracker(meta.EstimatedVideoSize, meta.EstimatedAudioSize)

	opts := buildOptions(task)

	progressCallback := func(ev ytdlp.ProgressEvent) error {
		if w.Stop.Stopped() {
			return models.ErrShutdownRequested
		}
		if !w.Gate.Open() || w.Paused.IsPaused(task.ID) {
			return models.ErrPausedByUser
		}

		record, ok := tracker.handle(ev)
		if ok {
			w.Sink.ProgressUpdated(task.ID, record)
		}
		return nil
	}

	ok, message, err := w.Downloader.Download(ctx, task.Origin, opts, progressCallback)

	if errors.Is(err, models.ErrPausedByUser) {
		w.Sink.DownloadFinished(task.ID, false, "paused", "")
		return
	}
	if errors.Is(err, models.ErrShutdownRequested) {
		w.Sink.DownloadFinished(task.ID, false, "shutdown", "")
		return
	}
	if err != nil {
		w.Sink.DownloadFinished(task.ID, false, err.Error(), "")
		return
	}

	outputPath := ""
	if ok {
		outputPath = tracker.lastFilename
		if outputPath == "" || !fileExists(outputPath) {
			outputPath = locateOutputFile(task.Settings.DownloadFolder, meta.Title)
		}
	}

	w.Sink.DownloadFinished(task.ID, ok, message, outputPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// locateOutputFile scans downloadFolder for a regular file whose stem
// contains the NFC-normalized, Windows-reserved-character-substituted
// title and whose extension is in the accepted media set.
func locateOutputFile(downloadFolder, title string) string {
	if title == "" || downloadFolder == "" {
		return ""
	}

	entries, err := os.ReadDir(downloadFolder)
	if err != nil {
		return ""
	}

	safeTitle := strings.ToLower(sanitizeTitle(title))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isAcceptedExtension(ext) {
			continue
		}
		stem := norm.NFC.String(strings.TrimSuffix(name, filepath.Ext(name)))
		if strings.Contains(strings.ToLower(stem), safeTitle) {
			return filepath.Join(downloadFolder, name)
		}
	}
	return ""
}

// windowsReservedReplacements maps each Windows-reserved filename
// character to its full-width substitution.
var windowsReservedReplacements = map[rune]rune{
	'<': '＜', '>': '＞', ':': '：', '"': '＂',
	'/': '／', '\\': '＼', '|': '｜', '?': '？', '*': '＊',
}

func sanitizeTitle(title string) string {
	normalized := norm.NFC.String(title)
	var b strings.Builder
	for _, r := range normalized {
		if replacement, ok := windowsReservedReplacements[r]; ok {
			b.WriteRune(replacement)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isAcceptedExtension(ext string) bool {
	for _, accepted := range models.AcceptedMediaExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// buildOptions translates a Task's settings snapshot into the
// downloader wrapper's Options record.
func buildOptions(task *models.Task) ytdlp.Options {
	settings := task.Settings

	opts := ytdlp.Options{
		OutputTemplate: filepath.Join(settings.DownloadFolder, "%(title)s.%(ext)s"),
		Format:         formatSelector(settings.Format, settings.VideoQuality, settings.AudioQuality),
		NoPlaylist:     true,
		Overwrites:     !task.IsResume,
		IsResume:       task.IsResume,
	}

	// ConcurrentFragmentDownloads is ignored entirely unless
	// UseAcceleration is set.
	if settings.UseAcceleration {
		opts.ConcurrentFragmentDownloads = settings.ConcurrentFragmentDownloads
		if opts.ConcurrentFragmentDownloads <= 0 {
			opts.ConcurrentFragmentDownloads = 6
		}
	}

	if isAudioOnlyFormat(settings.Format) {
		opts.ExtractAudio = true
		opts.AudioFormat = settings.Format
	} else {
		opts.MergeOutputFormat = settings.Format
	}

	if settings.NormalizeAudio {
		opts.PostprocessorArgs = map[string][]string{
			"ffmpeg": {"-af", "loudnorm=I=-14:TP=-1"},
		}
	}

	return opts
}

var audioOnlyFormats = map[string]bool{"mp3": true, "m4a": true, "wav": true}

func isAudioOnlyFormat(format string) bool {
	return audioOnlyFormats[format]
}

// formatSelector builds a yt-dlp -f selector string from the settings'
// quality hints. Video-only qualities are ignored for audio-only formats.
func formatSelector(format, videoQuality, audioQuality string) string {
	if isAudioOnlyFormat(format) {
		return "bestaudio/best"
	}

	videoSel := "bestvideo"
	switch videoQuality {
	case "1080p":
		videoSel = "bestvideo[height<=1080]"
	case "720p":
		videoSel = "bestvideo[height<=720]"
	case "480p":
		videoSel = "bestvideo[height<=480]"
	case "360p":
		videoSel = "bestvideo[height<=360]"
	case "worst":
		videoSel = "worstvideo"
	case "best", "":
		videoSel = "bestvideo"
	}

	audioSel := "bestaudio"
	if audioQuality == "worst" {
		audioSel = "worstaudio"
	}

	return fmt.Sprintf("%s+%s/best", videoSel, audioSel)
}
