package models

import (
	"sync/atomic"

	"github.com/jmylchreest/tvget/internal/config"
)

// TaskStatus is a task's position in its lifecycle state machine.
// Transitions are owned by the Scheduler and Controller only;
// nothing else may assign Status directly.
type TaskStatus string

const (
	StatusWaiting     TaskStatus = "waiting"
	StatusDownloading TaskStatus = "downloading"
	StatusPaused      TaskStatus = "paused"
	StatusFinished    TaskStatus = "finished"
	StatusFailed      TaskStatus = "failed"
)

// Classification is the result of the URL Classifier.
type Classification string

const (
	ClassificationSingleVideo   Classification = "single-video"
	ClassificationPlaylistChild Classification = "playlist-child"
	ClassificationStandalone    Classification = "standalone"
)

// AcceptedMediaExtensions are the file extensions the Worker will accept
// when scanning the download folder for a completed output.
var AcceptedMediaExtensions = []string{".mp4", ".mkv", ".webm", ".mp3", ".m4a", ".wav"}

// Metadata is the per-task metadata snapshot fetched by the Metadata
// Fetcher. It is empty (zero value) until lazily populated by the
// first worker to pick up the task; playlist expansion also leaves it
// empty for the child tasks it creates.
type Metadata struct {
	Title              string `json:"title"`
	Uploader           string `json:"uploader"`
	Duration           int64  `json:"duration_seconds"`
	ThumbnailURL       string `json:"thumbnail_url"`
	VideoID            string `json:"id"`
	WebpageURL         string `json:"webpage_url"`
	EstimatedVideoSize int64  `json:"estimated_video_bytes"`
	EstimatedAudioSize int64  `json:"estimated_audio_bytes"`

	// IsPlaylist marks a playlist-level snapshot: Title/Uploader describe
	// the playlist itself and VideoCount carries its entry count. The
	// per-stream fields above stay zero.
	IsPlaylist bool `json:"is_playlist,omitempty"`
	VideoCount int  `json:"video_count,omitempty"`
}

// IsEmpty reports whether no metadata has been fetched yet.
func (m Metadata) IsEmpty() bool {
	return m == Metadata{}
}

// WithDefaults returns a copy of m with sentinel placeholders
// substituted for any absent fields.
func (m Metadata) WithDefaults() Metadata {
	if m.Title == "" {
		if m.IsPlaylist {
			m.Title = "PlayList"
		} else {
			m.Title = "No Title"
		}
	}
	if m.Uploader == "" {
		m.Uploader = "Unknown"
	}
	return m
}

var nextTaskID int64

// NextTaskID returns a monotonic positive integer unique within this
// process run. It is safe for concurrent use.
func NextTaskID() int64 {
	return atomic.AddInt64(&nextTaskID, 1)
}

// ObserveLoadedTaskIDs advances the process-local id counter past the
// highest id found among tasks loaded from the Task Store, so freshly
// created tasks in this session never collide with ids restored from a
// prior one.
func ObserveLoadedTaskIDs(tasks []*Task) {
	var max int64
	for _, t := range tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	for {
		current := atomic.LoadInt64(&nextTaskID)
		if current >= max {
			return
		}
		if atomic.CompareAndSwapInt64(&nextTaskID, current, max) {
			return
		}
	}
}

// Task is a unit of planned or in-flight work.
type Task struct {
	ID             int64                 `json:"id"`
	Origin         string                `json:"url"`
	Classification Classification        `json:"classification"`
	PlaylistID     string                `json:"playlist_id,omitempty"`
	VideoID        string                `json:"video_id,omitempty"`
	Output         string                `json:"output_path,omitempty"`
	Settings       config.SettingsConfig `json:"settings"`
	Metadata       Metadata              `json:"meta"`
	Status         TaskStatus            `json:"status"`
	IsResume       bool                  `json:"is_resume"`
}

// NewTask constructs a fresh Waiting task with a newly allocated id.
func NewTask(origin string, classification Classification, settings config.SettingsConfig) *Task {
	return &Task{
		ID:             NextTaskID(),
		Origin:         origin,
		Classification: classification,
		Settings:       settings,
		Status:         StatusWaiting,
	}
}

// IsActive reports whether the task occupies a "live" slot for the
// purposes of the duplicate checker: Waiting, Downloading, or
// Paused all count; Finished and Failed do not.
func (t *Task) IsActive() bool {
	switch t.Status {
	case StatusWaiting, StatusDownloading, StatusPaused:
		return true
	default:
		return false
	}
}

// CanRetry reports whether the task is eligible for retry, which is
// defined only for Failed tasks.
func (t *Task) CanRetry() bool {
	return t.Status == StatusFailed
}
