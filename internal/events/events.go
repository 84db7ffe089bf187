// Package events implements the client-facing event stream:
// task_started, metadata_fetched, progress_updated, and
// download_finished.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/tvget/internal/models"
)

// Kind identifies one of the four client-facing event types.
type Kind string

const (
	KindTaskStarted      Kind = "task_started"
	KindMetadataFetched  Kind = "metadata_fetched"
	KindProgressUpdated  Kind = "progress_updated"
	KindDownloadFinished Kind = "download_finished"
)

// ProgressRecord is the normalized progress shape carried by
// progress_updated, independent of the downloader wrapper's own
// ProgressEvent type so the event boundary does not leak ytdlp internals.
type ProgressRecord struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	Percent         float64
	SpeedBytesPerS  int64
	ETASeconds      int
}

// Event is one item on the client-facing stream. Only the field relevant
// to Kind is populated.
type Event struct {
	Kind      Kind
	TaskID    int64
	Metadata  models.Metadata
	Progress  ProgressRecord
	OK        bool
	Message   string
	OutputPath string
	Timestamp time.Time
}

// Sink is what Workers and the Playlist Expander emit through; Bus is
// the implementation kept live in-process (the Scheduler holds one and
// hands it to its workers), while tests use recording fakes.
type Sink interface {
	TaskStarted(taskID int64)
	MetadataFetched(taskID int64, meta models.Metadata)
	ProgressUpdated(taskID int64, progress ProgressRecord)
	DownloadFinished(taskID int64, ok bool, message, outputPath string)
}

// Subscriber is a client's view onto the event stream.
type Subscriber struct {
	id     string
	Events chan Event
}

// Bus fans a single logical event stream out to any number of
// subscribers (e.g. the Controller's Listen loop). It
// implements Sink directly so the Scheduler can hold one as its emitter.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber with a buffered channel; callers
// must Unsubscribe when done to avoid leaking the channel.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		id:     uuid.New().String(),
		Events: make(chan Event, 100),
	}
	b.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub.id]; ok {
		close(sub.Events)
		delete(b.subscribers, sub.id)
	}
}

func (b *Bus) broadcast(ev Event) {
	ev.Timestamp = time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()

	terminal := ev.Kind == KindDownloadFinished

	for _, sub := range b.subscribers {
		if terminal {
			select {
			case sub.Events <- ev:
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		select {
		case sub.Events <- ev:
		default:
		}
	}
}

// TaskStarted implements Sink.
func (b *Bus) TaskStarted(taskID int64) {
	b.broadcast(Event{Kind: KindTaskStarted, TaskID: taskID})
}

// MetadataFetched implements Sink.
func (b *Bus) MetadataFetched(taskID int64, meta models.Metadata) {
	b.broadcast(Event{Kind: KindMetadataFetched, TaskID: taskID, Metadata: meta})
}

// ProgressUpdated implements Sink.
func (b *Bus) ProgressUpdated(taskID int64, progress ProgressRecord) {
	b.broadcast(Event{Kind: KindProgressUpdated, TaskID: taskID, Progress: progress})
}

// DownloadFinished implements Sink.
func (b *Bus) DownloadFinished(taskID int64, ok bool, message, outputPath string) {
	b.broadcast(Event{
		Kind:       KindDownloadFinished,
		TaskID:     taskID,
		OK:         ok,
		Message:    message,
		OutputPath: outputPath,
	})
}
