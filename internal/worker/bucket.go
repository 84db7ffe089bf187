package worker

import (
	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

// bucket tracks one stream's (video or audio) download progress. Totals
// are preseeded from the task's metadata estimate and refined once the
// downloader reports a real total for that stream.
type bucket struct {
	filename   string
	downloaded int64
	total      int64
}

// bucketTracker recombines the per-fragment progress stream into a
// single per-task figure: it re-derives a single cumulative
// percentage across (up to) two streams dispatched sequentially by the
// downloader within one process run, assigning each newly observed
// filename to the first stream slot that is still empty.
type bucketTracker struct {
	video, audio bucket
	lastFilename string
}

// newBucketTracker preseeds both stream totals from the Metadata
// Fetcher's byte-size estimates.
func newBucketTracker(videoEstimate, audioEstimate int64) *bucketTracker {
	return &bucketTracker{
		video: bucket{total: videoEstimate},
		audio: bucket{total: audioEstimate},
	}
}

// handle normalizes one raw wrapper event into a client-facing progress
// record. ok is false for events that produce no client-visible update
// (e.g. a "finished" event for a stream that is not the last one).
func (t *bucketTracker) handle(ev ytdlp.ProgressEvent) (events.ProgressRecord, bool) {
	switch ev.Status {
	case "downloading":
		return t.handleDownloading(ev), true
	case "postprocessing":
		return t.handlePostprocessing(), true
	case "finished":
		return t.handleFinished(ev)
	default:
		return events.ProgressRecord{}, false
	}
}

func (t *bucketTracker) bucketFor(filename string) *bucket {
	switch {
	case filename != "" && filename == t.video.filename:
		return &t.video
	case filename != "" && filename == t.audio.filename:
		return &t.audio
	case t.video.filename == "":
		t.video.filename = filename
		return &t.video
	case t.audio.filename == "":
		t.audio.filename = filename
		return &t.audio
	default:
		// Both slots taken by different filenames than this one; fold
		// into the video slot rather than drop the update.
		return &t.video
	}
}

func (t *bucketTracker) handleDownloading(ev ytdlp.ProgressEvent) events.ProgressRecord {
	t.lastFilename = ev.Filename

	target := t.bucketFor(ev.Filename)
	target.downloaded = ev.DownloadedBytes
	if ev.TotalBytes > target.total {
		target.total = ev.TotalBytes
	}

	cumulativeDownloaded := t.video.downloaded
	if t.audio.filename != "" {
		cumulativeDownloaded += t.audio.downloaded
	}

	cumulativeTotal := t.video.total + t.audio.total
	if ev.TotalBytes > cumulativeTotal {
		cumulativeTotal = ev.TotalBytes
	}
	if cumulativeTotal <= 0 {
		cumulativeTotal = 1
	}

	return events.ProgressRecord{
		Status:          "downloading",
		DownloadedBytes: cumulativeDownloaded,
		TotalBytes:      cumulativeTotal,
		Percent:         clampPercent(float64(cumulativeDownloaded) * 100 / float64(cumulativeTotal)),
		SpeedBytesPerS:  ev.SpeedBytesPerS,
		ETASeconds:      ev.ETASeconds,
	}
}

func (t *bucketTracker) handlePostprocessing() events.ProgressRecord {
	total := t.video.total + t.audio.total
	return events.ProgressRecord{
		Status:          "postprocessing",
		DownloadedBytes: total,
		TotalBytes:      total,
		Percent:         100,
	}
}

// handleFinished reports 100% only when the finishing fragment is the
// last one by plan: the audio stream if a second stream was ever
// assigned, otherwise the (sole) video stream.
func (t *bucketTracker) handleFinished(ev ytdlp.ProgressEvent) (events.ProgressRecord, bool) {
	isLast := false
	switch {
	case t.audio.filename != "" && ev.Filename == t.audio.filename:
		isLast = true
	case t.audio.filename == "" && ev.Filename == t.video.filename:
		isLast = true
	}
	if !isLast {
		return events.ProgressRecord{}, false
	}

	total := t.video.total + t.audio.total
	if total <= 0 {
		total = 1
	}
	return events.ProgressRecord{
		Status:          "finished",
		DownloadedBytes: total,
		TotalBytes:      total,
		Percent:         100,
	}, true
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
