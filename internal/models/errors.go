package models

import "errors"

// Sentinel errors returned by the download pipeline. Callers must compare
// with errors.Is rather than matching on message text, since the worker and
// the downloader wrapper wrap these as they propagate.
var (
	// ErrPausedByUser is returned by the downloader wrapper's download
	// operation when the progress callback observed a cooperative
	// cancellation (the global run-gate closed or the task's per-task
	// paused flag was set). It must never be turned into a Failed
	// transition; the worker maps it to Paused.
	ErrPausedByUser = errors.New("paused by user")

	// ErrDuplicateDownload is surfaced by the Controller when the
	// Duplicate Checker finds an existing history entry or an active
	// task for the same (video_id, format) pair and the user has not
	// yet consented to proceed.
	ErrDuplicateDownload = errors.New("duplicate download")

	// ErrTaskNotFound is returned when an intent references a task id
	// that is absent from the in-memory task list.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidURL is returned when a URL cannot be parsed or carries
	// no recognizable video or playlist component. Invalid URLs are
	// reported and never enqueued.
	ErrInvalidURL = errors.New("invalid url")

	// ErrAmbiguousURL is returned by the Controller's add(url) intent
	// when a URL carries both a video and a list parameter and the
	// caller has not indicated a preference.
	ErrAmbiguousURL = errors.New("url is ambiguous between single video and playlist")

	// ErrBinaryMissing names the case of a managed binary that has not
	// been installed yet; YtdlpPath/FfmpegPath report that case with a
	// false result rather than with this error.
	ErrBinaryMissing = errors.New("required binary is not present")

	// ErrExtractInfoTimeout is returned by extract_info when the
	// downloader does not produce output within the configured deadline.
	ErrExtractInfoTimeout = errors.New("extract_info timed out")

	// ErrFileNotFound is reported to the user by file-scoped intents
	// (e.g. delete_file) when a task's recorded output path no longer
	// exists on disk; an empty output path is not an error.
	ErrFileNotFound = errors.New("output file not found")

	// ErrShutdownRequested is returned by a worker's progress callback
	// when the Scheduler's stop-event has been set, distinct from
	// ErrPausedByUser: the exiting worker abandons the task and reports
	// it with the message "shutdown", which the Controller records as
	// Paused rather than Failed.
	ErrShutdownRequested = errors.New("shutdown requested")
)
