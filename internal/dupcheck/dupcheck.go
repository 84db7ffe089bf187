// Package dupcheck implements the Duplicate Checker: given a
// candidate download, decide whether it conflicts with history or with
// another live task, so the Controller can gate on user consent before
// re-enqueueing.
package dupcheck

import (
	"context"
	"fmt"

	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/store"
)

// Checker consults both the durable History Store and the live task list.
type Checker struct {
	history *store.HistoryStore
}

// New wraps a History Store.
func New(history *store.HistoryStore) *Checker {
	return &Checker{history: history}
}

// Check reports duplicates: given a candidate videoID, the requesting
// task's id (excluded from the live scan), the current task list, and
// the target format, it reports whether a conflict exists, a
// human-readable explanation, and the conflicting task if the conflict
// came from the live list (nil if it came from history only).
func (c *Checker) Check(ctx context.Context, videoID string, requesterTaskID int64, tasks []*models.Task, format string) (bool, string, *models.Task, error) {
	// A task with no extracted video id bypasses duplicate checking
	// entirely.
	if videoID == "" {
		return false, "", nil, nil
	}

	for _, t := range tasks {
		if t.ID == requesterTaskID {
			continue
		}
		if t.VideoID != videoID {
			continue
		}
		if !t.IsActive() {
			continue
		}
		if t.Settings.Format != format {
			continue
		}
		return true, fmt.Sprintf("video %s is already queued as task %d in format %s", videoID, t.ID, format), t, nil
	}

	downloaded, err := c.history.IsDownloaded(ctx, videoID, format)
	if err != nil {
		return false, "", nil, err
	}
	if downloaded {
		return true, fmt.Sprintf("video %s was already downloaded in format %s", videoID, format), nil, nil
	}

	return false, "", nil, nil
}

// Forget removes the history entry for (videoID, format), the step the
// Controller performs after the user consents to a duplicate re-download
// so the same action does not trip the check again.
func (c *Checker) Forget(ctx context.Context, videoID, format string) error {
	return c.history.Remove(ctx, videoID, format)
}
