// Package taskstore implements the Task Store: the durable, ordered
// record of every task the Controller knows about, persisted as a single
// JSON file inside the module's sandboxed data directory.
package taskstore

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/storage"
)

const tasksFile = "tasks.json"

// Store persists the ordered task list across restarts.
type Store struct {
	sandbox *storage.Sandbox
}

// New wraps sandbox. The sandbox's base directory is created if absent.
func New(sandbox *storage.Sandbox) *Store {
	return &Store{sandbox: sandbox}
}

// Save serializes tasks in order, normalizing any task currently
// Downloading or Waiting to Paused: the next session must not race
// back into downloading without the user re-acknowledging it.
// The caller's in-memory tasks are not mutated.
func (s *Store) Save(tasks []*models.Task) error {
	snapshot := make([]models.Task, len(tasks))
	for i, t := range tasks {
		snapshot[i] = *t
		if snapshot[i].Status == models.StatusDownloading || snapshot[i].Status == models.StatusWaiting {
			snapshot[i].Status = models.StatusPaused
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling task list: %w", err)
	}

	return s.sandbox.AtomicWrite(tasksFile, data)
}

// Load returns the recorded task list in its saved order. A missing file
// is not an error: it returns an empty, non-nil slice, matching a fresh
// install with no prior session. Loaded ids are folded into the
// process-local id counter so newly created tasks never collide with
// restored ones.
func (s *Store) Load() ([]*models.Task, error) {
	exists, err := s.sandbox.Exists(tasksFile)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []*models.Task{}, nil
	}

	data, err := s.sandbox.ReadFile(tasksFile)
	if err != nil {
		return nil, err
	}

	var snapshot []models.Task
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling task list: %w", err)
	}

	tasks := make([]*models.Task, len(snapshot))
	for i := range snapshot {
		t := snapshot[i]
		tasks[i] = &t
	}

	models.ObserveLoadedTaskIDs(tasks)

	return tasks, nil
}

// SaveEmpty discards any persisted task list, used when the Controller
// decides a clean slate is warranted (e.g. a corrupt file was detected
// upstream and the operator chose to discard it).
func (s *Store) SaveEmpty() error {
	return s.Save(nil)
}
