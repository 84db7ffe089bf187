package models

import (
	"testing"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNextTaskID_Monotonic(t *testing.T) {
	a := NextTaskID()
	b := NextTaskID()
	assert.Greater(t, b, a)
	assert.Positive(t, a)
}

func TestNewTask_DefaultsToWaiting(t *testing.T) {
	settings := config.SettingsConfig{Format: "mp4"}
	task := NewTask("https://www.youtube.com/watch?v=abc123", ClassificationSingleVideo, settings)

	assert.Equal(t, StatusWaiting, task.Status)
	assert.Equal(t, ClassificationSingleVideo, task.Classification)
	assert.False(t, task.IsResume)
	assert.True(t, task.Metadata.IsEmpty())
}

func TestTask_IsActive(t *testing.T) {
	tests := []struct {
		status TaskStatus
		active bool
	}{
		{StatusWaiting, true},
		{StatusDownloading, true},
		{StatusPaused, true},
		{StatusFinished, false},
		{StatusFailed, false},
	}

	for _, tt := range tests {
		task := &Task{Status: tt.status}
		assert.Equal(t, tt.active, task.IsActive(), "status %s", tt.status)
	}
}

func TestTask_CanRetry(t *testing.T) {
	assert.True(t, (&Task{Status: StatusFailed}).CanRetry())
	assert.False(t, (&Task{Status: StatusWaiting}).CanRetry())
	assert.False(t, (&Task{Status: StatusFinished}).CanRetry())
}

func TestMetadata_IsEmpty(t *testing.T) {
	assert.True(t, Metadata{}.IsEmpty())
	assert.False(t, Metadata{Title: "x"}.IsEmpty())
}

func TestMetadata_WithDefaults(t *testing.T) {
	m := Metadata{}.WithDefaults()
	assert.Equal(t, "No Title", m.Title)
	assert.Equal(t, "Unknown", m.Uploader)

	m2 := Metadata{Title: "Real Title", Uploader: "Real Uploader"}.WithDefaults()
	assert.Equal(t, "Real Title", m2.Title)
	assert.Equal(t, "Real Uploader", m2.Uploader)
}
