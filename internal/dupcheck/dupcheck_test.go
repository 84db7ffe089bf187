package dupcheck

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChecker(t *testing.T) *Checker {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}
	db, err := database.New(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	history := store.NewHistoryStore(db)
	require.NoError(t, history.Migrate(context.Background()))

	return New(history)
}

func TestCheck_NoConflict(t *testing.T) {
	c := setupChecker(t)

	conflict, msg, task, err := c.Check(context.Background(), "vid1", 1, nil, "mp4")
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Empty(t, msg)
	assert.Nil(t, task)
}

func TestCheck_EmptyVideoIDBypassesDuplicateChecking(t *testing.T) {
	c := setupChecker(t)
	ctx := context.Background()
	require.NoError(t, c.history.Add(ctx, "", "mp4", "No Title", "Unknown"))

	live := []*models.Task{{ID: 2, VideoID: "", Status: models.StatusDownloading, Settings: config.SettingsConfig{Format: "mp4"}}}

	conflict, msg, task, err := c.Check(ctx, "", 1, live, "mp4")
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Empty(t, msg)
	assert.Nil(t, task)
}

func TestCheck_ConflictsWithHistory(t *testing.T) {
	c := setupChecker(t)
	ctx := context.Background()

	require.NoError(t, c.history.Add(ctx, "vid1", "mp4", "Title", "Uploader"))

	conflict, msg, task, err := c.Check(ctx, "vid1", 1, nil, "mp4")
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.NotEmpty(t, msg)
	assert.Nil(t, task)
}

func TestCheck_DifferentFormatDoesNotConflictWithHistory(t *testing.T) {
	c := setupChecker(t)
	ctx := context.Background()

	require.NoError(t, c.history.Add(ctx, "vid1", "mp4", "Title", "Uploader"))

	conflict, _, _, err := c.Check(ctx, "vid1", 1, nil, "mkv")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestCheck_ConflictsWithLiveActiveTask(t *testing.T) {
	c := setupChecker(t)

	other := models.NewTask("https://www.youtube.com/watch?v=vid1", models.ClassificationSingleVideo, config.SettingsConfig{Format: "mp4"})
	other.VideoID = "vid1"
	other.Status = models.StatusDownloading

	conflict, msg, task, err := c.Check(context.Background(), "vid1", 999, []*models.Task{other}, "mp4")
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.NotEmpty(t, msg)
	require.NotNil(t, task)
	assert.Equal(t, other.ID, task.ID)
}

func TestCheck_IgnoresRequesterItself(t *testing.T) {
	c := setupChecker(t)

	self := models.NewTask("https://www.youtube.com/watch?v=vid1", models.ClassificationSingleVideo, config.SettingsConfig{Format: "mp4"})
	self.VideoID = "vid1"
	self.Status = models.StatusWaiting

	conflict, _, _, err := c.Check(context.Background(), "vid1", self.ID, []*models.Task{self}, "mp4")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestCheck_IgnoresInactiveLiveTask(t *testing.T) {
	c := setupChecker(t)

	finished := models.NewTask("https://www.youtube.com/watch?v=vid1", models.ClassificationSingleVideo, config.SettingsConfig{Format: "mp4"})
	finished.VideoID = "vid1"
	finished.Status = models.StatusFinished

	conflict, _, _, err := c.Check(context.Background(), "vid1", 999, []*models.Task{finished}, "mp4")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestForget_RemovesHistoryEntry(t *testing.T) {
	c := setupChecker(t)
	ctx := context.Background()

	require.NoError(t, c.history.Add(ctx, "vid1", "mp4", "Title", "Uploader"))
	require.NoError(t, c.Forget(ctx, "vid1", "mp4"))

	conflict, _, _, err := c.Check(ctx, "vid1", 1, nil, "mp4")
	require.NoError(t, err)
	assert.False(t, conflict)
}
