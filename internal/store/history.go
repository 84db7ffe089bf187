// Package store implements the durable, gorm-backed halves of the
// persistence layer: the History Store and the Binary Manager's
// version bookkeeping table. Both share the one embedded sqlite
// connection the module opens at startup.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/models"
	"gorm.io/gorm"
)

// HistoryStore is the durable key-value store keyed by (video_id,
// format). All operations tolerate concurrent access from
// multiple workers and the Controller; writes go through gorm's default
// auto-commit so each call is immediately flushed.
type HistoryStore struct {
	db *database.DB
}

// NewHistoryStore wraps db. Migrate must be called once before use.
func NewHistoryStore(db *database.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Migrate creates the downloads table if it does not already exist.
func (s *HistoryStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.HistoryRecord{})
}

// IsDownloaded reports whether (videoID, format) has a history record.
func (s *HistoryStore) IsDownloaded(ctx context.Context, videoID, format string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.HistoryRecord{}).
		Where("video_id = ? AND format = ?", videoID, format).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsDownloadedAnyFormat reports whether videoID has been downloaded in
// any format at all. It drives the duplicate checker's format-agnostic
// "you already have this video" prompt.
func (s *HistoryStore) IsDownloadedAnyFormat(ctx context.Context, videoID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.HistoryRecord{}).
		Where("video_id = ?", videoID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Add records a completed download. It upserts on the composite primary
// key so re-adding the same (videoID, format) after a consent-driven
// purge+retry does not conflict.
func (s *HistoryStore) Add(ctx context.Context, videoID, format, title, uploader string) error {
	record := models.HistoryRecord{
		VideoID:             videoID,
		Format:              format,
		Title:               title,
		Uploader:            uploader,
		CompletionTimestamp: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&record).Error
}

// Remove deletes the (videoID, format) record, if any. Removing an
// absent record is not an error; this is the "purge before re-add" step
// the Controller performs on duplicate-check consent.
func (s *HistoryStore) Remove(ctx context.Context, videoID, format string) error {
	err := s.db.WithContext(ctx).
		Where("video_id = ? AND format = ?", videoID, format).
		Delete(&models.HistoryRecord{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// Get returns the history record for (videoID, format), or nil if absent.
func (s *HistoryStore) Get(ctx context.Context, videoID, format string) (*models.HistoryRecord, error) {
	var record models.HistoryRecord
	err := s.db.WithContext(ctx).
		Where("video_id = ? AND format = ?", videoID, format).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
