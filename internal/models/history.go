package models

import "time"

// HistoryRecord is the history store's durable record of a completed
// download, keyed by the composite (video_id, format).
type HistoryRecord struct {
	VideoID            string    `gorm:"primaryKey;column:video_id;type:varchar(64)" json:"video_id"`
	Format             string    `gorm:"primaryKey;column:format;type:varchar(16)" json:"format"`
	Title              string    `gorm:"column:title" json:"title"`
	Uploader           string    `gorm:"column:uploader" json:"uploader"`
	CompletionTimestamp time.Time `gorm:"column:download_date" json:"completion_timestamp"`
}

// TableName overrides GORM's pluralized default.
func (HistoryRecord) TableName() string {
	return "downloads"
}
