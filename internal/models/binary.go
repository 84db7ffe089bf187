package models

import "time"

// BinaryName identifies one of the two externally-managed executables the
// Binary Manager keeps current.
type BinaryName string

const (
	BinaryDownloader BinaryName = "downloader"
	BinaryMuxer      BinaryName = "muxer"
)

// BinaryVersion tracks an installed external binary in sqlite, one row
// per BinaryName, holding the locally installed version string and the
// last time an upstream check was made. The row itself is keyed by the
// ULID-backed BaseModel; Name is a unique natural key for lookups.
type BinaryVersion struct {
	BaseModel
	Name      string    `gorm:"uniqueIndex;column:name;type:varchar(16)" json:"name"`
	Version   string    `gorm:"column:version" json:"version"`
	LastCheck time.Time `gorm:"column:last_check" json:"last_check"`
}

// TableName keeps the table name stable and explicit.
func (BinaryVersion) TableName() string {
	return "binary_versions"
}
