package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/models"
	"gorm.io/gorm"
)

// BinaryVersionStore backs the binary manager's version bookkeeping,
// one sqlite row per managed binary.
type BinaryVersionStore struct {
	db *database.DB
}

// NewBinaryVersionStore wraps db. Migrate must be called once before use.
func NewBinaryVersionStore(db *database.DB) *BinaryVersionStore {
	return &BinaryVersionStore{db: db}
}

// Migrate creates the binary_versions table if it does not already exist.
func (s *BinaryVersionStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.BinaryVersion{})
}

// Get returns the recorded version for name, or nil if never installed.
func (s *BinaryVersionStore) Get(ctx context.Context, name models.BinaryName) (*models.BinaryVersion, error) {
	var record models.BinaryVersion
	err := s.db.WithContext(ctx).Where("name = ?", string(name)).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Set upserts the installed version and bumps last_check to now. The
// row id is assigned on first insert by BaseModel's BeforeCreate hook;
// later writes update the existing ULID-keyed row in place.
func (s *BinaryVersionStore) Set(ctx context.Context, name models.BinaryName, version string) error {
	existing, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		record := models.BinaryVersion{
			Name:      string(name),
			Version:   version,
			LastCheck: time.Now(),
		}
		return s.db.WithContext(ctx).Create(&record).Error
	}
	existing.Version = version
	existing.LastCheck = time.Now()
	return s.db.WithContext(ctx).Save(existing).Error
}

// TouchLastCheck updates last_check without changing the recorded
// version, used when an upstream check finds no newer release.
func (s *BinaryVersionStore) TouchLastCheck(ctx context.Context, name models.BinaryName) error {
	existing, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	version := ""
	if existing != nil {
		version = existing.Version
	}
	return s.Set(ctx, name, version)
}
