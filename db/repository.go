package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one persisted device value.
type Entry struct {
	Name      string `gorm:"primaryKey" json:"name"`
	Value     string `json:"value"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable regardless of GORM's pluralization rules.
func (Entry) TableName() string { return "device_entries" }

// KVRepository defines decoupled operations for device value persistence.
// Its method set matches storage.Backend.
type KVRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// gormKVRepo is a GORM-backed implementation of KVRepository.
// Use constructor NewKVRepository to obtain an instance.
type gormKVRepo struct{ db *gorm.DB }

// NewKVRepository creates a KVRepository. Accepts *gorm.DB to avoid global access.
func NewKVRepository(db *gorm.DB) KVRepository { return &gormKVRepo{db: db} }

func (r *gormKVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if r.db == nil {
		return "", false, fmt.Errorf("repository not initialized")
	}
	var entry Entry
	err := r.db.WithContext(ctx).First(&entry, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (r *gormKVRepo) Put(ctx context.Context, key, value string) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	entry := Entry{Name: key, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (r *gormKVRepo) Delete(ctx context.Context, key string) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Delete(&Entry{}, "name = ?", key).Error
}
