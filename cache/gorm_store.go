package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"v4vfm/model"
)

// GormStore 使用 resolution_cache 表作为缓存存储
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(ctx context.Context, key string) (*Entry, error) {
	var row model.CacheEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	entry := entryFromRow(row)
	return &entry, nil
}

// Save upserts the row, replacing any expired entry under the same key.
func (s *GormStore) Save(ctx context.Context, entry Entry) error {
	row := rowFromEntry(entry)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "stored_at", "ttl_ms"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&model.CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// rowFromEntry stores the TTL in milliseconds, rounding partial milliseconds up
// so a positive TTL never becomes zero.
func rowFromEntry(entry Entry) model.CacheEntry {
	ms := int64(entry.TTL / time.Millisecond)
	if entry.TTL%time.Millisecond > 0 {
		ms++
	}
	return model.CacheEntry{
		Key:       entry.Key,
		Payload:   entry.Payload,
		StoredAt:  entry.StoredAt,
		TTLMillis: ms,
	}
}

func entryFromRow(row model.CacheEntry) Entry {
	return Entry{
		Key:      row.Key,
		Payload:  row.Payload,
		StoredAt: row.StoredAt,
		TTL:      time.Duration(row.TTLMillis) * time.Millisecond,
	}
}
