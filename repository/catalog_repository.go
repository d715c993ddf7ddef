package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"v4vfm/model"
)

// CatalogRepository 曲目目录数据访问接口
type CatalogRepository interface {
	// GetTrackByGUID returns (nil, nil) when no track has the guid.
	GetTrackByGUID(ctx context.Context, guid string) (*model.CatalogTrack, error)
	// GetTrackInFeed matches guid within one feed; (nil, nil) when absent.
	GetTrackInFeed(ctx context.Context, feedGUID, guid string) (*model.CatalogTrack, error)
	GetFeedByGUID(ctx context.Context, guid string) (*model.CatalogFeed, error)
	UpsertFeed(ctx context.Context, feed *model.CatalogFeed) error
	UpsertTrack(ctx context.Context, track *model.CatalogTrack) error
	ListTracksByFeed(ctx context.Context, feedGUID string) ([]*model.CatalogTrack, error)
}

// gormCatalogRepository GORM 实现
type gormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository 创建 GORM 目录仓库
func NewGormCatalogRepository(db *gorm.DB) CatalogRepository {
	return &gormCatalogRepository{db: db}
}

// GetTrackByGUID 根据 guid 精确查询曲目
func (r *gormCatalogRepository) GetTrackByGUID(ctx context.Context, guid string) (*model.CatalogTrack, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil, nil
	}
	var track model.CatalogTrack
	err := r.db.WithContext(ctx).Where("guid = ?", guid).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// GetFeedByGUID 根据 podcast:guid 查询 feed
func (r *gormCatalogRepository) GetFeedByGUID(ctx context.Context, guid string) (*model.CatalogFeed, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil, nil
	}
	var feed model.CatalogFeed
	err := r.db.WithContext(ctx).Where("guid = ?", guid).First(&feed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &feed, nil
}

// GetTrackInFeed 根据 feed guid + 曲目 guid 查询
func (r *gormCatalogRepository) GetTrackInFeed(ctx context.Context, feedGUID, guid string) (*model.CatalogTrack, error) {
	feedGUID, guid = strings.TrimSpace(feedGUID), strings.TrimSpace(guid)
	if feedGUID == "" || guid == "" {
		return nil, nil
	}
	var track model.CatalogTrack
	err := r.db.WithContext(ctx).Where("guid = ? AND feed_guid = ?", guid, feedGUID).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// UpsertFeed 按 guid 插入或更新 feed
func (r *gormCatalogRepository) UpsertFeed(ctx context.Context, feed *model.CatalogFeed) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guid"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "title", "artist", "image", "value_json", "updated_at"}),
	}).Create(feed).Error
}

// UpsertTrack 保存曲目，同一 feed 下 guid 相同则更新
func (r *gormCatalogRepository) UpsertTrack(ctx context.Context, track *model.CatalogTrack) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CatalogTrack
		err := tx.Where("guid = ? AND feed_guid = ?", track.GUID, track.FeedGUID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			track.ID = existing.ID
			track.CreatedAt = existing.CreatedAt
		}
		return tx.Save(track).Error
	})
}

// ListTracksByFeed 列出 feed 下的全部曲目
func (r *gormCatalogRepository) ListTracksByFeed(ctx context.Context, feedGUID string) ([]*model.CatalogTrack, error) {
	var tracks []*model.CatalogTrack
	err := r.db.WithContext(ctx).
		Where("feed_guid = ?", feedGUID).
		Order("id ASC").
		Find(&tracks).Error
	return tracks, err
}
