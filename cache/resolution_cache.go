package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"v4vfm/logger"
	"v4vfm/model"
)

const (
	// ItemKeyFormat 单曲解析结果的缓存键
	ItemKeyFormat = "item:%s:%s"
	// PlaylistKeyFormat 整个歌单解析结果的缓存键
	PlaylistKeyFormat = "playlist:%s"

	DefaultItemTTL     = 45 * time.Minute
	DefaultPlaylistTTL = 30 * time.Minute
)

// ItemKey returns the cache key of a single remote item resolution.
func ItemKey(feedGUID, itemGUID string) string {
	return fmt.Sprintf(ItemKeyFormat, feedGUID, itemGUID)
}

// ResolutionCache is a namespaced TTL cache over a Store. Store failures are
// logged and reported as misses; the cache never fails a resolution.
type ResolutionCache struct {
	store       Store
	itemTTL     time.Duration
	playlistTTL time.Duration
	now         func() time.Time
}

// Option configures a ResolutionCache.
type Option func(*ResolutionCache)

// WithTTL overrides the per-namespace default TTLs. Non-positive values keep the default.
func WithTTL(item, playlist time.Duration) Option {
	return func(c *ResolutionCache) {
		if item > 0 {
			c.itemTTL = item
		}
		if playlist > 0 {
			c.playlistTTL = playlist
		}
	}
}

// WithClock injects the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *ResolutionCache) {
		c.now = now
	}
}

func NewResolutionCache(store Store, opts ...Option) *ResolutionCache {
	c := &ResolutionCache{
		store:       store,
		itemTTL:     DefaultItemTTL,
		playlistTTL: DefaultPlaylistTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResolutionCache) ItemTTL() time.Duration     { return c.itemTTL }
func (c *ResolutionCache) PlaylistTTL() time.Duration { return c.playlistTTL }

// Get returns the payload stored under key, or false when it is absent or expired.
func (c *ResolutionCache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, err := c.store.Load(ctx, key)
	if err != nil {
		logger.Warn("[ResolutionCache] 读取缓存失败", logger.String("key", key), logger.ErrorField(err))
		return nil, false
	}
	if e == nil || e.Expired(c.now()) {
		return nil, false
	}
	return e.Payload, true
}

// Set stores payload under key for ttl, replacing whatever was there.
func (c *ResolutionCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	err := c.store.Save(ctx, Entry{Key: key, Payload: payload, StoredAt: c.now(), TTL: ttl})
	if err != nil {
		logger.Warn("[ResolutionCache] 写入缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// Invalidate removes key.
func (c *ResolutionCache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		logger.Warn("[ResolutionCache] 删除缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// GetTrack reads a cached track resolution. Entries without an audio URL are misses.
func (c *ResolutionCache) GetTrack(ctx context.Context, feedGUID, itemGUID string) (*model.ResolvedTrack, bool) {
	key := ItemKey(feedGUID, itemGUID)
	payload, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var track model.ResolvedTrack
	if err := json.Unmarshal(payload, &track); err != nil {
		logger.Warn("[ResolutionCache] 缓存内容无法解析", logger.String("key", key), logger.ErrorField(err))
		return nil, false
	}
	if track.AudioURL == "" {
		return nil, false
	}
	return &track, true
}

// SetTrack caches a playable track under its item key. Unresolved tracks are never cached.
func (c *ResolutionCache) SetTrack(ctx context.Context, track model.ResolvedTrack) {
	if !track.Playable() {
		return
	}
	payload, err := json.Marshal(track)
	if err != nil {
		logger.Error("[ResolutionCache] 序列化失败", logger.ErrorField(err))
		return
	}
	c.Set(ctx, ItemKey(track.FeedGUID, track.ItemGUID), payload, c.itemTTL)
}
