package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"v4vfm/logger"
	"v4vfm/model"
)

// PlaylistKey 根据歌单ID生成缓存键
func PlaylistKey(playlistID string) string {
	return fmt.Sprintf(PlaylistKeyFormat, playlistID)
}

// GetPlaylist 获取缓存的歌单解析结果
func (c *ResolutionCache) GetPlaylist(ctx context.Context, playlistID string) (*model.ResolvedPlaylist, bool) {
	key := PlaylistKey(playlistID)
	payload, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var playlist model.ResolvedPlaylist
	if err := json.Unmarshal(payload, &playlist); err != nil {
		logger.Warn("[GetPlaylist] 歌单缓存无法解析", logger.String("key", key), logger.ErrorField(err))
		return nil, false
	}
	return &playlist, true
}

// SetPlaylist 缓存歌单解析结果，没有任何可播放曲目时不缓存
func (c *ResolutionCache) SetPlaylist(ctx context.Context, playlist model.ResolvedPlaylist) {
	if playlist.ID == "" || len(playlist.Tracks) == 0 {
		return
	}
	payload, err := json.Marshal(playlist)
	if err != nil {
		logger.Error("[SetPlaylist] 序列化歌单失败", logger.ErrorField(err))
		return
	}
	c.Set(ctx, PlaylistKey(playlist.ID), payload, c.playlistTTL)
}

// InvalidatePlaylist 删除歌单缓存
func (c *ResolutionCache) InvalidatePlaylist(ctx context.Context, playlistID string) {
	c.Invalidate(ctx, PlaylistKey(playlistID))
}
