package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"v4vfm/cache"
	"v4vfm/core/feed"
	"v4vfm/logger"
	"v4vfm/model"
)

// ErrMissingPlaylistURL 请求没有提供歌单 feed 地址
var ErrMissingPlaylistURL = errors.New("playlist feed url required")

// PlaylistRequest 歌单解析请求
type PlaylistRequest struct {
	// ID keys the cached aggregate; defaults to FeedURL.
	ID      string
	FeedURL string
	Refresh bool
}

// PlaylistService resolves a whole playlist feed and caches the aggregate.
type PlaylistService struct {
	cache       *cache.ResolutionCache
	feeds       FeedFetcher
	coordinator *Coordinator
	opts        BatchOptions
	now         func() time.Time
}

func NewPlaylistService(c *cache.ResolutionCache, feeds FeedFetcher, coordinator *Coordinator, opts BatchOptions) *PlaylistService {
	return &PlaylistService{cache: c, feeds: feeds, coordinator: coordinator, opts: opts, now: time.Now}
}

// Resolve returns the playable, de-duplicated tracks of the playlist in
// playback order together with the playlist's own value block.
func (s *PlaylistService) Resolve(ctx context.Context, req PlaylistRequest) (*model.ResolvedPlaylist, error) {
	req.FeedURL = strings.TrimSpace(req.FeedURL)
	if req.FeedURL == "" {
		return nil, ErrMissingPlaylistURL
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = req.FeedURL
	}

	if !req.Refresh && s.cache != nil {
		if pl, ok := s.cache.GetPlaylist(ctx, id); ok {
			logger.Debug("[PlaylistService] 命中歌单缓存", logger.String("id", id))
			return pl, nil
		}
	}

	data, err := s.feeds.Fetch(ctx, req.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", req.FeedURL, err)
	}
	parsed, err := feed.ParsePlaylist(data)
	if err != nil {
		return nil, fmt.Errorf("parse playlist %s: %w", req.FeedURL, err)
	}

	opts := s.opts
	opts.Refresh = req.Refresh
	opts.Dedupe, opts.DropUnresolved = false, false
	tracks, err := s.coordinator.ResolveAll(ctx, parsed.RemoteItems, opts)
	if err != nil {
		return nil, err
	}

	playable := Playable(Dedupe(tracks))
	unresolved := 0
	for _, t := range tracks {
		if !t.Playable() {
			unresolved++
		}
	}

	pl := model.ResolvedPlaylist{
		ID:         id,
		Title:      parsed.Title,
		FeedURL:    req.FeedURL,
		Tracks:     playable,
		Total:      len(parsed.RemoteItems),
		Unresolved: unresolved,
		Value:      parsed.Value,
		ResolvedAt: s.now(),
	}
	logger.Info("[PlaylistService] 歌单解析完成",
		logger.String("id", id),
		logger.Int("total", pl.Total),
		logger.Int("playable", len(playable)),
		logger.Int("unresolved", unresolved))

	if s.cache != nil {
		s.cache.SetPlaylist(ctx, pl)
	}
	return &pl, nil
}
