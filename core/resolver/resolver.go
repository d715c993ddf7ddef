// Package resolver resolves Podcasting 2.0 remote item references into playable tracks.
package resolver

import (
	"context"
	"strings"
	"time"

	"v4vfm/cache"
	"v4vfm/core/feed"
	"v4vfm/core/podcastindex"
	"v4vfm/logger"
	"v4vfm/model"
)

// FeedGUIDPlaceholder is replaced by the reference's feed guid in fallback feed URL templates.
const FeedGUIDPlaceholder = "{feedGuid}"

// TrackLookup is the relational store used by the database tier.
type TrackLookup interface {
	GetTrackByGUID(ctx context.Context, guid string) (*model.CatalogTrack, error)
	GetTrackInFeed(ctx context.Context, feedGUID, guid string) (*model.CatalogTrack, error)
}

// IndexAPI is the external podcast index used by the index tier.
type IndexAPI interface {
	FeedByGUID(ctx context.Context, feedGUID string) podcastindex.Lookup[podcastindex.Feed]
	EpisodesByFeedID(ctx context.Context, feedID int64) podcastindex.Lookup[[]podcastindex.Episode]
	EpisodeByGUID(ctx context.Context, itemGUID, feedGUID string) podcastindex.Lookup[podcastindex.Episode]
}

// FeedFetcher downloads raw feed XML for the direct-fetch tier.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Resolver 分层解析器：缓存 → 数据库 → 索引 API → 直接抓取 feed。
// 任一层失败只记录日志并进入下一层，Resolve 总会返回结果。
type Resolver struct {
	cache     *cache.ResolutionCache
	catalog   TrackLookup
	index     IndexAPI
	feeds     FeedFetcher
	templates []string

	indexTimeout time.Duration
	feedTimeout  time.Duration
	now          func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFeedURLTemplates sets the fallback feed URL templates tried in order.
func WithFeedURLTemplates(templates ...string) Option {
	return func(r *Resolver) {
		r.templates = append([]string(nil), templates...)
	}
}

// WithTimeouts bounds the index and direct-fetch tiers. Non-positive values keep the default.
func WithTimeouts(index, feed time.Duration) Option {
	return func(r *Resolver) {
		if index > 0 {
			r.indexTimeout = index
		}
		if feed > 0 {
			r.feedTimeout = feed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver wires the tiers. A nil collaborator disables its tier.
func NewResolver(c *cache.ResolutionCache, catalog TrackLookup, index IndexAPI, feeds FeedFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		cache:        c,
		catalog:      catalog,
		index:        index,
		feeds:        feeds,
		indexTimeout: 12 * time.Second,
		feedTimeout:  12 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the track for ref, serving from cache when possible.
// A cache hit reports ResolutionSource=cache and keeps the producing tier in OriginSource.
func (r *Resolver) Resolve(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	ref = normalizeRef(ref)
	if r.cache != nil {
		if t, ok := r.cache.GetTrack(ctx, ref.FeedGUID, ref.ItemGUID); ok {
			if t.OriginSource == "" {
				t.OriginSource = t.ResolutionSource
			}
			t.ResolutionSource = model.SourceCache
			return *t
		}
	}
	return r.resolveFresh(ctx, ref)
}

// Refresh skips the cache tier and overwrites the cache on success.
func (r *Resolver) Refresh(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	return r.resolveFresh(ctx, normalizeRef(ref))
}

func (r *Resolver) resolveFresh(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	if strings.TrimSpace(ref.ItemGUID) == "" {
		return model.Unresolved(ref, r.now())
	}

	if t, ok := r.fromDatabase(ctx, ref); ok {
		return r.store(ctx, t)
	}

	t, ok, indexFeedURL := r.fromIndex(ctx, ref)
	if ok {
		return r.store(ctx, t)
	}

	if t, ok := r.fromFeed(ctx, ref, indexFeedURL); ok {
		return r.store(ctx, t)
	}

	logger.Info("[Resolver] 未能解析远程条目",
		logger.String("feedGuid", ref.FeedGUID),
		logger.String("itemGuid", ref.ItemGUID))
	return model.Unresolved(ref, r.now())
}

func (r *Resolver) store(ctx context.Context, t model.ResolvedTrack) model.ResolvedTrack {
	t.ResolvedAt = r.now()
	if r.cache != nil {
		r.cache.SetTrack(ctx, t)
	}
	return t
}

func (r *Resolver) fromDatabase(ctx context.Context, ref model.RemoteItemReference) (model.ResolvedTrack, bool) {
	if r.catalog == nil {
		return model.ResolvedTrack{}, false
	}
	row, err := r.lookupTrack(ctx, ref)
	if err != nil {
		logger.Warn("[Resolver] 数据库查询失败",
			logger.String("tier", string(model.SourceDatabase)),
			logger.String("itemGuid", ref.ItemGUID),
			logger.ErrorField(err))
		return model.ResolvedTrack{}, false
	}
	if row == nil || strings.TrimSpace(row.AudioURL) == "" {
		return model.ResolvedTrack{}, false
	}
	return model.ResolvedTrack{
		Title:            row.Title,
		Artist:           row.Artist,
		AudioURL:         strings.TrimSpace(row.AudioURL),
		Image:            row.Image,
		DurationSeconds:  row.DurationSeconds,
		FeedTitle:        row.FeedTitle,
		FeedGUID:         ref.FeedGUID,
		ItemGUID:         ref.ItemGUID,
		ResolutionSource: model.SourceDatabase,
	}, true
}

// lookupTrack matches (feedGuid, itemGuid) first, then the item guid alone.
func (r *Resolver) lookupTrack(ctx context.Context, ref model.RemoteItemReference) (*model.CatalogTrack, error) {
	if ref.FeedGUID != "" {
		row, err := r.catalog.GetTrackInFeed(ctx, ref.FeedGUID, ref.ItemGUID)
		if err != nil || row != nil {
			return row, err
		}
	}
	return r.catalog.GetTrackByGUID(ctx, ref.ItemGUID)
}

// fromIndex also returns the canonical feed URL learned from the index, if any.
func (r *Resolver) fromIndex(ctx context.Context, ref model.RemoteItemReference) (model.ResolvedTrack, bool, string) {
	if r.index == nil {
		return model.ResolvedTrack{}, false, ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.indexTimeout)
	defer cancel()

	var meta podcastindex.Feed
	if ref.FeedGUID != "" {
		feedRes := r.index.FeedByGUID(ctx, ref.FeedGUID)
		switch feedRes.Status {
		case podcastindex.StatusFound:
			meta = feedRes.Value
			eps := r.index.EpisodesByFeedID(ctx, meta.ID)
			if eps.Ok() {
				if ep, ok := podcastindex.FindEpisode(eps.Value, ref.ItemGUID); ok && ep.EnclosureURL != "" {
					return fromEpisode(ref, ep, meta), true, meta.URL
				}
			} else {
				logTier(ref, "episodes by feed id", eps.Status, eps.Reason, eps.Err)
			}
		default:
			logTier(ref, "feed by guid", feedRes.Status, feedRes.Reason, feedRes.Err)
		}
	}

	epRes := r.index.EpisodeByGUID(ctx, ref.ItemGUID, ref.FeedGUID)
	if epRes.Ok() && epRes.Value.EnclosureURL != "" {
		return fromEpisode(ref, epRes.Value, meta), true, meta.URL
	}
	logTier(ref, "episode by guid", epRes.Status, epRes.Reason, epRes.Err)
	if meta.URL == "" && epRes.Ok() {
		meta.URL = epRes.Value.FeedURL
	}
	return model.ResolvedTrack{}, false, meta.URL
}

func logTier(ref model.RemoteItemReference, step string, status podcastindex.Status, reason string, err error) {
	logger.Debug("[Resolver] 索引查询未命中",
		logger.String("tier", string(model.SourceIndexAPI)),
		logger.String("step", step),
		logger.String("status", status.String()),
		logger.String("reason", reason),
		logger.String("feedGuid", ref.FeedGUID),
		logger.String("itemGuid", ref.ItemGUID),
		logger.ErrorField(err))
}

func fromEpisode(ref model.RemoteItemReference, ep podcastindex.Episode, meta podcastindex.Feed) model.ResolvedTrack {
	return model.ResolvedTrack{
		Title:            ep.Title,
		Artist:           firstNonEmpty(ep.FeedAuthor, meta.Author),
		AudioURL:         ep.EnclosureURL,
		Image:            firstNonEmpty(ep.Image, ep.FeedImage, meta.Artwork, meta.Image),
		DurationSeconds:  ep.Duration,
		FeedTitle:        firstNonEmpty(ep.FeedTitle, meta.Title),
		FeedGUID:         ref.FeedGUID,
		ItemGUID:         ref.ItemGUID,
		ResolutionSource: model.SourceIndexAPI,
	}
}

func (r *Resolver) fromFeed(ctx context.Context, ref model.RemoteItemReference, indexFeedURL string) (model.ResolvedTrack, bool) {
	if r.feeds == nil {
		return model.ResolvedTrack{}, false
	}
	for _, u := range r.candidateURLs(ref, indexFeedURL) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.feedTimeout)
		data, err := r.feeds.Fetch(fetchCtx, u)
		cancel()
		if err != nil {
			logger.Debug("[Resolver] 抓取 feed 失败",
				logger.String("tier", string(model.SourceDirectFetch)),
				logger.String("url", u),
				logger.ErrorField(err))
			if ctx.Err() != nil {
				return model.ResolvedTrack{}, false
			}
			continue
		}
		it, ok := feed.FindItem(data, ref.ItemGUID)
		if !ok {
			continue
		}
		return model.ResolvedTrack{
			Title:            it.Title,
			Artist:           it.Artist,
			AudioURL:         it.URL,
			Image:            it.Image,
			DurationSeconds:  it.DurationSeconds,
			FeedTitle:        it.FeedTitle,
			FeedGUID:         ref.FeedGUID,
			ItemGUID:         ref.ItemGUID,
			ResolutionSource: model.SourceDirectFetch,
		}, true
	}
	return model.ResolvedTrack{}, false
}

// candidateURLs lists feed URLs to try: the reference hint, the index URL,
// then the configured templates. Duplicates are removed.
func (r *Resolver) candidateURLs(ref model.RemoteItemReference, indexFeedURL string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(ref.FeedURL)
	add(indexFeedURL)
	if ref.FeedGUID != "" {
		for _, tpl := range r.templates {
			if strings.Contains(tpl, FeedGUIDPlaceholder) {
				add(strings.ReplaceAll(tpl, FeedGUIDPlaceholder, ref.FeedGUID))
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
