package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4vfm/cache"
	"v4vfm/core/podcastindex"
	"v4vfm/model"
)

const directFeed = `<rss xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel>
<title>Direct Album</title><itunes:author>Solo</itunes:author>
<item><title>Direct Song</title><guid>i9</guid><enclosure url="https://cdn.example.com/i9.mp3"/><itunes:duration>120</itunes:duration></item>
</channel></rss>`

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newCache() *cache.ResolutionCache {
	return cache.NewResolutionCache(cache.NewMemoryStore(), cache.WithClock(func() time.Time { return fixedNow }))
}

func indexWithTrack() *fakeIndex {
	return &fakeIndex{
		feeds: map[string]podcastindex.Feed{
			"f1": {ID: 11, GUID: "f1", Title: "Album", Author: "Band", URL: "https://feeds.example.com/f1.xml", Image: "https://img/f1.jpg"},
		},
		episodes: map[int64][]podcastindex.Episode{
			11: {
				{GUID: "other", Title: "Other", EnclosureURL: "https://cdn/other.mp3"},
				{GUID: "i1", Title: "Song", EnclosureURL: "https://cdn/i1.mp3", Duration: 215},
			},
		},
	}
}

func newTestResolver(c *cache.ResolutionCache, catalog TrackLookup, index IndexAPI, feeds FeedFetcher, opts ...Option) *Resolver {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return NewResolver(c, catalog, index, feeds, opts...)
}

func TestResolveIdempotentWithinTTL(t *testing.T) {
	catalog := &fakeCatalog{}
	index := indexWithTrack()
	feeds := &fakeFetcher{}
	r := newTestResolver(newCache(), catalog, index, feeds)
	ref := model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "i1"}

	first := r.Resolve(context.Background(), ref)
	require.Equal(t, model.SourceIndexAPI, first.ResolutionSource)
	assert.Equal(t, "https://cdn/i1.mp3", first.AudioURL)
	assert.Equal(t, "Band", first.Artist)
	assert.Equal(t, "Album", first.FeedTitle)
	assert.Equal(t, "https://img/f1.jpg", first.Image)
	assert.Equal(t, 215, first.DurationSeconds)

	calls := index.total()
	dbCalls := atomic.LoadInt32(&catalog.calls)

	second := r.Resolve(context.Background(), ref)
	assert.Equal(t, model.SourceCache, second.ResolutionSource)
	assert.Equal(t, model.SourceIndexAPI, second.OriginSource)

	second.ResolutionSource, second.OriginSource = first.ResolutionSource, ""
	assert.Equal(t, first, second)
	assert.Equal(t, calls, index.total(), "no repeated index calls")
	assert.Equal(t, dbCalls, atomic.LoadInt32(&catalog.calls))
	assert.Zero(t, atomic.LoadInt32(&feeds.calls))
}

func TestResolveDatabaseTier(t *testing.T) {
	c := newCache()
	catalog := &fakeCatalog{tracks: map[string]*model.CatalogTrack{
		"i1":    {GUID: "i1", Title: "Stored", Artist: "Band", AudioURL: " https://cdn/stored.mp3 ", DurationSeconds: 99, FeedTitle: "Album"},
		"empty": {GUID: "empty", Title: "No audio"},
	}}
	index := indexWithTrack()
	r := newTestResolver(c, catalog, index, nil)

	got := r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "i1"})
	assert.Equal(t, model.SourceDatabase, got.ResolutionSource)
	assert.Equal(t, "https://cdn/stored.mp3", got.AudioURL)
	assert.Zero(t, index.total())

	cached, ok := c.GetTrack(context.Background(), "f1", "i1")
	require.True(t, ok, "database results are written through")
	assert.Equal(t, "Stored", cached.Title)

	got = r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "empty"})
	assert.Equal(t, model.SourceUnresolved, got.ResolutionSource, "rows without an audio url fall through")
}

func TestResolveDatabaseTierPrefersFeedMatch(t *testing.T) {
	catalog := &fakeCatalog{
		tracks: map[string]*model.CatalogTrack{
			"track-1": {GUID: "track-1", FeedGUID: "other", Title: "Wrong", AudioURL: "https://cdn/other.mp3"},
		},
		inFeed: []*model.CatalogTrack{
			{GUID: "track-1", FeedGUID: "f1", Title: "Right", AudioURL: "https://cdn/right.mp3"},
		},
	}
	r := newTestResolver(newCache(), catalog, nil, nil)

	got := r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "track-1"})
	assert.Equal(t, "https://cdn/right.mp3", got.AudioURL)

	got = r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f9", ItemGUID: "track-1"})
	assert.Equal(t, "https://cdn/other.mp3", got.AudioURL, "falls back to the guid alone")
	assert.Equal(t, model.SourceDatabase, got.ResolutionSource)
}

func TestResolveTierFallthrough(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("db down")}
	index := indexWithTrack()
	r := newTestResolver(newCache(), catalog, index, nil)
	ref := model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "i1"}

	first := r.Resolve(context.Background(), ref)
	assert.Equal(t, model.SourceIndexAPI, first.ResolutionSource)
	r.Resolve(context.Background(), ref)
	third := r.Resolve(context.Background(), ref)
	assert.Equal(t, model.SourceCache, third.ResolutionSource)
	assert.Equal(t, int32(1), atomic.LoadInt32(&catalog.calls))
}

func TestResolveEpisodeByGUIDFallback(t *testing.T) {
	index := &fakeIndex{
		failFeed: true,
		byGUID: map[string]podcastindex.Episode{
			"i2": {GUID: "i2", Title: "Global", EnclosureURL: "https://cdn/i2.mp3", FeedTitle: "Elsewhere"},
		},
	}
	r := newTestResolver(newCache(), nil, index, nil)

	got := r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "i2"})
	assert.Equal(t, model.SourceIndexAPI, got.ResolutionSource)
	assert.Equal(t, "Global", got.Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&index.guidCalls))
}

func TestResolveDirectFetch(t *testing.T) {
	index := &fakeIndex{feeds: map[string]podcastindex.Feed{
		"f9": {ID: 9, GUID: "f9", URL: "https://feeds.example.com/f9.xml"},
	}}
	feeds := &fakeFetcher{docs: map[string]string{"https://feeds.example.com/f9.xml": directFeed}}
	r := newTestResolver(newCache(), nil, index, feeds)

	got := r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f9", ItemGUID: "i9"})
	assert.Equal(t, model.SourceDirectFetch, got.ResolutionSource)
	assert.Equal(t, "https://cdn.example.com/i9.mp3", got.AudioURL)
	assert.Equal(t, "Direct Song", got.Title)
	assert.Equal(t, "Solo", got.Artist)
	assert.Equal(t, 120, got.DurationSeconds)
	assert.Equal(t, fixedNow, got.ResolvedAt)
}

func TestResolveDirectFetchCandidates(t *testing.T) {
	feeds := &fakeFetcher{docs: map[string]string{"https://mirror.example.com/f9.rss": directFeed}}
	r := newTestResolver(newCache(), nil, nil, feeds,
		WithFeedURLTemplates("https://wavlake.example.com/{feedGuid}", "https://mirror.example.com/{feedGuid}.rss", "https://static.example.com/no-placeholder"))

	ref := model.RemoteItemReference{FeedGUID: "f9", ItemGUID: "i9", FeedURL: "https://hint.example.com/feed.xml"}
	got := r.Resolve(context.Background(), ref)
	require.Equal(t, model.SourceDirectFetch, got.ResolutionSource)
	assert.Equal(t, []string{
		"https://hint.example.com/feed.xml",
		"https://wavlake.example.com/f9",
		"https://mirror.example.com/f9.rss",
	}, feeds.urls)
}

func TestResolveUnresolvedIsNotCached(t *testing.T) {
	c := newCache()
	index := &fakeIndex{}
	feeds := &fakeFetcher{}
	r := newTestResolver(c, &fakeCatalog{}, index, feeds, WithFeedURLTemplates("https://feeds.example.com/{feedGuid}"))
	ref := model.RemoteItemReference{FeedGUID: "nope", ItemGUID: "nothing"}

	got := r.Resolve(context.Background(), ref)
	assert.Equal(t, model.SourceUnresolved, got.ResolutionSource)
	assert.Empty(t, got.AudioURL)
	assert.Equal(t, "nope", got.FeedGUID)

	_, ok := c.GetTrack(context.Background(), "nope", "nothing")
	assert.False(t, ok)
	_, ok = c.Get(context.Background(), cache.ItemKey("nope", "nothing"))
	assert.False(t, ok)

	before := index.total()
	r.Resolve(context.Background(), ref)
	assert.Greater(t, index.total(), before, "unresolved references are retried")
	assert.Equal(t, int32(2), atomic.LoadInt32(&feeds.calls))
}

func TestRefreshBypassesAndOverwritesCache(t *testing.T) {
	c := newCache()
	c.SetTrack(context.Background(), model.ResolvedTrack{
		Title: "Stale", AudioURL: "https://cdn/old.mp3", FeedGUID: "f1", ItemGUID: "i1",
		ResolutionSource: model.SourceDirectFetch,
	})
	index := indexWithTrack()
	r := newTestResolver(c, nil, index, nil)
	ref := model.RemoteItemReference{FeedGUID: "f1", ItemGUID: "i1"}

	assert.Equal(t, "Stale", r.Resolve(context.Background(), ref).Title)

	fresh := r.Refresh(context.Background(), ref)
	assert.Equal(t, model.SourceIndexAPI, fresh.ResolutionSource)
	assert.Equal(t, "Song", fresh.Title)

	after := r.Resolve(context.Background(), ref)
	assert.Equal(t, "Song", after.Title)
	assert.Equal(t, model.SourceCache, after.ResolutionSource)
}

func TestResolveWithoutItemGUID(t *testing.T) {
	index := indexWithTrack()
	r := newTestResolver(newCache(), nil, index, nil)
	got := r.Resolve(context.Background(), model.RemoteItemReference{FeedGUID: "f1"})
	assert.Equal(t, model.SourceUnresolved, got.ResolutionSource)
	assert.Zero(t, index.total())
}
