package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"v4vfm/core/podcastindex"
	"v4vfm/model"
)

type fakeCatalog struct {
	tracks map[string]*model.CatalogTrack
	// inFeed holds rows only reachable by (feedGuid, guid).
	inFeed []*model.CatalogTrack
	err    error
	calls  int32
}

func (f *fakeCatalog) GetTrackInFeed(_ context.Context, feedGUID, guid string) (*model.CatalogTrack, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range f.inFeed {
		if t.FeedGUID == feedGUID && t.GUID == guid {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) GetTrackByGUID(_ context.Context, guid string) (*model.CatalogTrack, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks[guid], nil
}

type fakeIndex struct {
	feeds    map[string]podcastindex.Feed
	episodes map[int64][]podcastindex.Episode
	byGUID   map[string]podcastindex.Episode
	failFeed bool

	feedCalls, episodeCalls, guidCalls int32
}

func (f *fakeIndex) FeedByGUID(_ context.Context, guid string) podcastindex.Lookup[podcastindex.Feed] {
	atomic.AddInt32(&f.feedCalls, 1)
	if f.failFeed {
		return podcastindex.APIError[podcastindex.Feed]("feed by guid", podcastindex.ErrUpstreamUnavailable)
	}
	if feed, ok := f.feeds[guid]; ok {
		return podcastindex.Found(feed)
	}
	return podcastindex.NotFound[podcastindex.Feed]()
}

func (f *fakeIndex) EpisodesByFeedID(_ context.Context, id int64) podcastindex.Lookup[[]podcastindex.Episode] {
	atomic.AddInt32(&f.episodeCalls, 1)
	if eps, ok := f.episodes[id]; ok {
		return podcastindex.Found(eps)
	}
	return podcastindex.NotFound[[]podcastindex.Episode]()
}

func (f *fakeIndex) EpisodeByGUID(_ context.Context, itemGUID, _ string) podcastindex.Lookup[podcastindex.Episode] {
	atomic.AddInt32(&f.guidCalls, 1)
	if ep, ok := f.byGUID[itemGUID]; ok {
		return podcastindex.Found(ep)
	}
	return podcastindex.NotFound[podcastindex.Episode]()
}

func (f *fakeIndex) total() int32 {
	return atomic.LoadInt32(&f.feedCalls) + atomic.LoadInt32(&f.episodeCalls) + atomic.LoadInt32(&f.guidCalls)
}

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	urls  []string
	calls int32
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if doc, ok := f.docs[url]; ok {
		return []byte(doc), nil
	}
	return nil, errors.New("404")
}

type funcResolver struct {
	resolve func(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack
	refresh int32
}

func (f *funcResolver) Resolve(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	return f.resolve(ctx, ref)
}

func (f *funcResolver) Refresh(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	atomic.AddInt32(&f.refresh, 1)
	return f.resolve(ctx, ref)
}

func playable(ref model.RemoteItemReference) model.ResolvedTrack {
	return model.ResolvedTrack{
		Title:            "title-" + ref.ItemGUID,
		AudioURL:         "https://cdn.example.com/" + ref.ItemGUID + ".mp3",
		FeedGUID:         ref.FeedGUID,
		ItemGUID:         ref.ItemGUID,
		ResolutionSource: model.SourceIndexAPI,
	}
}
