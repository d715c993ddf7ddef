package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4vfm/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.IndexConfig{
		BaseURL:    srv.URL,
		APIKey:     "key",
		APISecret:  "secret",
		UserAgent:  "v4vfm-test",
		Timeout:    2 * time.Second,
		RetryDelay: 10 * time.Millisecond,
	})
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestAuthHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, `{"status":"true","feed":{"id":42,"podcastGuid":"f1","url":"https://example.com/feed.xml"}}`)
	})

	res := c.FeedByGUID(context.Background(), "f1")
	require.True(t, res.Ok())

	sum := sha1.Sum([]byte("keysecret1700000000"))
	assert.Equal(t, "key", got.Get("X-Auth-Key"))
	assert.Equal(t, "1700000000", got.Get("X-Auth-Date"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Get("Authorization"))
	assert.Equal(t, "v4vfm-test", got.Get("User-Agent"))
	assert.True(t, c.Configured())
}

func TestFeedByGUID(t *testing.T) {
	responses := map[string]string{
		"found":   `{"status":"true","feed":{"id":42,"podcastGuid":"found","title":"Album","url":"https://example.com/feed.xml"}}`,
		"missing": `{"status":"true","feed":[],"description":"No feeds match this guid."}`,
		"bad":     `{"status":"false","description":"Invalid guid"}`,
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/podcasts/byguid", r.URL.Path)
		fmt.Fprint(w, responses[r.URL.Query().Get("guid")])
	})
	ctx := context.Background()

	res := c.FeedByGUID(ctx, "found")
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, int64(42), res.Value.ID)
	assert.Equal(t, "https://example.com/feed.xml", res.Value.URL)

	assert.Equal(t, StatusNotFound, c.FeedByGUID(ctx, "missing").Status)

	res = c.FeedByGUID(ctx, "bad")
	assert.Equal(t, StatusAPIError, res.Status)
	assert.Equal(t, "Invalid guid", res.Reason)
}

func TestEpisodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/episodes/byfeedid":
			assert.Equal(t, "42", r.URL.Query().Get("id"))
			fmt.Fprint(w, `{"status":"true","items":[
				{"id":1,"guid":"a","title":"A","enclosureUrl":"https://cdn/a.mp3","duration":180},
				{"id":2,"guid":"b","title":"B","enclosureUrl":"https://cdn/b.mp3","duration":200}],"count":2}`)
		case "/episodes/byguid":
			if r.URL.Query().Get("guid") == "b" {
				assert.Equal(t, "f1", r.URL.Query().Get("podcastguid"))
				fmt.Fprint(w, `{"status":"true","episode":{"guid":"b","title":"B","enclosureUrl":"https://cdn/b.mp3"}}`)
				return
			}
			fmt.Fprint(w, `{"status":"true","episode":[]}`)
		}
	})
	ctx := context.Background()

	eps := c.EpisodesByFeedID(ctx, 42)
	require.True(t, eps.Ok())
	ep, ok := FindEpisode(eps.Value, "b")
	require.True(t, ok)
	assert.Equal(t, "https://cdn/b.mp3", ep.EnclosureURL)
	_, ok = FindEpisode(eps.Value, "zzz")
	assert.False(t, ok)

	single := c.EpisodeByGUID(ctx, "b", "f1")
	require.True(t, single.Ok())
	assert.Equal(t, "B", single.Value.Title)
	assert.Equal(t, StatusNotFound, c.EpisodeByGUID(ctx, "nope", "").Status)
}

func TestRetryOnceOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"status":"true","feed":{"id":7,"podcastGuid":"f"}}`)
	})

	res := c.FeedByGUID(context.Background(), "f")
	require.True(t, res.Ok())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPersistent429IsRateLimited(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	res := c.FeedByGUID(context.Background(), "f")
	assert.Equal(t, StatusAPIError, res.Status)
	assert.ErrorIs(t, res.Err, ErrRateLimited)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "exactly one retry")
}

func TestServerErrorIsUpstreamUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	res := c.EpisodesByFeedID(context.Background(), 1)
	assert.Equal(t, StatusAPIError, res.Status)
	assert.ErrorIs(t, res.Err, ErrUpstreamUnavailable)
}

func TestMinIntervalIsShared(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"true","feed":{"id":1}}`)
	})
	c.SetMinInterval(40 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		c.FeedByGUID(context.Background(), "f")
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	c := NewClient(config.IndexConfig{RetryDelay: 2 * time.Second})
	assert.Equal(t, 2*time.Second, c.backoff(""))
	assert.Equal(t, 3*time.Second, c.backoff("3"))
	assert.Equal(t, maxRetryAfter, c.backoff("3600"))
}
