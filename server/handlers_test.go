package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4vfm/cache"
	"v4vfm/config"
	"v4vfm/core/feed"
	"v4vfm/core/payment"
	"v4vfm/core/resolver"
	"v4vfm/core/value"
	"v4vfm/model"
)

type stubResolver struct {
	refreshes int32
}

func (s *stubResolver) Resolve(_ context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	if ref.ItemGUID == "missing" {
		return model.Unresolved(ref, time.Unix(0, 0))
	}
	return model.ResolvedTrack{
		Title:            "Track " + ref.ItemGUID,
		AudioURL:         "https://cdn.example.com/" + ref.ItemGUID + ".mp3",
		FeedGUID:         ref.FeedGUID,
		ItemGUID:         ref.ItemGUID,
		ResolutionSource: model.SourceIndexAPI,
	}
}

func (s *stubResolver) Refresh(ctx context.Context, ref model.RemoteItemReference) model.ResolvedTrack {
	atomic.AddInt32(&s.refreshes, 1)
	return s.Resolve(ctx, ref)
}

type stubFetcher map[string]string

func (f stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if doc, ok := f[url]; ok {
		return []byte(doc), nil
	}
	return nil, fmt.Errorf("%w: %s", feed.ErrUpstreamUnavailable, url)
}

type stubCatalog struct {
	tracks map[string]*model.CatalogTrack
	feeds  map[string]*model.CatalogFeed
}

func (c stubCatalog) GetTrackByGUID(_ context.Context, guid string) (*model.CatalogTrack, error) {
	return c.tracks[guid], nil
}

func (c stubCatalog) GetFeedByGUID(_ context.Context, guid string) (*model.CatalogFeed, error) {
	return c.feeds[guid], nil
}

type recordingSink struct {
	mu           sync.Mutex
	instructions []model.PaymentInstruction
}

func (s *recordingSink) Publish(_ context.Context, instructions []model.PaymentInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = append(s.instructions, instructions...)
	return nil
}

func (s *recordingSink) Close() error { return nil }

const feedValue = `{"type":"lightning","method":"keysend","recipients":[{"name":"Band","type":"node","address":"02band","split":80},{"name":"Label","type":"node","address":"02label","split":20}]}`

const playlistDoc = `<?xml version="1.0"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0">
  <channel>
    <title>Mix</title>
    <podcast:remoteItem feedGuid="f1" itemGuid="a"/>
    <podcast:remoteItem feedGuid="f1" itemGuid="missing"/>
    <podcast:remoteItem feedGuid="f1" itemGuid="a"/>
    <podcast:remoteItem feedGuid="f2" itemGuid="b"/>
  </channel>
</rss>`

type fixture struct {
	router   http.Handler
	resolver *stubResolver
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	res := &stubResolver{}
	sink := &recordingSink{}
	catalog := stubCatalog{
		tracks: map[string]*model.CatalogTrack{
			"t1": {GUID: "t1", FeedGUID: "f1"},
			"t2": {GUID: "t2", FeedGUID: "nov4v"},
		},
		feeds: map[string]*model.CatalogFeed{
			"f1":    {GUID: "f1", ValueJSON: feedValue},
			"nov4v": {GUID: "nov4v"},
		},
	}
	batch := resolver.BatchOptions{Concurrency: 2}
	coordinator := resolver.NewCoordinator(res)
	playlists := resolver.NewPlaylistService(
		cache.NewResolutionCache(cache.NewMemoryStore()),
		stubFetcher{"https://example.com/mix.xml": playlistDoc, "https://example.com/broken.xml": "<rss><channel>"},
		coordinator, batch)
	payments := payment.NewService(payment.NewDispatcher(), sink, nil, catalog, value.PlatformFee{})

	h := NewAPIHandler(res, coordinator, playlists, payments, catalog, batch)
	return &fixture{router: NewRouter(h), resolver: res, sink: sink}
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodOptions, "/api/value/splits", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveItemHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/remote-items/resolve?feedGuid=f1&itemGuid=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	track := decode[model.ResolvedTrack](t, rec)
	assert.Equal(t, "https://cdn.example.com/a.mp3", track.AudioURL)
	assert.Equal(t, model.SourceIndexAPI, track.ResolutionSource)

	rec = f.do(t, http.MethodGet, "/api/remote-items/resolve?feedGuid=f1&itemGuid=a&refresh=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.resolver.refreshes))

	rec = f.do(t, http.MethodGet, "/api/remote-items/resolve?feedGuid=f1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveBatchHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/remote-items/resolve", batchRequest{
		Items: []model.RemoteItemReference{
			{FeedGUID: "f1", ItemGUID: "a"},
			{FeedGUID: "f1", ItemGUID: "missing"},
			{FeedGUID: "f2", ItemGUID: "b"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[batchResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Unresolved)
	require.Len(t, resp.Tracks, 3)
	assert.Equal(t, "a", resp.Tracks[0].ItemGUID)
	assert.Equal(t, model.SourceUnresolved, resp.Tracks[1].ResolutionSource)
	assert.Equal(t, "b", resp.Tracks[2].ItemGUID)

	rec = f.do(t, http.MethodPost, "/api/remote-items/resolve", batchRequest{
		Items:          []model.RemoteItemReference{{FeedGUID: "f1", ItemGUID: "missing"}, {FeedGUID: "f2", ItemGUID: "b"}},
		DropUnresolved: true,
	})
	resp = decode[batchResponse](t, rec)
	assert.Len(t, resp.Tracks, 1)

	rec = f.do(t, http.MethodPost, "/api/remote-items/resolve", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestLimits(t *testing.T) {
	f := newFixture(t)

	t.Run("oversized body", func(t *testing.T) {
		body := `{"trackGuid":"t1","message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		for _, target := range []string{"/api/remote-items/resolve", "/api/value/splits", "/api/value/payments"} {
			rec := f.do(t, http.MethodPost, target, body)
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, target)
		}
	})

	t.Run("too many batch items", func(t *testing.T) {
		items := make([]model.RemoteItemReference, maxBatchItems+1)
		for i := range items {
			items[i] = model.RemoteItemReference{FeedGUID: "f1", ItemGUID: fmt.Sprintf("i%d", i)}
		}
		rec := f.do(t, http.MethodPost, "/api/remote-items/resolve", batchRequest{Items: items})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestResolvePlaylistHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/playlists/resolve?url=https://example.com/mix.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pl := decode[model.ResolvedPlaylist](t, rec)
	assert.Equal(t, "Mix", pl.Title)
	assert.Equal(t, 4, pl.Total)
	assert.Equal(t, 1, pl.Unresolved)
	require.Len(t, pl.Tracks, 2)
	assert.Equal(t, "a", pl.Tracks[0].ItemGUID)
	assert.Equal(t, "b", pl.Tracks[1].ItemGUID)

	rec = f.do(t, http.MethodGet, "/api/playlists/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/playlists/resolve?url=https://example.com/unknown.xml", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/playlists/resolve?url=https://example.com/broken.xml", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSplitsHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"feedGuid": "f1", "amountSats": 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[splitsResponse](t, rec)
	require.Len(t, resp.Allocations, 2)
	assert.Equal(t, int64(800), resp.Allocations[0].AmountSats)
	assert.Equal(t, int64(200), resp.Allocations[1].AmountSats)

	// track 没有自己的 value 块时继承 feed 的
	rec = f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"trackGuid": "t1", "amountSats": 10, "feePercent": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[splitsResponse](t, rec)
	require.Len(t, resp.Allocations, 3)
	var sum int64
	for _, a := range resp.Allocations {
		sum += a.AmountSats
	}
	assert.Equal(t, int64(10), sum)
	assert.True(t, resp.Allocations[2].Recipient.Fee)

	rec = f.do(t, http.MethodPost, "/api/value/splits", fmt.Sprintf(`{"value":%s,"amountSats":3}`, feedValue))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"feedGuid": "f1", "amountSats": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"feedGuid": "f1", "amountSats": 1, "feePercent": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"feedGuid": "unknown", "amountSats": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/value/splits", map[string]interface{}{"amountSats": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/value/splits", `{"value":{"type":"lightning"},"amountSats":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentsHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/value/payments", map[string]interface{}{"trackGuid": "t1", "amountSats": 100, "message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decode[payment.Plan](t, rec)
	require.Len(t, plan.Instructions, 2)
	assert.Equal(t, "02band", plan.Instructions[0].Destination)
	assert.Equal(t, int64(80), plan.Instructions[0].AmountSats)
	assert.Contains(t, plan.Instructions[0].CustomRecords, payment.BoostagramKey)
	assert.Len(t, f.sink.instructions, 2)

	rec = f.do(t, http.MethodPost, "/api/value/payments", map[string]interface{}{"trackGuid": "t2", "amountSats": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, f.sink.instructions, 2)

	rec = f.do(t, http.MethodPost, "/api/value/payments", fmt.Sprintf(`{"value":%s,"amountSats":0}`, feedValue))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlatformFee(t *testing.T) {
	fee := PlatformFee(config.PaymentConfig{
		PlatformFeePercent: 2,
		PlatformFeeName:    "App",
		PlatformFeeType:    "lnaddress",
		PlatformFeeAddress: "fees@example.com",
	})
	assert.Equal(t, 2.0, fee.Percent)
	assert.Equal(t, model.RecipientLNAddress, fee.Recipient.Type)
	assert.True(t, value.Payable(fee.Recipient))
}
