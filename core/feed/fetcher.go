// Package feed fetches RSS feeds and extracts the parts the resolver needs.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"v4vfm/logger"
)

var (
	// ErrUpstreamUnavailable 网络错误、超时或非 200 响应
	ErrUpstreamUnavailable = errors.New("feed host unavailable")
	// ErrParse 文档无法解析
	ErrParse = errors.New("feed parse error")
)

const maxFeedSize = 32 << 20

// Fetcher RSS 抓取客户端
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// SetTimeout 设置请求超时时间
func (f *Fetcher) SetTimeout(timeout time.Duration) {
	f.httpClient.Timeout = timeout
}

// Fetch GETs rawURL and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		logger.Debug("[Fetch] 请求失败", logger.String("url", rawURL), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamUnavailable, rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	logger.Debug("[Fetch] 获取成功", logger.String("url", rawURL), logger.Int("bytes", len(body)), logger.Duration("elapsed", time.Since(start)))
	return body, nil
}
