// Package podcastindex 是 Podcast Index API 客户端
package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"v4vfm/config"
	"v4vfm/logger"
)

var (
	// ErrRateLimited 重试一次后仍返回 429
	ErrRateLimited = errors.New("podcast index rate limited")
	// ErrUpstreamUnavailable 网络错误、超时或 5xx
	ErrUpstreamUnavailable = errors.New("podcast index unavailable")
)

// maxRetryAfter caps the wait requested by an upstream Retry-After header.
const maxRetryAfter = 10 * time.Second

// Client Podcast Index API客户端。同一进程内应只创建一个，限流器随之共享。
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	apiSecret  string
	userAgent  string
	limiter    *rate.Limiter
	retryDelay time.Duration
	now        func() time.Time
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.IndexConfig) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		userAgent:  cfg.UserAgent,
		retryDelay: cfg.RetryDelay,
		now:        time.Now,
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 12 * time.Second
	}
	if c.userAgent == "" {
		c.userAgent = "v4vfm/1.0"
	}
	c.SetMinInterval(cfg.MinInterval)
	return c
}

// SetBaseURL 设置API基础URL
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetMinInterval sets the minimum spacing between any two requests of this client.
func (c *Client) SetMinInterval(d time.Duration) {
	if d <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(d), 1)
}

// SetRetryDelay 设置 429 后的退避时间
func (c *Client) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// authHeaders 生成签名头：Authorization = sha1(key + secret + unixTime)
func (c *Client) authHeaders(h http.Header) {
	date := strconv.FormatInt(c.now().Unix(), 10)
	sum := sha1.Sum([]byte(c.apiKey + c.apiSecret + date))
	h.Set("User-Agent", c.userAgent)
	h.Set("X-Auth-Key", c.apiKey)
	h.Set("X-Auth-Date", date)
	h.Set("Authorization", hex.EncodeToString(sum[:]))
	h.Set("Accept", "application/json")
}

// get performs a signed GET of path and decodes the JSON body into out.
// A 429 is retried once after the backoff delay.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("创建请求失败: %w", err)
		}
		c.authHeaders(req.Header)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Debug("[PodcastIndex] 请求失败", logger.String("path", path), logger.ErrorField(err))
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt > 0 {
				return ErrRateLimited
			}
			wait := c.backoff(resp.Header.Get("Retry-After"))
			logger.Warn("[PodcastIndex] 触发限流，退避后重试", logger.String("path", path), logger.Duration("wait", wait))
			if err := sleep(ctx, wait); err != nil {
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			continue
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
		}
		if readErr != nil {
			return fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, readErr)
		}
		if resp.StatusCode == http.StatusNotFound {
			return errNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("解析响应失败: %w", err)
		}
		return nil
	}
}

func (c *Client) backoff(retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, maxRetryAfter)
	}
	return c.retryDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
