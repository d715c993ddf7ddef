package podcastindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"v4vfm/logger"
)

// Feed 索引中的 feed 元数据
type Feed struct {
	ID        int64  `json:"id"`
	GUID      string `json:"podcastGuid"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Author    string `json:"author"`
	Image     string `json:"image"`
	Artwork   string `json:"artwork"`
	Medium    string `json:"medium"`
	ItunesID  int64  `json:"itunesId"`
	Language  string `json:"language"`
	ItemCount int    `json:"episodeCount"`
}

// Episode 索引中的单集
type Episode struct {
	ID           int64  `json:"id"`
	GUID         string `json:"guid"`
	Title        string `json:"title"`
	EnclosureURL string `json:"enclosureUrl"`
	EnclosureLen int64  `json:"enclosureLength"`
	Duration     int    `json:"duration"`
	Image        string `json:"image"`
	FeedImage    string `json:"feedImage"`
	FeedID       int64  `json:"feedId"`
	FeedTitle    string `json:"feedTitle"`
	FeedAuthor   string `json:"feedAuthor"`
	FeedURL      string `json:"feedUrl"`
	FeedGUID     string `json:"podcastGuid"`
}

type statusEnvelope struct {
	Status      json.RawMessage `json:"status"`
	Description string          `json:"description"`
}

// ok accepts "true", true and a missing status.
func (e statusEnvelope) ok() bool {
	s := strings.Trim(strings.TrimSpace(string(e.Status)), `"`)
	return s == "" || strings.EqualFold(s, "true")
}

// object decodes raw into out when it is a JSON object. The index returns []
// instead of an object for empty results.
func object(raw json.RawMessage, out interface{}) (bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// FeedByGUID 按 podcast:guid 查询 feed
func (c *Client) FeedByGUID(ctx context.Context, feedGUID string) Lookup[Feed] {
	var resp struct {
		statusEnvelope
		Feed json.RawMessage `json:"feed"`
	}
	if err := c.get(ctx, "/podcasts/byguid", url.Values{"guid": {feedGUID}}, &resp); err != nil {
		logger.Debug("[FeedByGUID] 查询失败", logger.String("feedGuid", feedGUID), logger.ErrorField(err))
		return fromErr[Feed]("feed by guid", err)
	}
	if !resp.ok() {
		return APIError[Feed](resp.Description, nil)
	}
	var feed Feed
	found, err := object(resp.Feed, &feed)
	if err != nil {
		return APIError[Feed]("decode feed", err)
	}
	if !found || feed.ID == 0 {
		return NotFound[Feed]()
	}
	return Found(feed)
}

// EpisodesByFeedID 列出 feed 的全部单集
func (c *Client) EpisodesByFeedID(ctx context.Context, feedID int64) Lookup[[]Episode] {
	var resp struct {
		statusEnvelope
		Items []Episode `json:"items"`
	}
	q := url.Values{"id": {strconv.FormatInt(feedID, 10)}, "max": {"1000"}}
	if err := c.get(ctx, "/episodes/byfeedid", q, &resp); err != nil {
		logger.Debug("[EpisodesByFeedID] 查询失败", logger.Int64("feedId", feedID), logger.ErrorField(err))
		return fromErr[[]Episode]("episodes by feed id", err)
	}
	if !resp.ok() {
		return APIError[[]Episode](resp.Description, nil)
	}
	if len(resp.Items) == 0 {
		return NotFound[[]Episode]()
	}
	return Found(resp.Items)
}

// EpisodeByGUID 按单集 guid 全局查询，feedGUID 可为空
func (c *Client) EpisodeByGUID(ctx context.Context, itemGUID, feedGUID string) Lookup[Episode] {
	var resp struct {
		statusEnvelope
		Episode json.RawMessage `json:"episode"`
	}
	q := url.Values{"guid": {itemGUID}}
	if feedGUID != "" {
		q.Set("podcastguid", feedGUID)
	}
	if err := c.get(ctx, "/episodes/byguid", q, &resp); err != nil {
		logger.Debug("[EpisodeByGUID] 查询失败", logger.String("itemGuid", itemGUID), logger.ErrorField(err))
		return fromErr[Episode]("episode by guid", err)
	}
	if !resp.ok() {
		return APIError[Episode](resp.Description, nil)
	}
	var ep Episode
	found, err := object(resp.Episode, &ep)
	if err != nil {
		return APIError[Episode]("decode episode", err)
	}
	if !found || ep.GUID == "" {
		return NotFound[Episode]()
	}
	return Found(ep)
}

// FindEpisode returns the episode whose guid equals itemGUID.
func FindEpisode(episodes []Episode, itemGUID string) (Episode, bool) {
	itemGUID = strings.TrimSpace(itemGUID)
	for _, ep := range episodes {
		if strings.TrimSpace(ep.GUID) == itemGUID {
			return ep, true
		}
	}
	return Episode{}, false
}

func (e Episode) String() string {
	return fmt.Sprintf("%s (%s)", e.Title, e.GUID)
}
