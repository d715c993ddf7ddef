package value

import (
	"context"
	"fmt"

	"v4vfm/model"
)

// CatalogSource is the relational lookup the inheritance helpers read from.
type CatalogSource interface {
	GetTrackByGUID(ctx context.Context, guid string) (*model.CatalogTrack, error)
	GetFeedByGUID(ctx context.Context, guid string) (*model.CatalogFeed, error)
}

// Effective returns the item block when present, otherwise the feed block.
// Inheritance happens at read time only; nothing is copied back to storage.
func Effective(item, feed *model.ValueBlock) *model.ValueBlock {
	if item != nil && len(item.Recipients) > 0 {
		return item
	}
	if feed != nil && len(feed.Recipients) > 0 {
		return feed
	}
	return nil
}

// LoadFeed reads the stored value block of a feed. (nil, nil) means no V4V.
func LoadFeed(ctx context.Context, src CatalogSource, feedGUID string) (*model.ValueBlock, error) {
	feed, err := src.GetFeedByGUID(ctx, feedGUID)
	if err != nil {
		return nil, fmt.Errorf("load feed %s: %w", feedGUID, err)
	}
	if feed == nil {
		return nil, nil
	}
	block, _ := ParseJSON([]byte(feed.ValueJSON))
	return block, nil
}

// LoadEffective reads the track's own block and falls back to its feed's block.
func LoadEffective(ctx context.Context, src CatalogSource, trackGUID string) (*model.ValueBlock, error) {
	track, err := src.GetTrackByGUID(ctx, trackGUID)
	if err != nil {
		return nil, fmt.Errorf("load track %s: %w", trackGUID, err)
	}
	if track == nil {
		return nil, nil
	}
	itemBlock, _ := ParseJSON([]byte(track.ValueJSON))
	if itemBlock != nil {
		return itemBlock, nil
	}
	if track.FeedGUID == "" {
		return nil, nil
	}
	return LoadFeed(ctx, src, track.FeedGUID)
}
