package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"v4vfm/core/value"
	"v4vfm/model"
)

// CatalogEntries converts a music feed into catalog rows. Value blocks are
// stored as JSON in the form value.ParseJSON reads back. Items without a guid
// or enclosure are skipped.
func CatalogEntries(data []byte, feedURL string) (*model.CatalogFeed, []*model.CatalogTrack, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	channel := xmlquery.FindOne(doc, "//channel")
	if channel == nil {
		return nil, nil, fmt.Errorf("%w: no channel element", ErrParse)
	}
	ch := readChannel(channel)
	if ch.guid == "" {
		return nil, nil, fmt.Errorf("%w: feed has no podcast:guid", ErrParse)
	}

	feedRow := &model.CatalogFeed{
		GUID:   ch.guid,
		URL:    strings.TrimSpace(feedURL),
		Title:  ch.title,
		Artist: ch.author,
		Image:  ch.image,
	}
	if feedRow.ValueJSON, err = valueJSON(xmlquery.FindOne(channel, podcastValueExpr)); err != nil {
		return nil, nil, err
	}

	var tracks []*model.CatalogTrack
	for _, n := range xmlquery.Find(channel, "item") {
		it, ok := readItem(n, ch)
		if !ok {
			continue
		}
		row := &model.CatalogTrack{
			GUID:            it.GUID,
			FeedGUID:        ch.guid,
			Title:           it.Title,
			Artist:          it.Artist,
			AudioURL:        it.URL,
			Image:           it.Image,
			DurationSeconds: it.DurationSeconds,
			FeedTitle:       ch.title,
		}
		if row.ValueJSON, err = valueJSON(xmlquery.FindOne(n, podcastValueExpr)); err != nil {
			return nil, nil, err
		}
		tracks = append(tracks, row)
	}
	return feedRow, tracks, nil
}

// valueJSON returns "" when the node carries no usable value block.
func valueJSON(n *xmlquery.Node) (string, error) {
	block, ok := value.FromNode(n)
	if !ok {
		return "", nil
	}
	b, err := json.Marshal(block)
	if err != nil {
		return "", fmt.Errorf("encode value block: %w", err)
	}
	return string(b), nil
}
