package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"v4vfm/core/value"
	"v4vfm/model"
)

// MediumPublisher marks remote items that point at a publisher feed, not a track.
const MediumPublisher = "publisher"

// Playlist 解析后的 musicL 歌单 feed
type Playlist struct {
	GUID        string
	Title       string
	Image       string
	RemoteItems []model.RemoteItemReference
	Value       *model.ValueBlock
}

// ParsePlaylist reads a playlist feed: channel metadata, its value block and
// its podcast:remoteItem entries in document order.
func ParsePlaylist(data []byte) (*Playlist, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	channel := xmlquery.FindOne(doc, "//channel")
	if channel == nil {
		return nil, fmt.Errorf("%w: no channel element", ErrParse)
	}

	ch := readChannel(channel)
	pl := &Playlist{
		GUID:        ch.guid,
		Title:       ch.title,
		Image:       ch.image,
		RemoteItems: remoteItems(doc),
	}
	if block, ok := value.FromNode(xmlquery.FindOne(channel, podcastValueExpr)); ok {
		pl.Value = block
	}
	return pl, nil
}

// ParseRemoteItems lists the track references of a feed. Publisher references
// and entries without both guids are skipped; medium defaults to music.
func ParseRemoteItems(data []byte) ([]model.RemoteItemReference, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return remoteItems(doc), nil
}

func remoteItems(doc *xmlquery.Node) []model.RemoteItemReference {
	var refs []model.RemoteItemReference
	for _, n := range xmlquery.Find(doc, remoteItemExpr) {
		ref := model.RemoteItemReference{
			FeedGUID: strings.TrimSpace(n.SelectAttr("feedGuid")),
			ItemGUID: strings.TrimSpace(n.SelectAttr("itemGuid")),
			Medium:   strings.ToLower(strings.TrimSpace(n.SelectAttr("medium"))),
			FeedURL:  strings.TrimSpace(n.SelectAttr("feedUrl")),
		}
		if ref.Medium == "" {
			ref.Medium = model.DefaultMedium
		}
		if ref.Medium == MediumPublisher || ref.FeedGUID == "" || ref.ItemGUID == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}
