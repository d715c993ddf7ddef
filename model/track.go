package model

import "time"

// ResolutionSource 解析结果来源
type ResolutionSource string

const (
	SourceCache       ResolutionSource = "cache"
	SourceDatabase    ResolutionSource = "database"
	SourceIndexAPI    ResolutionSource = "index-api"
	SourceDirectFetch ResolutionSource = "direct-fetch"
	SourceUnresolved  ResolutionSource = "unresolved"
)

// DefaultMedium is assumed when a remote item omits its medium.
const DefaultMedium = "music"

// RemoteItemReference Podcasting 2.0 remoteItem 引用
type RemoteItemReference struct {
	FeedGUID string `json:"feedGuid"`
	ItemGUID string `json:"itemGuid"`
	Medium   string `json:"medium,omitempty"`
	// FeedURL is an optional hint (podcast:remoteItem feedUrl attribute).
	FeedURL string `json:"feedUrl,omitempty"`
}

// ResolvedTrack 解析结果
type ResolvedTrack struct {
	Title            string           `json:"title"`
	Artist           string           `json:"artist"`
	AudioURL         string           `json:"audioUrl"`
	Image            string           `json:"image,omitempty"`
	DurationSeconds  int              `json:"durationSeconds"`
	FeedTitle        string           `json:"feedTitle,omitempty"`
	FeedGUID         string           `json:"feedGuid"`
	ItemGUID         string           `json:"itemGuid"`
	ResolutionSource ResolutionSource `json:"resolutionSource"`
	// OriginSource is the tier that originally produced a cached track.
	OriginSource ResolutionSource `json:"originSource,omitempty"`
	ResolvedAt   time.Time        `json:"resolvedAt"`
}

// Playable reports whether the track carries a usable audio URL.
func (t ResolvedTrack) Playable() bool {
	return t.ResolutionSource != SourceUnresolved && t.AudioURL != ""
}

// Unresolved builds the terminal placeholder for ref.
func Unresolved(ref RemoteItemReference, at time.Time) ResolvedTrack {
	return ResolvedTrack{
		FeedGUID:         ref.FeedGUID,
		ItemGUID:         ref.ItemGUID,
		ResolutionSource: SourceUnresolved,
		ResolvedAt:       at,
	}
}

// ResolvedPlaylist 整个歌单的解析聚合结果
type ResolvedPlaylist struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	FeedURL    string          `json:"feedUrl"`
	Tracks     []ResolvedTrack `json:"tracks"`
	Total      int             `json:"total"`      // remote items in the playlist
	Unresolved int             `json:"unresolved"` // items that produced no playable track
	Value      *ValueBlock     `json:"value,omitempty"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}
