package model

import "time"

// CatalogFeed 目录中的 feed 记录
type CatalogFeed struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GUID      string    `gorm:"column:guid;size:64;uniqueIndex" json:"guid"`
	URL       string    `gorm:"column:url;size:512" json:"url"`
	Title     string    `gorm:"size:255" json:"title"`
	Artist    string    `gorm:"size:255" json:"artist"`
	Image     string    `gorm:"size:512" json:"image"`
	ValueJSON string    `gorm:"column:value_json;type:text" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (CatalogFeed) TableName() string { return "feeds" }

// CatalogTrack 目录中的 track 记录
type CatalogTrack struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GUID            string    `gorm:"column:guid;size:255;index" json:"guid"`
	FeedGUID        string    `gorm:"column:feed_guid;size:64;index" json:"feedGuid"`
	Title           string    `gorm:"size:255" json:"title"`
	Artist          string    `gorm:"size:255" json:"artist"`
	AudioURL        string    `gorm:"column:audio_url;size:1024" json:"audioUrl"`
	Image           string    `gorm:"size:512" json:"image"`
	DurationSeconds int       `gorm:"column:duration" json:"duration"`
	FeedTitle       string    `gorm:"column:feed_title;size:255" json:"feedTitle"`
	ValueJSON       string    `gorm:"column:value_json;type:text" json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (CatalogTrack) TableName() string { return "tracks" }

// CacheEntry 数据库兜底的缓存表
type CacheEntry struct {
	Key        string    `gorm:"primaryKey;size:255"`
	Payload    []byte    `gorm:"type:mediumblob"`
	StoredAt   time.Time `gorm:"index"`
	TTLMillis  int64     `gorm:"column:ttl_ms"`
}

func (CacheEntry) TableName() string { return "resolution_cache" }
