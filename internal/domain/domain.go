package domain

import (
	"encoding/json"
	"time"
)

// Feed is one tracked subscription, keyed by its source URL.
type Feed struct {
	ID        int64     `json:"feed_id"`
	URL       string    `json:"feed_url"`
	Title     string    `json:"title"`
	DateAdded time.Time `json:"date_added"`
}

// RawFeed is an append-only snapshot of a parsed feed document.
type RawFeed struct {
	ID        int64           `json:"raw_feed_id"`
	FeedID    int64           `json:"feed_id"`
	DateAdded time.Time       `json:"date_added"`
	Data      json.RawMessage `json:"data"`
}

// Episode is one persisted feed item.
type Episode struct {
	ID              int64      `json:"feed_item_id"`
	FeedID          int64      `json:"feed_id"`
	GUID            string     `json:"guid"`
	DateAdded       time.Time  `json:"date_added"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	PublishedAt     time.Time  `json:"pub_date"`
	Duration        *string    `json:"itunes_duration"`
	EnclosureURL    string     `json:"enclosure_url"`
	EnclosureLength int64      `json:"enclosure_length"`
	EnclosureType   string     `json:"enclosure_type"`
	Season          *int       `json:"itunes_season"`
	DownloadPath    *string    `json:"download_path"`
	DownloadedAt    *time.Time `json:"downloaded_at,omitempty"`
	DownloadBytes   *int64     `json:"download_bytes,omitempty"`
}

// EpisodeInput carries the metadata refreshed on every sighting of an item.
type EpisodeInput struct {
	GUID            string
	Title           string
	Description     string
	PublishedAt     time.Time
	Duration        *string
	EnclosureURL    string
	EnclosureLength int64
	EnclosureType   string
	Season          *int
}

// FeedDetail is a feed with its most recent episodes and latest snapshot.
type FeedDetail struct {
	Feed
	Items   []Episode `json:"items"`
	RawFeed *RawFeed  `json:"raw_feed"`
}

// EpisodeFilter narrows episode listings. Zero values match everything.
type EpisodeFilter struct {
	FeedID      *int64
	Title       string
	Description string
}

// FeedExport is the subset of a feed written to OPML.
type FeedExport struct {
	Title   string
	FeedURL string
}
