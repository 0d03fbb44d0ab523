package rss

import (
	"context"
	"time"
)

// DefaultMaxAge is the window applied when FetchOptions.MaxAge is zero.
const DefaultMaxAge = 30 * 24 * time.Hour

// FetchOptions controls RSS fetch behavior.
type FetchOptions struct {
	// MaxAge drops entries published longer ago than this window.
	MaxAge    time.Duration
	UserAgent string
}

// Item represents a single RSS or Atom entry. PublishedAt is zero when the entry
// carries no parseable publication or update date.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time
	Categories  []string
	Enclosures  []Enclosure
	ImageURL    string
}

// Enclosure is a media attachment of an entry.
type Enclosure struct {
	URL  string
	Type string
}

// Fetcher fetches and parses RSS/Atom feeds.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, options FetchOptions) ([]Item, error)
}
