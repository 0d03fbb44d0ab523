package core

import (
	"sync"
	"time"
)

// FeedKind names a Feed variant.
type FeedKind string

const (
	FeedKindAccount  FeedKind = "account"
	FeedKindKeywords FeedKind = "keywords"
	FeedKindLocation FeedKind = "location"
	FeedKindGroup    FeedKind = "group"
	FeedKindURL      FeedKind = "url"
	FeedKindRSS      FeedKind = "rss"
)

// DefaultRadiusKm is the LocationFeed radius used when none is configured.
const DefaultRadiusKm = 1.5

// Feed describes one retrieval intent together with its incremental sync state.
// The set of implementations is closed: AccountFeed, KeywordsFeed, LocationFeed,
// GroupFeed, URLFeed and RSSFeed.
type Feed interface {
	FeedID() string
	FeedLabel() string
	Kind() FeedKind
	// Watermark returns the timestamp at or before which content counts as already seen.
	Watermark() time.Time
	// SetWatermark advances the watermark. Older values are ignored so the watermark
	// never moves backwards; it reports whether the value changed.
	SetWatermark(t time.Time) bool

	sealed()
}

// IsNil reports whether feed is nil or a nil pointer of one of the variants.
func IsNil(feed Feed) bool {
	switch f := feed.(type) {
	case nil:
		return true
	case *AccountFeed:
		return f == nil
	case *KeywordsFeed:
		return f == nil
	case *LocationFeed:
		return f == nil
	case *GroupFeed:
		return f == nil
	case *URLFeed:
		return f == nil
	case *RSSFeed:
		return f == nil
	default:
		return false
	}
}

// FeedBase carries the attributes shared by every Feed variant.
type FeedBase struct {
	ID    string
	Label string
	// Since is the initial watermark. Once the feed is shared, read and
	// advance it only through Watermark and SetWatermark.
	Since time.Time

	mu sync.RWMutex
}

func (b *FeedBase) FeedID() string {
	return b.ID
}

func (b *FeedBase) FeedLabel() string {
	return b.Label
}

func (b *FeedBase) Watermark() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Since
}

func (b *FeedBase) SetWatermark(t time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !t.After(b.Since) {
		return false
	}
	b.Since = t.UTC()
	return true
}

func (b *FeedBase) sealed() {}

// AccountFeed retrieves the timeline of one account. At least one of UserID or
// Username must be set.
type AccountFeed struct {
	FeedBase
	UserID   string
	Username string
}

func (f *AccountFeed) Kind() FeedKind { return FeedKindAccount }

// KeywordsFeed searches for an ordered set of keyword phrases.
type KeywordsFeed struct {
	FeedBase
	Keywords []string
}

func (f *KeywordsFeed) Kind() FeedKind { return FeedKindKeywords }

// LocationFeed searches around a center point.
type LocationFeed struct {
	FeedBase
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

func (f *LocationFeed) Kind() FeedKind { return FeedKindLocation }

// GroupFeed retrieves the timeline of a group or list identified by owner and slug.
type GroupFeed struct {
	FeedBase
	Owner string
	Slug  string
}

func (f *GroupFeed) Kind() FeedKind { return FeedKindGroup }

// URLFeed retrieves articles published on an arbitrary web page.
type URLFeed struct {
	FeedBase
	URL string
}

func (f *URLFeed) Kind() FeedKind { return FeedKindURL }

// RSSFeed retrieves entries of an RSS or Atom document.
type RSSFeed struct {
	FeedBase
	URL string
}

func (f *RSSFeed) Kind() FeedKind { return FeedKindRSS }

var (
	_ Feed = (*AccountFeed)(nil)
	_ Feed = (*KeywordsFeed)(nil)
	_ Feed = (*LocationFeed)(nil)
	_ Feed = (*GroupFeed)(nil)
	_ Feed = (*URLFeed)(nil)
	_ Feed = (*RSSFeed)(nil)
)
