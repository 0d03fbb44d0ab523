package retrieval

import (
	"context"

	"github.com/bakkerme/curator-streams/internal/core"
)

// Connector adapts one network to the engine. It has one method per Feed variant so
// that adding a variant breaks every connector until it handles the new kind.
// A method returns ErrUnsupported when the network has no such capability and a
// *ConfigurationError when the feed lacks the fields it needs.
type Connector interface {
	// Network names the network, e.g. "reddit". It is stamped on every item.
	Network() string
	AccountPager(feed *core.AccountFeed) (*Pager, error)
	KeywordsPager(feed *core.KeywordsFeed) (*Pager, error)
	LocationPager(feed *core.LocationFeed) (*Pager, error)
	GroupPager(feed *core.GroupFeed) (*Pager, error)
	URLPager(feed *core.URLFeed) (*Pager, error)
	RSSPager(feed *core.RSSFeed) (*Pager, error)
	// ResolveUser looks up an author profile. A nil user with a nil error means absent.
	ResolveUser(ctx context.Context, id string) (*core.StreamUser, error)
}

// Order declares the termination rule set a pager follows.
type Order int

const (
	// Unordered sources give no ordering guarantee; only the budget and the end of
	// pages stop pagination, and records at or before the watermark are skipped.
	Unordered Order = iota
	// ReverseChronological sources deliver newest first; the first record at or
	// before the watermark ends retrieval.
	ReverseChronological
)

func (o Order) String() string {
	if o == ReverseChronological {
		return "reverse_chronological"
	}
	return "unordered"
}

// MediaResolver is implemented by connectors that can look up a single media
// object by its network id.
type MediaResolver interface {
	ResolveMedia(ctx context.Context, id string) (*core.MediaItem, error)
}

// Record is one raw entry of a page.
type Record interface {
	// Normalize converts the record into an Item. A *ParseError skips the record.
	Normalize() (*core.Item, error)
}

// RecordFunc adapts a function to Record.
type RecordFunc func() (*core.Item, error)

func (f RecordFunc) Normalize() (*core.Item, error) {
	return f()
}

// Page is one page of records. An empty Next means there are no more pages.
type Page struct {
	Records []Record
	Next    string
}

// PageFunc fetches the page identified by cursor; the first page has an empty cursor.
// Failures must be returned as errors (ideally *TransportError), never as an empty Next.
type PageFunc func(ctx context.Context, cursor string) (Page, error)

// Pager is a connector's retrieval strategy for one feed.
type Pager struct {
	Fetch PageFunc
	Order Order
}
