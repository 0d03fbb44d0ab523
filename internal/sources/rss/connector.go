package rss

import (
	"context"
	"fmt"
	"strings"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/retrieval"
)

// Network is the source name stamped on RSS items.
const Network = "rss"

// Connector serves RSSFeed through a Fetcher. A feed is a single page; entries
// carry no ordering guarantee.
type Connector struct {
	fetcher Fetcher
	options FetchOptions
}

var _ retrieval.Connector = (*Connector)(nil)

func NewConnector(fetcher Fetcher, options FetchOptions) (*Connector, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("rss fetcher is required")
	}
	return &Connector{fetcher: fetcher, options: options}, nil
}

func (c *Connector) Network() string {
	return Network
}

func (c *Connector) RSSPager(feed *core.RSSFeed) (*retrieval.Pager, error) {
	if strings.TrimSpace(feed.URL) == "" {
		return nil, retrieval.Misconfigured(feed.FeedID(), "rss feed requires a url")
	}
	feedURL := feed.URL
	return &retrieval.Pager{
		Order: retrieval.Unordered,
		Fetch: func(ctx context.Context, cursor string) (retrieval.Page, error) {
			items, err := c.fetcher.Fetch(ctx, feedURL, c.options)
			if err != nil {
				return retrieval.Page{}, retrieval.Transport(Network, err)
			}
			records := make([]retrieval.Record, 0, len(items))
			for i := range items {
				records = append(records, entry(items[i]))
			}
			return retrieval.Page{Records: records}, nil
		},
	}, nil
}

func (c *Connector) AccountPager(*core.AccountFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) KeywordsPager(*core.KeywordsFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) LocationPager(*core.LocationFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) GroupPager(*core.GroupFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) URLPager(*core.URLFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

// ResolveUser always reports an absent user; feeds expose author names only.
func (c *Connector) ResolveUser(context.Context, string) (*core.StreamUser, error) {
	return nil, nil
}

type entry Item

// Normalize keys the item by its link, which is the one identifier every feed
// flavour carries.
func (e entry) Normalize() (*core.Item, error) {
	if e.Link == "" {
		return nil, retrieval.Malformed(e.GUID, "entry has no link")
	}
	if e.PublishedAt.IsZero() {
		return nil, retrieval.Malformed(e.Link, "entry has no publication time")
	}

	body := e.Content
	if body == "" {
		body = e.Description
	}
	htmlBody, media, err := ExtractImagesFromHTML(body, e.Link)
	if err != nil {
		htmlBody = body
	}
	text, err := ConvertHTMLToMarkdown(htmlBody)
	if err != nil {
		return nil, retrieval.Malformed(e.Link, "convert body: %v", err)
	}

	item := &core.Item{
		ID:              e.Link,
		Source:          Network,
		Title:           strings.TrimSpace(e.Title),
		Text:            text,
		HTML:            htmlBody,
		URL:             e.Link,
		PublicationTime: e.PublishedAt,
		UserID:          strings.TrimSpace(e.Author),
	}
	for _, category := range e.Categories {
		if category = strings.TrimSpace(category); category != "" {
			item.Tags = append(item.Tags, category)
		}
	}
	item.Media = append(item.Media, enclosureMedia(e.Enclosures)...)
	if e.ImageURL != "" {
		item.Media = append(item.Media, core.MediaItem{ID: e.ImageURL, URL: e.ImageURL, Type: core.MediaImage})
	}
	item.Media = append(item.Media, media...)
	item.Media = dedupeMedia(item.Media)
	return item, nil
}

func enclosureMedia(enclosures []Enclosure) []core.MediaItem {
	out := make([]core.MediaItem, 0, len(enclosures))
	for _, enclosure := range enclosures {
		mediaType := core.MediaLink
		switch {
		case strings.Contains(enclosure.Type, "image"):
			mediaType = core.MediaImage
		case strings.Contains(enclosure.Type, "video"):
			mediaType = core.MediaVideo
		}
		out = append(out, core.MediaItem{ID: enclosure.URL, URL: enclosure.URL, Type: mediaType})
	}
	return out
}

func dedupeMedia(media []core.MediaItem) []core.MediaItem {
	if len(media) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := media[:0]
	for _, m := range media {
		if seen[m.URL] {
			continue
		}
		seen[m.URL] = true
		out = append(out, m)
	}
	return out
}
