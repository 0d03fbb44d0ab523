package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bakkerme/curator-streams/internal/retry"
	"github.com/bakkerme/curator-streams/internal/sources/rss"
)

// Fetcher is safe for concurrent use. Each fetch parses with its own
// gofeed.Parser since the parser initializes its translators lazily.
type Fetcher struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}, userAgent: userAgent, now: time.Now}
}

func (f *Fetcher) newParser(userAgent string) *gofeed.Parser {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = f.userAgent
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return parser
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) ([]rss.Item, error) {
	parser := f.newParser(options.UserAgent)
	var feed *gofeed.Feed
	err := retry.Do(ctx, retry.Config{Attempts: 3, BaseDelay: 200 * time.Millisecond, Retryable: retryable}, func() error {
		parsed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return err
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	maxAge := options.MaxAge
	if maxAge <= 0 {
		maxAge = rss.DefaultMaxAge
	}
	cutoff := f.now().Add(-maxAge)

	items := make([]rss.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item := convert(entry)
		if !item.PublishedAt.IsZero() && item.PublishedAt.Before(cutoff) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func convert(entry *gofeed.Item) rss.Item {
	item := rss.Item{
		GUID:        entry.GUID,
		Title:       entry.Title,
		Link:        entry.Link,
		Description: entry.Description,
		Content:     entry.Content,
		Categories:  entry.Categories,
	}
	if entry.Author != nil {
		item.Author = entry.Author.Name
	}
	if entry.PublishedParsed != nil {
		item.PublishedAt = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		item.PublishedAt = entry.UpdatedParsed.UTC()
	}
	if entry.Image != nil {
		item.ImageURL = entry.Image.URL
	}
	for _, enclosure := range entry.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		item.Enclosures = append(item.Enclosures, rss.Enclosure{URL: enclosure.URL, Type: enclosure.Type})
	}
	return item
}

// retryable retries server errors and rate limiting but not other HTTP statuses.
func retryable(err error) bool {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
