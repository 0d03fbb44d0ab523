// Package web retrieves articles from arbitrary HTML pages. Every <article>
// element of a page becomes an item; pagination follows rel="next" links.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/retrieval"
	"github.com/bakkerme/curator-streams/internal/retry"
)

// Network is the source name stamped on web items.
const Network = "web"

const maxBodyBytes = 5 << 20

type Config struct {
	Timeout   time.Duration
	UserAgent string
	// Client overrides the HTTP client built from Timeout.
	Client *http.Client
}

type Connector struct {
	client    *http.Client
	userAgent string
	retries   retry.Config
}

var _ retrieval.Connector = (*Connector)(nil)

func NewConnector(cfg Config) *Connector {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "curator-streams/0.1"
	}
	return &Connector{
		client:    client,
		userAgent: userAgent,
		retries:   retry.Config{Attempts: 3, BaseDelay: 200 * time.Millisecond},
	}
}

func (c *Connector) Network() string {
	return Network
}

func (c *Connector) URLPager(feed *core.URLFeed) (*retrieval.Pager, error) {
	start, err := url.Parse(strings.TrimSpace(feed.URL))
	if err != nil || start.Host == "" || (start.Scheme != "http" && start.Scheme != "https") {
		return nil, retrieval.Misconfigured(feed.FeedID(), "url feed requires an absolute http(s) url")
	}
	visited := map[string]bool{}
	return &retrieval.Pager{
		Order: retrieval.Unordered,
		Fetch: func(ctx context.Context, cursor string) (retrieval.Page, error) {
			target := start.String()
			if cursor != "" {
				target = cursor
			}
			visited[target] = true
			page, err := c.fetch(ctx, target)
			if err != nil {
				return retrieval.Page{}, retrieval.Transport(Network, err)
			}
			if visited[page.Next] {
				page.Next = ""
			}
			return page, nil
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

func (c *Connector) RSSPager(*core.RSSFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

// ResolveUser always reports an absent user; pages expose author names only.
func (c *Connector) ResolveUser(context.Context, string) (*core.StreamUser, error) {
	return nil, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func (c *Connector) fetch(ctx context.Context, target string) (retrieval.Page, error) {
	var page retrieval.Page
	err := retry.Do(ctx, c.retries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &statusError{code: resp.StatusCode}
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return retry.Permanent(&statusError{code: resp.StatusCode})
		}

		doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return retry.Permanent(fmt.Errorf("parse html: %w", err))
		}
		base := resp.Request.URL
		page = retrieval.Page{
			Records: extractRecords(doc, base),
			Next:    nextPage(resp.Header, doc, base),
		}
		return nil
	})
	if err != nil {
		return retrieval.Page{}, fmt.Errorf("get %s: %w", target, err)
	}
	return page, nil
}

var linkNext = regexp.MustCompile(`<([^>]+)>\s*;[^,]*\brel="?([^",]*\bnext\b[^",]*)"?`)

// nextPage prefers the Link response header over in-document rel=next links.
func nextPage(header http.Header, doc *goquery.Document, base *url.URL) string {
	for _, value := range header.Values("Link") {
		for _, match := range linkNext.FindAllStringSubmatch(value, -1) {
			if next := resolve(base, match[1]); next != "" {
				return next
			}
		}
	}
	href, ok := doc.Find(`link[rel~="next"], a[rel~="next"]`).First().Attr("href")
	if !ok {
		return ""
	}
	return resolve(base, href)
}

func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
