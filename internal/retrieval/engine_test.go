package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/bakkerme/curator-streams/internal/core"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return base.Add(time.Duration(minute) * time.Minute)
}

type fakeRecord struct {
	id        string
	minute    int
	user      string
	malformed bool
}

func (r fakeRecord) Normalize() (*core.Item, error) {
	if r.malformed {
		return nil, Malformed(r.id, "bad payload")
	}
	return &core.Item{ID: r.id, PublicationTime: at(r.minute), UserID: r.user}, nil
}

type fakePage struct {
	records []fakeRecord
	err     error
}

// fakeConnector serves scripted pages for account and keywords feeds.
type fakeConnector struct {
	order    Order
	pages    []fakePage
	endless  bool
	fetches  int
	users    map[string]*core.StreamUser
	resolves map[string]int
}

func (c *fakeConnector) Network() string { return "fake" }

func (c *fakeConnector) pager() *Pager {
	return &Pager{Order: c.order, Fetch: func(ctx context.Context, cursor string) (Page, error) {
		idx := 0
		if cursor != "" {
			idx, _ = strconv.Atoi(cursor)
		}
		c.fetches++
		if c.endless {
			return Page{
				Records: []Record{fakeRecord{id: fmt.Sprintf("e%d", idx), minute: 1000 - idx}},
				Next:    strconv.Itoa(idx + 1),
			}, nil
		}
		p := c.pages[idx]
		if p.err != nil {
			return Page{}, p.err
		}
		page := Page{}
		for _, r := range p.records {
			page.Records = append(page.Records, r)
		}
		if idx+1 < len(c.pages) {
			page.Next = strconv.Itoa(idx + 1)
		}
		return page, nil
	}}
}

func (c *fakeConnector) AccountPager(feed *core.AccountFeed) (*Pager, error) {
	if feed.UserID == "" && feed.Username == "" {
		return nil, Misconfigured(feed.ID, "username or user id is required")
	}
	return c.pager(), nil
}

func (c *fakeConnector) KeywordsPager(feed *core.KeywordsFeed) (*Pager, error) {
	return c.pager(), nil
}

func (c *fakeConnector) LocationPager(feed *core.LocationFeed) (*Pager, error) {
	return nil, ErrUnsupported
}

func (c *fakeConnector) GroupPager(feed *core.GroupFeed) (*Pager, error) {
	return nil, ErrUnsupported
}

func (c *fakeConnector) URLPager(feed *core.URLFeed) (*Pager, error) {
	return nil, ErrUnsupported
}

func (c *fakeConnector) RSSPager(feed *core.RSSFeed) (*Pager, error) {
	return nil, ErrUnsupported
}

func (c *fakeConnector) ResolveUser(ctx context.Context, id string) (*core.StreamUser, error) {
	if c.resolves == nil {
		c.resolves = map[string]int{}
	}
	c.resolves[id]++
	return c.users[id], nil
}

func accountFeed(sinceMinute int) *core.AccountFeed {
	return &core.AccountFeed{
		FeedBase: core.FeedBase{ID: "acct", Label: "watch", Since: at(sinceMinute)},
		Username: "someone",
	}
}

func itemIDs(items []*core.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestRetrieveStopsAtWatermarkForReverseChronologicalSource(t *testing.T) {
	connector := &fakeConnector{
		order: ReverseChronological,
		pages: []fakePage{
			{records: []fakeRecord{{id: "t10", minute: 10}, {id: "t9", minute: 9}, {id: "t8", minute: 8}}},
			{records: []fakeRecord{{id: "t7", minute: 7}, {id: "t6", minute: 6}}},
		},
	}
	engine := NewEngine(connector, nil)

	resp := engine.Retrieve(context.Background(), accountFeed(8), core.Budget{MaxRequests: 5, MaxResults: 100})

	if got := itemIDs(resp.Items); len(got) != 2 || got[0] != "t10" || got[1] != "t9" {
		t.Fatalf("expected items [t10 t9], got %v", got)
	}
	if !resp.Watermark.Equal(at(10)) {
		t.Fatalf("expected watermark %v, got %v", at(10), resp.Watermark)
	}
	if resp.RequestsConsumed != 1 || connector.fetches != 1 {
		t.Fatalf("expected a single request, got consumed=%d fetches=%d", resp.RequestsConsumed, connector.fetches)
	}
	if resp.Stop != core.StopWatermark {
		t.Fatalf("expected stop %q, got %q", core.StopWatermark, resp.Stop)
	}
}

func TestRetrieveKeywordsSinglePage(t *testing.T) {
	connector := &fakeConnector{
		order: Unordered,
		pages: []fakePage{{records: []fakeRecord{{id: "a", minute: 20}, {id: "b", minute: 30}, {id: "c", minute: 25}}}},
	}
	feed := &core.KeywordsFeed{FeedBase: core.FeedBase{ID: "kw", Since: at(0)}, Keywords: []string{"golang"}}

	resp := NewEngine(connector, nil).Retrieve(context.Background(), feed, core.Budget{MaxRequests: 5, MaxResults: 100})

	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	if resp.RequestsConsumed != 1 {
		t.Fatalf("expected 1 request, got %d", resp.RequestsConsumed)
	}
	if !resp.Watermark.Equal(at(30)) {
		t.Fatalf("expected watermark at max record time, got %v", resp.Watermark)
	}
	if resp.Stop != core.StopExhausted {
		t.Fatalf("expected stop %q, got %q", core.StopExhausted, resp.Stop)
	}
}

func TestRetrieveUnorderedSourceSkipsOldRecordsWithoutStopping(t *testing.T) {
	connector := &fakeConnector{
		order: Unordered,
		pages: []fakePage{
			{records: []fakeRecord{{id: "new1", minute: 20}, {id: "old", minute: 3}, {id: "new2", minute: 15}}},
			{records: []fakeRecord{{id: "new3", minute: 12}}},
		},
	}
	feed := &core.KeywordsFeed{FeedBase: core.FeedBase{ID: "kw", Since: at(10)}, Keywords: []string{"x"}}

	resp := NewEngine(connector, nil).Retrieve(context.Background(), feed, core.Budget{MaxRequests: 5})

	got := itemIDs(resp.Items)
	want := []string{"new1", "new2", "new3"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if resp.RequestsConsumed != 2 {
		t.Fatalf("expected 2 requests, got %d", resp.RequestsConsumed)
	}
}

func TestRetrieveRespectsMaxRequests(t *testing.T) {
	for _, max := range []int{1, 3, 7} {
		connector := &fakeConnector{order: Unordered, endless: true}
		resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: max})
		if connector.fetches != max {
			t.Fatalf("max=%d: expected %d fetches, got %d", max, max, connector.fetches)
		}
		if resp.RequestsConsumed != max {
			t.Fatalf("max=%d: expected %d requests consumed, got %d", max, max, resp.RequestsConsumed)
		}
		if resp.Stop != core.StopMaxRequests {
			t.Fatalf("max=%d: expected stop %q, got %q", max, core.StopMaxRequests, resp.Stop)
		}
	}
}

func TestRetrieveDefaultsToSingleRequest(t *testing.T) {
	connector := &fakeConnector{order: Unordered, endless: true}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{})
	if connector.fetches != 1 || resp.RequestsConsumed != 1 {
		t.Fatalf("expected one fetch with zero budget, got fetches=%d consumed=%d", connector.fetches, resp.RequestsConsumed)
	}
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	connector := &fakeConnector{
		order: ReverseChronological,
		pages: []fakePage{
			{records: []fakeRecord{{id: "a", minute: 50}, {id: "b", minute: 49}, {id: "c", minute: 48}}},
			{records: []fakeRecord{{id: "d", minute: 47}}},
		},
	}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 10, MaxResults: 2})

	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if connector.fetches != 1 {
		t.Fatalf("expected pagination to stop after first page, got %d fetches", connector.fetches)
	}
	if resp.Stop != core.StopMaxResults {
		t.Fatalf("expected stop %q, got %q", core.StopMaxResults, resp.Stop)
	}
	if !resp.Watermark.Equal(at(50)) {
		t.Fatalf("expected watermark %v, got %v", at(50), resp.Watermark)
	}
}

func TestRetrieveKeepsItemsCollectedBeforeTransportError(t *testing.T) {
	boom := Transport("fake", errors.New("connection reset"))
	connector := &fakeConnector{
		order: Unordered,
		pages: []fakePage{
			{records: []fakeRecord{{id: "p1a", minute: 50}, {id: "p1b", minute: 49}}},
			{records: []fakeRecord{{id: "p2a", minute: 48}}},
			{err: boom},
			{records: []fakeRecord{{id: "p4a", minute: 46}}},
			{records: []fakeRecord{{id: "p5a", minute: 45}}},
		},
	}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 10})

	if got := itemIDs(resp.Items); fmt.Sprint(got) != "[p1a p1b p2a]" {
		t.Fatalf("expected items from pages 1-2, got %v", got)
	}
	if resp.RequestsConsumed != 2 {
		t.Fatalf("expected 2 requests consumed, got %d", resp.RequestsConsumed)
	}
	if resp.Stop != core.StopTransportError {
		t.Fatalf("expected stop %q, got %q", core.StopTransportError, resp.Stop)
	}
	var te *TransportError
	if !errors.As(resp.Err, &te) {
		t.Fatalf("expected TransportError, got %v", resp.Err)
	}
}

func TestRetrieveFailureBeforeFirstPageIsEmpty(t *testing.T) {
	connector := &fakeConnector{pages: []fakePage{{err: errors.New("dns failure")}}}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 3})
	if !resp.Empty() || resp.RequestsConsumed != 0 {
		t.Fatalf("expected empty response with zero requests, got %d items, %d requests", len(resp.Items), resp.RequestsConsumed)
	}
	if !resp.Watermark.Equal(at(0)) {
		t.Fatalf("expected unchanged watermark, got %v", resp.Watermark)
	}
}

func TestRetrieveUnsupportedVariantReturnsEmpty(t *testing.T) {
	connector := &fakeConnector{}
	feed := &core.LocationFeed{FeedBase: core.FeedBase{ID: "loc"}, Latitude: 40.6, Longitude: 22.9}

	resp := NewEngine(connector, nil).Retrieve(context.Background(), feed, core.Budget{MaxRequests: 3})

	if !resp.Empty() || resp.RequestsConsumed != 0 {
		t.Fatalf("expected empty response, got %d items", len(resp.Items))
	}
	if resp.Stop != core.StopUnsupported {
		t.Fatalf("expected stop %q, got %q", core.StopUnsupported, resp.Stop)
	}
	if !errors.Is(resp.Err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", resp.Err)
	}
	if connector.fetches != 0 {
		t.Fatalf("expected no fetches, got %d", connector.fetches)
	}
}

func TestRetrieveMisconfiguredFeedReturnsEmpty(t *testing.T) {
	connector := &fakeConnector{order: Unordered, endless: true}
	feed := &core.AccountFeed{FeedBase: core.FeedBase{ID: "nobody"}}

	resp := NewEngine(connector, nil).Retrieve(context.Background(), feed, core.Budget{MaxRequests: 3})

	var cfgErr *ConfigurationError
	if !errors.As(resp.Err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", resp.Err)
	}
	if resp.RequestsConsumed != 0 || connector.fetches != 0 {
		t.Fatalf("expected no requests, got %d", resp.RequestsConsumed)
	}
	if resp.Stop != core.StopMisconfigured {
		t.Fatalf("expected stop %q, got %q", core.StopMisconfigured, resp.Stop)
	}
}

func TestRetrieveSkipsMalformedRecords(t *testing.T) {
	connector := &fakeConnector{
		order: ReverseChronological,
		pages: []fakePage{
			{records: []fakeRecord{{id: "ok1", minute: 30}, {id: "bad", malformed: true}, {id: "ok2", minute: 29}}},
			{records: []fakeRecord{{id: "ok3", minute: 28}}},
		},
	}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 5})

	if got := itemIDs(resp.Items); fmt.Sprint(got) != "[ok1 ok2 ok3]" {
		t.Fatalf("expected malformed record to be skipped, got %v", got)
	}
	if resp.RequestsConsumed != 2 {
		t.Fatalf("expected pagination to continue, got %d requests", resp.RequestsConsumed)
	}
}

func TestRetrieveStampsFeedMetadataAndCachesUsers(t *testing.T) {
	alice := &core.StreamUser{ID: "alice", Name: "Alice"}
	connector := &fakeConnector{
		order: ReverseChronological,
		pages: []fakePage{
			{records: []fakeRecord{{id: "1", minute: 9, user: "alice"}, {id: "2", minute: 8, user: "ghost"}}},
			{records: []fakeRecord{{id: "3", minute: 7, user: "alice"}, {id: "4", minute: 6, user: "ghost"}}},
		},
		users: map[string]*core.StreamUser{"alice": alice},
	}
	resp := NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 5})

	if len(resp.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(resp.Items))
	}
	for _, item := range resp.Items {
		if item.Label != "watch" || item.FeedID != "acct" || item.Source != "fake" {
			t.Fatalf("expected feed metadata to be stamped, got %+v", item)
		}
	}
	if resp.Items[0].Author != alice || resp.Items[2].Author != alice {
		t.Fatalf("expected alice to be attached to her items")
	}
	if resp.Items[1].Author != nil {
		t.Fatalf("expected unresolved author to stay nil")
	}
	if connector.resolves["alice"] != 1 || connector.resolves["ghost"] != 1 {
		t.Fatalf("expected one lookup per user, got %v", connector.resolves)
	}

	// A second call starts with an empty cache.
	connector.fetches = 0
	NewEngine(connector, nil).Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 5})
	if connector.resolves["alice"] != 2 {
		t.Fatalf("expected user cache to be scoped to a single call, got %d lookups", connector.resolves["alice"])
	}
}

func TestRetrieveStopsAtDeadline(t *testing.T) {
	connector := &fakeConnector{order: Unordered, endless: true}
	clock := base
	engine := NewEngineWithConfig(connector, nil, Config{Now: func() time.Time {
		now := clock
		clock = clock.Add(time.Second)
		return now
	}})

	resp := engine.Retrieve(context.Background(), accountFeed(0), core.Budget{MaxRequests: 100, Timeout: 3 * time.Second})

	if resp.Stop != core.StopDeadline {
		t.Fatalf("expected stop %q, got %q", core.StopDeadline, resp.Stop)
	}
	if resp.RequestsConsumed >= 100 {
		t.Fatalf("expected deadline to cut pagination short, got %d requests", resp.RequestsConsumed)
	}
}

func TestRetrieveHonorsCancelledContext(t *testing.T) {
	connector := &fakeConnector{order: Unordered, endless: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := NewEngine(connector, nil).Retrieve(ctx, accountFeed(0), core.Budget{MaxRequests: 5})
	if resp.Stop != core.StopCancelled || connector.fetches != 0 {
		t.Fatalf("expected cancelled retrieval without fetches, got stop=%q fetches=%d", resp.Stop, connector.fetches)
	}
}

func TestRetrieveDoesNotMutateFeedAndNeverRedelivers(t *testing.T) {
	history := []fakePage{
		{records: []fakeRecord{{id: "r5", minute: 5}, {id: "r4", minute: 4}}},
		{records: []fakeRecord{{id: "r3", minute: 3}, {id: "r2", minute: 2}}},
	}
	feed := accountFeed(0)
	engine := NewEngine(&fakeConnector{order: ReverseChronological, pages: history}, nil)

	first := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 5})
	if !feed.Watermark().Equal(at(0)) {
		t.Fatalf("engine must not mutate the feed watermark")
	}
	if len(first.Items) != 4 {
		t.Fatalf("expected full history on first poll, got %d", len(first.Items))
	}
	feed.SetWatermark(first.Watermark)

	second := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 5})
	for _, item := range second.Items {
		if !item.PublicationTime.After(first.Watermark) {
			t.Fatalf("item %s re-delivered at or before watermark", item.ID)
		}
	}
	if !second.Empty() {
		t.Fatalf("expected nothing new, got %v", itemIDs(second.Items))
	}
	if second.Watermark.Before(first.Watermark) {
		t.Fatalf("watermark moved backwards: %v -> %v", first.Watermark, second.Watermark)
	}
}

func TestRetrieveRejectsNilFeeds(t *testing.T) {
	connector := &fakeConnector{order: Unordered, endless: true}
	engine := NewEngine(connector, nil)
	for _, feed := range []core.Feed{nil, (*core.AccountFeed)(nil), (*core.RSSFeed)(nil)} {
		resp := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 3})
		if resp.Stop != core.StopMisconfigured || !resp.Empty() {
			t.Fatalf("expected misconfigured empty response for %T, got %+v", feed, resp)
		}
		var cfgErr *ConfigurationError
		if !errors.As(resp.Err, &cfgErr) {
			t.Fatalf("expected ConfigurationError for %T, got %v", feed, resp.Err)
		}
	}
	if connector.fetches != 0 {
		t.Fatalf("expected no fetches, got %d", connector.fetches)
	}
}

func TestOrderString(t *testing.T) {
	if ReverseChronological.String() != "reverse_chronological" || Unordered.String() != "unordered" {
		t.Fatalf("unexpected order names %q %q", ReverseChronological, Unordered)
	}
}

func TestResolveMediaWithoutLookupIsUnsupported(t *testing.T) {
	engine := NewEngine(&fakeConnector{order: Unordered}, nil)
	if _, err := engine.ResolveMedia(context.Background(), "m1"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
