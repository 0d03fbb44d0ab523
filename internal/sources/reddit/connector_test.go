package reddit_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/retrieval"
	"github.com/bakkerme/curator-streams/internal/sources/reddit"
	"github.com/bakkerme/curator-streams/internal/sources/reddit/mock"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func post(id string, minutes int) reddit.Post {
	return reddit.Post{
		ID:        id,
		Title:     "Post " + id,
		Author:    "alice",
		Subreddit: "golang",
		Permalink: "https://www.reddit.com/r/golang/comments/" + id,
		Created:   base.Add(time.Duration(minutes) * time.Minute),
	}
}

func newEngine(t *testing.T, client reddit.Client) *retrieval.Engine {
	t.Helper()
	connector, err := reddit.NewConnector(client, 2)
	if err != nil {
		t.Fatalf("failed to create connector: %v", err)
	}
	return retrieval.NewEngine(connector, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAccountFeedStopsAtWatermark(t *testing.T) {
	pinned := post("pinned", -600)
	pinned.Stickied = true
	client := &mock.Client{
		UserPages: map[string]map[string]reddit.Listing{
			"alice": {
				"":      {Posts: []reddit.Post{pinned, post("p4", 40), post("p3", 30)}, After: "t3_p3"},
				"t3_p3": {Posts: []reddit.Post{post("p2", 20), post("p1", -10)}, After: "t3_p1"},
				"t3_p1": {Posts: []reddit.Post{post("p0", -20)}},
			},
		},
		Users: map[string]*reddit.User{"alice": {Name: "alice", PostKarma: 10, CommentKarma: 5, Created: base.AddDate(-3, 0, 0)}},
	}
	engine := newEngine(t, client)
	feed := &core.AccountFeed{FeedBase: core.FeedBase{ID: "alice-feed", Since: base}, Username: "alice"}

	resp := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 10})
	if resp.Stop != core.StopWatermark {
		t.Fatalf("expected watermark stop, got %s (%v)", resp.Stop, resp.Err)
	}
	if resp.RequestsConsumed != 2 {
		t.Fatalf("expected 2 requests, got %d", resp.RequestsConsumed)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	if resp.Items[0].ID != "reddit#p4" || resp.Items[2].ID != "reddit#p2" {
		t.Fatalf("unexpected order: %s .. %s", resp.Items[0].ID, resp.Items[2].ID)
	}
	if author := resp.Items[0].Author; author == nil || author.Followers != 15 || author.Source != reddit.Network {
		t.Fatalf("expected resolved author, got %+v", author)
	}
	if client.Lookups != 1 {
		t.Fatalf("expected one user lookup for one author, got %d", client.Lookups)
	}
	if !resp.Watermark.Equal(base.Add(40 * time.Minute)) {
		t.Fatalf("unexpected watermark %v", resp.Watermark)
	}
}

func TestKeywordsFeedSearchesWithOr(t *testing.T) {
	query := `golang OR "go generics"`
	client := &mock.Client{
		SearchPages: map[string]map[string]reddit.Listing{
			query: {
				"":   {Posts: []reddit.Post{post("old", -5), post("new", 5)}, After: "c1"},
				"c1": {Posts: []reddit.Post{post("newer", 10)}},
			},
		},
	}
	engine := newEngine(t, client)
	feed := &core.KeywordsFeed{FeedBase: core.FeedBase{ID: "kw", Since: base}, Keywords: []string{"golang", "go generics", " "}}

	resp := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 5})
	if len(resp.Items) != 2 || resp.RequestsConsumed != 2 || resp.Stop != core.StopExhausted {
		t.Fatalf("expected 2 items over 2 pages, got %d items %d requests stop=%s", len(resp.Items), resp.RequestsConsumed, resp.Stop)
	}
	if client.Queries[0] != "search:"+query+"@" {
		t.Fatalf("unexpected query %q", client.Queries[0])
	}
}

func TestGroupFeedResolvesMultiOnce(t *testing.T) {
	client := &mock.Client{
		Multis:   map[string][]string{"bob/tech": {"golang", "rust"}},
		NewPages: map[string]reddit.Listing{
			"":   {Posts: []reddit.Post{post("a", 30)}, After: "n1"},
			"n1": {Posts: []reddit.Post{post("b", 20)}, After: "n2"},
		},
	}
	engine := newEngine(t, client)
	feed := &core.GroupFeed{FeedBase: core.FeedBase{ID: "tech", Since: base}, Owner: "bob", Slug: "tech"}

	resp := engine.Retrieve(context.Background(), feed, core.Budget{MaxRequests: 2})
	if len(resp.Items) != 2 || resp.Stop != core.StopMaxRequests {
		t.Fatalf("expected 2 items and max_requests, got %d %s", len(resp.Items), resp.Stop)
	}
	multis := 0
	for _, q := range client.Queries {
		if strings.HasPrefix(q, "multi:") {
			multis++
		}
	}
	if multis != 1 {
		t.Fatalf("expected one multireddit lookup, got %d", multis)
	}
}

func TestNormalizeExtractsMentionsMediaAndReference(t *testing.T) {
	p := post("x", 5)
	p.Body = "Thanks u/bob and /u/carol_2!\n\n![pic](https://i.redd.it/abc.png) see https://example.com/article"
	p.IsSelfPost = false
	p.URL = "https://www.reddit.com/user/dave/"
	client := &mock.Client{UserPages: map[string]map[string]reddit.Listing{"alice": {"": {Posts: []reddit.Post{p}}}}}
	engine := newEngine(t, client)
	feed := &core.AccountFeed{FeedBase: core.FeedBase{ID: "a", Since: base}, UserID: "alice"}

	resp := engine.Retrieve(context.Background(), feed, core.Budget{})
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d (%v)", len(resp.Items), resp.Err)
	}
	item := resp.Items[0]
	if len(item.Mentions) != 2 || item.Mentions[0] != "bob" || item.Mentions[1] != "carol_2" {
		t.Fatalf("unexpected mentions %v", item.Mentions)
	}
	if item.ReferencedUserID != "dave" {
		t.Fatalf("expected referenced user dave, got %q", item.ReferencedUserID)
	}
	if !strings.Contains(item.HTML, "<p>") {
		t.Fatalf("expected rendered html, got %q", item.HTML)
	}
	if len(item.Media) != 2 || item.Media[0].Type != core.MediaImage || item.Media[1].Type != core.MediaLink {
		t.Fatalf("unexpected media %#v", item.Media)
	}
	if len(item.Tags) != 1 || item.Tags[0] != "r/golang" {
		t.Fatalf("unexpected tags %v", item.Tags)
	}
}

func TestRedditRejectsUnsupportedAndMisconfiguredFeeds(t *testing.T) {
	engine := newEngine(t, &mock.Client{})
	cases := map[core.Feed]core.StopReason{
		&core.LocationFeed{FeedBase: core.FeedBase{ID: "loc"}, Latitude: 1, Longitude: 2}: core.StopUnsupported,
		&core.RSSFeed{FeedBase: core.FeedBase{ID: "rss"}, URL: "https://example.com/feed"}: core.StopUnsupported,
		&core.AccountFeed{FeedBase: core.FeedBase{ID: "acct"}}:                               core.StopMisconfigured,
		&core.GroupFeed{FeedBase: core.FeedBase{ID: "grp"}, Owner: "bob"}:                    core.StopMisconfigured,
		&core.KeywordsFeed{FeedBase: core.FeedBase{ID: "kw"}, Keywords: []string{" "}}:       core.StopMisconfigured,
	}
	for feed, want := range cases {
		resp := engine.Retrieve(context.Background(), feed, core.Budget{})
		if resp.Stop != want || !resp.Empty() || resp.RequestsConsumed != 0 {
			t.Fatalf("%s: expected %s with no requests, got %s/%d", feed.FeedID(), want, resp.Stop, resp.RequestsConsumed)
		}
	}
}

func TestResolveMediaPrefersImages(t *testing.T) {
	withImage := post("img", 0)
	withImage.Body = "see https://www.reddit.com/user/bob and https://i.redd.it/cat.png"
	withLink := post("lnk", 0)
	withLink.URL = "https://example.com/article"
	selfPost := post("self", 0)
	selfPost.IsSelfPost = true
	selfPost.URL = "https://www.reddit.com/r/golang/comments/self"
	client := &mock.Client{Posts: map[string]*reddit.Post{"img": &withImage, "lnk": &withLink, "self": &selfPost}}
	engine := newEngine(t, client)
	ctx := context.Background()

	media, err := engine.ResolveMedia(ctx, "reddit#img")
	if err != nil || media == nil {
		t.Fatalf("expected image media, got %v (%v)", media, err)
	}
	if media.ID != "reddit#img" || media.Type != core.MediaImage || media.URL != "https://i.redd.it/cat.png" || media.Title != "Post img" {
		t.Fatalf("unexpected media %+v", media)
	}

	media, err = engine.ResolveMedia(ctx, "lnk")
	if err != nil || media == nil || media.Type != core.MediaLink || media.URL != "https://example.com/article" {
		t.Fatalf("expected link media, got %+v (%v)", media, err)
	}

	for _, id := range []string{"self", "missing"} {
		if media, err := engine.ResolveMedia(ctx, id); err != nil || media != nil {
			t.Fatalf("expected no media for %s, got %+v (%v)", id, media, err)
		}
	}
	if _, err := engine.ResolveMedia(ctx, " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
