package reddit

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/retrieval"
)

// Connector serves account, keyword and group feeds from reddit.
//
//	AccountFeed  -> submissions of the user, newest first
//	KeywordsFeed -> site-wide search for the keywords joined with OR, sort=new
//	GroupFeed    -> newest posts of the multireddit user/<owner>/m/<slug>
type Connector struct {
	client   Client
	pageSize int
	markdown goldmark.Markdown
}

var (
	_ retrieval.Connector     = (*Connector)(nil)
	_ retrieval.MediaResolver = (*Connector)(nil)
)

func NewConnector(client Client, pageSize int) (*Connector, error) {
	if client == nil {
		return nil, fmt.Errorf("reddit client is required")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Connector{
		client:   client,
		pageSize: pageSize,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

func (c *Connector) Network() string {
	return Network
}

func (c *Connector) AccountPager(feed *core.AccountFeed) (*retrieval.Pager, error) {
	// Reddit user ids are usernames.
	username := strings.TrimPrefix(firstNonEmpty(feed.Username, feed.UserID), "u/")
	if username == "" {
		return nil, retrieval.Misconfigured(feed.FeedID(), "account feed requires a username")
	}
	return &retrieval.Pager{
		Order: retrieval.ReverseChronological,
		Fetch: func(ctx context.Context, cursor string) (retrieval.Page, error) {
			listing, err := c.client.UserPosts(ctx, username, ListOptions{Limit: c.pageSize, After: cursor})
			if err != nil {
				return retrieval.Page{}, retrieval.Transport(Network, err)
			}
			return c.page(listing, true), nil
		},
	}, nil
}

func (c *Connector) KeywordsPager(feed *core.KeywordsFeed) (*retrieval.Pager, error) {
	query := keywordQuery(feed.Keywords)
	if query == "" {
		return nil, retrieval.Misconfigured(feed.FeedID(), "keywords feed requires at least one keyword")
	}
	return &retrieval.Pager{
		Order: retrieval.Unordered,
		Fetch: func(ctx context.Context, cursor string) (retrieval.Page, error) {
			listing, err := c.client.Search(ctx, query, ListOptions{Limit: c.pageSize, After: cursor})
			if err != nil {
				return retrieval.Page{}, retrieval.Transport(Network, err)
			}
			return c.page(listing, false), nil
		},
	}, nil
}

func (c *Connector) GroupPager(feed *core.GroupFeed) (*retrieval.Pager, error) {
	if feed.Owner == "" || feed.Slug == "" {
		return nil, retrieval.Misconfigured(feed.FeedID(), "group feed requires owner and slug")
	}
	owner, slug := feed.Owner, feed.Slug
	var subreddits []string
	return &retrieval.Pager{
		Order: retrieval.ReverseChronological,
		Fetch: func(ctx context.Context, cursor string) (retrieval.Page, error) {
			if subreddits == nil {
				subs, err := c.client.MultiSubreddits(ctx, owner, slug)
				if err != nil {
					return retrieval.Page{}, retrieval.Transport(Network, err)
				}
				if len(subs) == 0 {
					return retrieval.Page{}, nil
				}
				subreddits = subs
			}
			listing, err := c.client.NewPosts(ctx, subreddits, ListOptions{Limit: c.pageSize, After: cursor})
			if err != nil {
				return retrieval.Page{}, retrieval.Transport(Network, err)
			}
			return c.page(listing, true), nil
		},
	}, nil
}

func (c *Connector) LocationPager(*core.LocationFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) URLPager(*core.URLFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) RSSPager(*core.RSSFeed) (*retrieval.Pager, error) {
	return nil, retrieval.ErrUnsupported
}

func (c *Connector) ResolveUser(ctx context.Context, id string) (*core.StreamUser, error) {
	user, err := c.client.User(ctx, id)
	if err != nil {
		return nil, retrieval.Transport(Network, err)
	}
	if user == nil {
		return nil, nil
	}
	return &core.StreamUser{
		ID:         user.Name,
		Source:     Network,
		Username:   user.Name,
		Name:       user.Name,
		ProfileURL: "https://www.reddit.com/user/" + user.Name,
		Followers:  user.PostKarma + user.CommentKarma,
		CreatedAt:  user.Created,
	}, nil
}

// ResolveMedia returns the media a post carries: its first image, or else its
// first outbound link. id is a post id, optionally with the item id prefix.
// Posts that do not exist or carry no media resolve to nil.
func (c *Connector) ResolveMedia(ctx context.Context, id string) (*core.MediaItem, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), Network+"#")
	if id == "" {
		return nil, retrieval.Misconfigured("", "media id is required")
	}
	post, err := c.client.Post(ctx, id)
	if err != nil {
		return nil, retrieval.Transport(Network, err)
	}
	if post == nil {
		return nil, nil
	}

	media := &core.MediaItem{ID: Network + "#" + post.ID, Title: strings.TrimSpace(post.Title)}
	links, images := extractPostURLs(*post)
	if len(images) > 0 {
		media.URL, media.Type = images[0], core.MediaImage
		return media, nil
	}
	for _, link := range links {
		if referencedUser(link) != "" {
			continue
		}
		media.URL, media.Type = link, core.MediaLink
		return media, nil
	}
	return nil, nil
}

// page converts a listing. Pinned posts break newest-first ordering, so they
// are left out of chronological listings.
func (c *Connector) page(listing Listing, chronological bool) retrieval.Page {
	records := make([]retrieval.Record, 0, len(listing.Posts))
	for i := range listing.Posts {
		post := listing.Posts[i]
		if chronological && post.Stickied {
			continue
		}
		records = append(records, retrieval.RecordFunc(func() (*core.Item, error) {
			return c.normalize(post)
		}))
	}
	return retrieval.Page{Records: records, Next: listing.After}
}

func (c *Connector) normalize(post Post) (*core.Item, error) {
	if post.ID == "" {
		return nil, retrieval.Malformed("", "post has no id")
	}
	if post.Created.IsZero() {
		return nil, retrieval.Malformed(post.ID, "post has no creation time")
	}

	item := &core.Item{
		ID:              Network + "#" + post.ID,
		Source:          Network,
		Title:           strings.TrimSpace(post.Title),
		Text:            strings.TrimSpace(post.Body),
		URL:             post.Permalink,
		PublicationTime: post.Created,
		Mentions:        extractMentions(post.Title + "\n" + post.Body),
	}
	if post.Author != "" && post.Author != "[deleted]" {
		item.UserID = post.Author
	}
	if post.Subreddit != "" {
		item.Tags = append(item.Tags, "r/"+post.Subreddit)
	}
	if post.NSFW {
		item.Tags = append(item.Tags, "nsfw")
	}
	if item.Text != "" {
		var buf bytes.Buffer
		if err := c.markdown.Convert([]byte(item.Text), &buf); err != nil {
			return nil, retrieval.Malformed(post.ID, "render selftext: %v", err)
		}
		item.HTML = buf.String()
	}

	links, images := extractPostURLs(post)
	for _, image := range images {
		item.Media = append(item.Media, core.MediaItem{ID: image, URL: image, Type: core.MediaImage})
	}
	for _, link := range links {
		if ref := referencedUser(link); ref != "" && item.ReferencedUserID == "" {
			item.ReferencedUserID = ref
			continue
		}
		item.Media = append(item.Media, core.MediaItem{ID: link, URL: link, Type: core.MediaLink})
	}
	return item, nil
}

func keywordQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if strings.ContainsAny(keyword, " \t") {
			keyword = `"` + keyword + `"`
		}
		terms = append(terms, keyword)
	}
	return strings.Join(terms, " OR ")
}

var mentionPattern = regexp.MustCompile(`(?:^|[^\w/])/?u/([A-Za-z0-9_-]{3,20})\b`)

func extractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if name := match[1]; !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// referencedUser returns the username of a reddit profile link.
func referencedUser(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !isRedditHost(u.Host) {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 2 && (parts[0] == "user" || parts[0] == "u") && parts[1] != "" {
		return parts[1]
	}
	return ""
}

func isRedditHost(host string) bool {
	host = strings.ToLower(host)
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com")
}

func extractPostURLs(post Post) (urls []string, images []string) {
	seenURL := map[string]bool{}
	seenImage := map[string]bool{}

	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || (!strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://")) {
			return
		}
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return
		}
		if isIgnoreURL(parsed) {
			return
		}

		normalized := parsed.String()
		if isImageURL(parsed) {
			if !seenImage[normalized] {
				seenImage[normalized] = true
				images = append(images, normalized)
			}
			return
		}
		if !seenURL[normalized] {
			seenURL[normalized] = true
			urls = append(urls, normalized)
		}
	}

	if !post.IsSelfPost && post.URL != "" {
		add(post.URL)
	}
	for _, token := range strings.FieldsFunc(post.Body, func(r rune) bool {
		switch r {
		case ' ', '\n', '\t', '\r', '(', ')', '[', ']', '{', '}', '<', '>', '"', '\'':
			return true
		default:
			return false
		}
	}) {
		add(token)
	}
	return urls, images
}

func isImageURL(u *url.URL) bool {
	switch strings.ToLower(u.Host) {
	case "i.redd.it", "i.imgur.com":
		return true
	}
	path := strings.ToLower(u.Path)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func isIgnoreURL(u *url.URL) bool {
	switch strings.ToLower(u.Host) {
	case "preview.redd.it", "localhost", "discord.gg":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
