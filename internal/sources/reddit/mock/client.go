package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/curator-streams/internal/sources/reddit"
)

// Client serves canned listings. Pages are keyed by the After cursor of the
// request; the first page is keyed by "".
type Client struct {
	UserPages   map[string]map[string]reddit.Listing
	SearchPages map[string]map[string]reddit.Listing
	Multis      map[string][]string
	NewPages    map[string]reddit.Listing
	Users       map[string]*reddit.User
	Posts       map[string]*reddit.Post
	Err         error

	mu      sync.Mutex
	Queries []string
	Lookups int
}

var _ reddit.Client = (*Client)(nil)

func (c *Client) UserPosts(ctx context.Context, username string, opts reddit.ListOptions) (reddit.Listing, error) {
	_ = ctx
	c.record("user:" + username + "@" + opts.After)
	if c.Err != nil {
		return reddit.Listing{}, c.Err
	}
	return c.UserPages[username][opts.After], nil
}

func (c *Client) Search(ctx context.Context, query string, opts reddit.ListOptions) (reddit.Listing, error) {
	_ = ctx
	c.record("search:" + query + "@" + opts.After)
	if c.Err != nil {
		return reddit.Listing{}, c.Err
	}
	return c.SearchPages[query][opts.After], nil
}

func (c *Client) MultiSubreddits(ctx context.Context, owner, slug string) ([]string, error) {
	_ = ctx
	c.record("multi:" + owner + "/" + slug)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Multis[owner+"/"+slug], nil
}

func (c *Client) NewPosts(ctx context.Context, subreddits []string, opts reddit.ListOptions) (reddit.Listing, error) {
	_ = ctx
	c.record("new@" + opts.After)
	if c.Err != nil {
		return reddit.Listing{}, c.Err
	}
	return c.NewPages[opts.After], nil
}

func (c *Client) User(ctx context.Context, username string) (*reddit.User, error) {
	_ = ctx
	c.mu.Lock()
	c.Lookups++
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Users[username], nil
}

func (c *Client) Post(ctx context.Context, id string) (*reddit.Post, error) {
	_ = ctx
	c.record("post:" + id)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Posts[id], nil
}

func (c *Client) record(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
}
