package reddit

import (
	"context"
	"time"
)

// Network is the source name stamped on reddit items.
const Network = "reddit"

// Post is a reddit submission as returned by a listing.
type Post struct {
	ID         string
	FullID     string
	Title      string
	Body       string
	URL        string
	Permalink  string
	Author     string
	AuthorID   string
	Subreddit  string
	Score      int
	Comments   int
	NSFW       bool
	IsSelfPost bool
	Stickied   bool
	Created    time.Time
}

// Listing is one page of posts. After is the cursor of the next page; empty
// when the listing is exhausted.
type Listing struct {
	Posts []Post
	After string
}

// ListOptions selects a page of a listing.
type ListOptions struct {
	Limit int
	After string
}

// User is a reddit account profile.
type User struct {
	ID           string
	Name         string
	PostKarma    int
	CommentKarma int
	Created      time.Time
}

// Client is the subset of the reddit API the connector needs. Implementations
// return listings newest first where the endpoint supports sort=new.
type Client interface {
	// UserPosts lists the submissions of username.
	UserPosts(ctx context.Context, username string, opts ListOptions) (Listing, error)
	// Search lists posts matching query across reddit.
	Search(ctx context.Context, query string, opts ListOptions) (Listing, error)
	// MultiSubreddits returns the subreddits of the multireddit owner/slug.
	MultiSubreddits(ctx context.Context, owner, slug string) ([]string, error)
	// NewPosts lists the newest posts of the given subreddits combined.
	NewPosts(ctx context.Context, subreddits []string, opts ListOptions) (Listing, error)
	// User returns the profile of username, or nil when it does not exist.
	User(ctx context.Context, username string) (*User, error)
	// Post returns the submission with the given base36 id, or nil when it does
	// not exist.
	Post(ctx context.Context, id string) (*Post, error)
}
