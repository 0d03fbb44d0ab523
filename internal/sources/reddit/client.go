package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goreddit "github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/bakkerme/curator-streams/internal/retry"
)

const defaultPageSize = 100

// ClientConfig holds credentials and transport settings for the API client.
// Without a full set of credentials the client is read-only.
type ClientConfig struct {
	Timeout       time.Duration
	UserAgent     string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	RetryAttempts int
}

// APIClient implements Client on top of go-reddit.
type APIClient struct {
	client  *goreddit.Client
	retries retry.Config
	logger  *slog.Logger
}

var _ Client = (*APIClient)(nil)

func NewAPIClient(logger *slog.Logger, cfg ClientConfig) (*APIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "curator-streams/0.1"
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	var (
		client *goreddit.Client
		err    error
	)
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.Username != "" && cfg.Password != "" {
		logger.Info("Using authenticated Reddit client", slog.String("clientID", cfg.ClientID))
		client, err = goreddit.NewClient(goreddit.Credentials{
			ID:       cfg.ClientID,
			Secret:   cfg.ClientSecret,
			Username: cfg.Username,
			Password: cfg.Password,
		}, goreddit.WithHTTPClient(httpClient), goreddit.WithUserAgent(userAgent))
	} else {
		logger.Info("Using readonly Reddit client")
		client, err = goreddit.NewReadonlyClient(goreddit.WithHTTPClient(httpClient), goreddit.WithUserAgent(userAgent))
	}
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &APIClient{
		client:  client,
		retries: retry.Config{Attempts: attempts, BaseDelay: 200 * time.Millisecond},
		logger:  logger,
	}, nil
}

func (c *APIClient) UserPosts(ctx context.Context, username string, opts ListOptions) (Listing, error) {
	return c.listing(ctx, func() ([]*goreddit.Post, *goreddit.Response, error) {
		return c.client.User.PostsOf(ctx, username, &goreddit.ListUserOverviewOptions{
			ListOptions: listOptions(opts),
			Sort:        "new",
		})
	})
}

func (c *APIClient) Search(ctx context.Context, query string, opts ListOptions) (Listing, error) {
	return c.listing(ctx, func() ([]*goreddit.Post, *goreddit.Response, error) {
		return c.client.Subreddit.SearchPosts(ctx, query, "", &goreddit.ListPostSearchOptions{
			ListPostOptions: goreddit.ListPostOptions{ListOptions: listOptions(opts)},
			Sort:            "new",
		})
	})
}

func (c *APIClient) NewPosts(ctx context.Context, subreddits []string, opts ListOptions) (Listing, error) {
	return c.listing(ctx, func() ([]*goreddit.Post, *goreddit.Response, error) {
		options := listOptions(opts)
		return c.client.Subreddit.NewPosts(ctx, strings.Join(subreddits, "+"), &options)
	})
}

func (c *APIClient) MultiSubreddits(ctx context.Context, owner, slug string) ([]string, error) {
	var multi *goreddit.Multi
	err := retry.Do(ctx, c.retries, func() error {
		var (
			resp *goreddit.Response
			err  error
		)
		multi, resp, err = c.client.Multi.Get(ctx, fmt.Sprintf("user/%s/m/%s", owner, slug))
		return classify(resp, err)
	})
	if err != nil {
		return nil, fmt.Errorf("get multireddit %s/%s: %w", owner, slug, err)
	}
	if multi == nil {
		return nil, nil
	}
	return []string(multi.Subreddits), nil
}

func (c *APIClient) User(ctx context.Context, username string) (*User, error) {
	var (
		user *goreddit.User
		resp *goreddit.Response
	)
	err := retry.Do(ctx, c.retries, func() error {
		var err error
		user, resp, err = c.client.User.Get(ctx, username)
		return classify(resp, err)
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			c.logger.Debug("Reddit user not found", slog.String("username", username))
			return nil, nil
		}
		return nil, fmt.Errorf("get reddit user %s: %w", username, err)
	}
	if user == nil {
		return nil, nil
	}
	return &User{
		ID:           user.ID,
		Name:         user.Name,
		PostKarma:    user.PostKarma,
		CommentKarma: user.CommentKarma,
		Created:      timestampToTime(user.Created),
	}, nil
}

func (c *APIClient) Post(ctx context.Context, id string) (*Post, error) {
	var (
		result *goreddit.PostAndComments
		resp   *goreddit.Response
	)
	err := retry.Do(ctx, c.retries, func() error {
		var err error
		result, resp, err = c.client.Post.Get(ctx, id)
		return classify(resp, err)
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get reddit post %s: %w", id, err)
	}
	if result == nil || result.Post == nil {
		return nil, nil
	}
	post := convertPost(result.Post)
	return &post, nil
}

func (c *APIClient) listing(ctx context.Context, call func() ([]*goreddit.Post, *goreddit.Response, error)) (Listing, error) {
	var (
		posts []*goreddit.Post
		resp  *goreddit.Response
	)
	err := retry.Do(ctx, c.retries, func() error {
		var err error
		posts, resp, err = call()
		return classify(resp, err)
	})
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{Posts: make([]Post, 0, len(posts))}
	if resp != nil {
		listing.After = resp.After
	}
	for _, post := range posts {
		if post == nil {
			continue
		}
		listing.Posts = append(listing.Posts, convertPost(post))
	}
	return listing, nil
}

func convertPost(post *goreddit.Post) Post {
	return Post{
		ID:         post.ID,
		FullID:     post.FullID,
		Title:      post.Title,
		Body:       post.Body,
		URL:        post.URL,
		Permalink:  canonicalRedditPostURL(post.Permalink),
		Author:     post.Author,
		AuthorID:   post.AuthorID,
		Subreddit:  post.SubredditName,
		Score:      post.Score,
		Comments:   post.NumberOfComments,
		NSFW:       post.NSFW,
		IsSelfPost: post.IsSelfPost,
		Stickied:   post.Stickied,
		Created:    timestampToTime(post.Created),
	}
}

// classify marks everything but server errors and rate limiting as permanent so
// only 5xx, 429 and bare transport failures are retried.
func classify(resp *goreddit.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && (resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests) {
		return fmt.Errorf("reddit transient error: %w", err)
	}
	if resp != nil {
		return retry.Permanent(err)
	}
	return err
}

func listOptions(opts ListOptions) goreddit.ListOptions {
	limit := opts.Limit
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}
	return goreddit.ListOptions{Limit: limit, After: opts.After}
}

func canonicalRedditPostURL(permalink string) string {
	if permalink == "" {
		return ""
	}
	if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	if strings.HasPrefix(permalink, "/") {
		return "https://www.reddit.com" + permalink
	}
	return "https://www.reddit.com/" + permalink
}

func timestampToTime(ts *goreddit.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time.UTC()
}
