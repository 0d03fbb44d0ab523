// Package factory builds runner streams from the streams document and the
// environment configuration.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bakkerme/curator-streams/internal/config"
	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/enrich"
	"github.com/bakkerme/curator-streams/internal/filter"
	"github.com/bakkerme/curator-streams/internal/retrieval"
	"github.com/bakkerme/curator-streams/internal/runner"
	"github.com/bakkerme/curator-streams/internal/scheduler"
	"github.com/bakkerme/curator-streams/internal/sources/reddit"
	"github.com/bakkerme/curator-streams/internal/sources/rss"
	rssimpl "github.com/bakkerme/curator-streams/internal/sources/rss/impl"
	"github.com/bakkerme/curator-streams/internal/sources/web"
	"github.com/bakkerme/curator-streams/internal/trigger"
)

// Store is the persistence a stream forwards items and watermarks to.
type Store interface {
	scheduler.Sink
	scheduler.WatermarkStore
	LoadWatermarks(ctx context.Context) (map[string]time.Time, error)
}

type Factory struct {
	Logger    *slog.Logger
	Env       config.EnvConfig
	Store     Store
	Directory *enrich.Directory
	Now       func() time.Time

	// Network clients. A nil RedditClient is built from Env on first use and a
	// nil RSSFetcher is replaced by a new fetcher per stream.
	RedditClient reddit.Client
	RSSFetcher   rss.Fetcher
	WebClient    *http.Client
}

func NewFromEnvConfig(logger *slog.Logger, env config.EnvConfig, store Store, directory *enrich.Directory) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		Logger:    logger,
		Env:       env,
		Store:     store,
		Directory: directory,
		Now:       time.Now,
	}
}

// Build creates a runner with one stream per entry of doc. Persisted watermarks
// are applied on top of each feed's configured lookback.
func (f *Factory) Build(ctx context.Context, doc *config.StreamsDocument) (*runner.Runner, error) {
	if doc == nil {
		return nil, fmt.Errorf("streams document is required")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	watermarks := map[string]time.Time{}
	if f.Store != nil {
		loaded, err := f.Store.LoadWatermarks(ctx)
		if err != nil {
			return nil, err
		}
		watermarks = loaded
	}
	streams := make([]*runner.Stream, 0, len(doc.Streams))
	for i := range doc.Streams {
		stream, err := f.NewStream(&doc.Streams[i], watermarks)
		if err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return runner.New(f.Logger, streams...), nil
}

func (f *Factory) NewStream(cfg *config.StreamConfig, watermarks map[string]time.Time) (*runner.Stream, error) {
	connector, err := f.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
	}
	logger := f.Logger.With(slog.String("stream", cfg.Name), slog.String("network", cfg.Network))

	engineCfg := retrieval.Config{}
	if cfg.RateLimit != nil {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		engineCfg.Limiter = rate.NewLimiter(rate.Every(cfg.RateLimit.Every.Std()), burst)
	}
	engine := retrieval.NewEngineWithConfig(connector, logger, engineCfg)

	filters, err := filter.NewChain(cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
	}

	schedCfg := scheduler.Config{
		Name: cfg.Name,
		Budget: core.Budget{
			MaxRequests: cfg.Budget.MaxRequests,
			MaxResults:  cfg.Budget.MaxResults,
			Timeout:     cfg.Budget.Timeout.Std(),
		},
		QueueSize: queueSize(cfg),
		Retriever: engine,
		Directory: f.Directory,
		Filters:   filters,
	}
	if f.Store != nil {
		schedCfg.Sink = f.Store
		schedCfg.Watermarks = f.Store
	}
	sched, err := scheduler.New(f.Logger, schedCfg)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
	}

	now := f.now()
	feeds := make([]core.Feed, 0, len(cfg.Feeds))
	for i := range cfg.Feeds {
		feed, err := cfg.Feeds[i].BuildFeed(now)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
		}
		if saved, ok := watermarks[feed.FeedID()]; ok {
			feed.SetWatermark(saved)
		}
		feeds = append(feeds, feed)
	}

	stream := &runner.Stream{
		Name:      cfg.Name,
		Network:   cfg.Network,
		Scheduler: sched,
		Feeds:     feeds,
		Workers:   cfg.Workers,
	}
	if cfg.Schedule != nil {
		stream.Trigger, err = trigger.NewCron(cfg.Name, cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
		}
	}
	logger.Info("Stream configured", slog.Int("feeds", len(feeds)), slog.Int("workers", stream.Workers))
	return stream, nil
}

// NewConnector returns the connector serving cfg.Network.
func (f *Factory) NewConnector(cfg *config.StreamConfig) (retrieval.Connector, error) {
	switch cfg.Network {
	case config.NetworkReddit:
		client, err := f.redditClient()
		if err != nil {
			return nil, err
		}
		return reddit.NewConnector(client, 0)
	case config.NetworkRSS:
		maxAge := cfg.MaxAge.Std()
		if maxAge <= 0 {
			maxAge = rss.DefaultMaxAge
		}
		fetcher := f.RSSFetcher
		if fetcher == nil {
			fetcher = rssimpl.NewFetcher(f.Env.RSS.HTTPTimeout, f.Env.RSS.UserAgent)
		}
		return rss.NewConnector(fetcher, rss.FetchOptions{MaxAge: maxAge, UserAgent: f.Env.RSS.UserAgent})
	case config.NetworkWeb:
		return web.NewConnector(web.Config{
			Timeout:   f.Env.Web.HTTPTimeout,
			UserAgent: f.Env.Web.UserAgent,
			Client:    f.WebClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported network %q", cfg.Network)
	}
}

// queueSize never lets the queue be smaller than the stream's feed list, so a
// full submission round always fits.
func queueSize(cfg *config.StreamConfig) int {
	size := cfg.QueueSize
	if size <= 0 {
		size = scheduler.DefaultQueueSize
	}
	return max(size, len(cfg.Feeds))
}

func (f *Factory) redditClient() (reddit.Client, error) {
	if f.RedditClient != nil {
		return f.RedditClient, nil
	}
	client, err := reddit.NewAPIClient(f.Logger, reddit.ClientConfig{
		Timeout:       f.Env.Reddit.HTTPTimeout,
		UserAgent:     f.Env.Reddit.UserAgent,
		ClientID:      f.Env.Reddit.ClientID,
		ClientSecret:  f.Env.Reddit.ClientSecret,
		Username:      f.Env.Reddit.Username,
		Password:      f.Env.Reddit.Password,
		RetryAttempts: f.Env.Reddit.RetryAttempts,
	})
	if err != nil {
		return nil, err
	}
	f.RedditClient = client
	return client, nil
}

func (f *Factory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
