package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/bakkerme/curator-streams/internal/core"
)

const tracerName = "github.com/bakkerme/curator-streams/internal/retrieval"

// Config tunes an Engine.
type Config struct {
	// Limiter paces page fetches after the first one. Nil disables pacing.
	Limiter *rate.Limiter
	// Now overrides the clock used for the wall-clock budget.
	Now func() time.Time
}

// Engine drives a Connector through pages under a budget. One Engine serves one
// network instance; it holds no feed state.
type Engine struct {
	connector Connector
	logger    *slog.Logger
	tracer    trace.Tracer
	limiter   *rate.Limiter
	now       func() time.Time
}

func NewEngine(connector Connector, logger *slog.Logger) *Engine {
	return NewEngineWithConfig(connector, logger, Config{})
}

func NewEngineWithConfig(connector Connector, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		connector: connector,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		limiter:   cfg.Limiter,
		now:       now,
	}
}

// Network returns the name of the engine's connector network.
func (e *Engine) Network() string {
	if e.connector == nil {
		return ""
	}
	return e.connector.Network()
}

// Retrieve fetches the content of feed that is newer than its watermark. It never
// fails: every failure resolves into a Response holding whatever was collected,
// with Stop and Err describing why retrieval ended.
func (e *Engine) Retrieve(ctx context.Context, feed core.Feed, budget core.Budget) core.Response {
	if core.IsNil(feed) {
		return core.Response{Stop: core.StopMisconfigured, Err: Misconfigured("", "feed is nil")}
	}
	budget = budget.Normalize()
	since := feed.Watermark()
	network := e.Network()

	logger := e.logger
	if stream := core.StreamFromContext(ctx); stream != "" {
		logger = logger.With(slog.String("stream", stream))
	}
	logger = logger.With(
		slog.String("network", network),
		slog.String("feed_id", feed.FeedID()),
		slog.String("feed_kind", string(feed.Kind())),
	)

	ctx, span := e.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("retrieval.network", network),
		attribute.String("retrieval.feed_id", feed.FeedID()),
		attribute.String("retrieval.feed_kind", string(feed.Kind())),
		attribute.Int("retrieval.budget.max_requests", budget.MaxRequests),
		attribute.Int("retrieval.budget.max_results", budget.MaxResults),
	))
	defer span.End()

	resp := core.Response{Watermark: since}
	defer func() {
		span.SetAttributes(
			attribute.Int("retrieval.items", len(resp.Items)),
			attribute.Int("retrieval.requests", resp.RequestsConsumed),
			attribute.String("retrieval.stop", string(resp.Stop)),
		)
		if resp.Err != nil && resp.Stop != core.StopUnsupported {
			span.RecordError(resp.Err)
			span.SetStatus(codes.Error, resp.Err.Error())
		}
	}()

	pager, err := e.dispatch(feed)
	if err != nil {
		resp.Err = err
		if errors.Is(err, ErrUnsupported) {
			resp.Stop = core.StopUnsupported
			logger.Debug("Feed kind not supported by network")
		} else {
			resp.Stop = core.StopMisconfigured
			logger.Error("Feed cannot be retrieved", slog.String("error", err.Error()))
		}
		return resp
	}
	logger = logger.With(slog.String("order", pager.Order.String()))
	span.SetAttributes(attribute.String("retrieval.order", pager.Order.String()))

	var deadline time.Time
	if budget.Timeout > 0 {
		deadline = e.now().Add(budget.Timeout)
	}
	users := &userCache{connector: e.connector, users: map[string]*core.StreamUser{}}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			resp.Stop, resp.Err = core.StopCancelled, err
			break
		}
		page, err := pager.Fetch(ctx, cursor)
		if err != nil {
			resp.Err = err
			resp.Stop = core.StopTransportError
			if ctx.Err() != nil {
				resp.Stop = core.StopCancelled
			}
			logger.Warn("Page fetch failed",
				slog.Int("requests", resp.RequestsConsumed),
				slog.Int("items", len(resp.Items)),
				slog.String("error", err.Error()))
			break
		}
		resp.RequestsConsumed++

		if stop := e.collect(ctx, logger, feed, since, budget, pager.Order, page, users, &resp); stop != "" {
			resp.Stop = stop
			break
		}
		if resp.RequestsConsumed >= budget.MaxRequests {
			resp.Stop = core.StopMaxRequests
			break
		}
		if !deadline.IsZero() && !e.now().Before(deadline) {
			resp.Stop = core.StopDeadline
			break
		}
		if page.Next == "" {
			resp.Stop = core.StopExhausted
			break
		}
		cursor = page.Next

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				resp.Stop, resp.Err = core.StopCancelled, err
				break
			}
		}
	}

	logger.Info("Retrieval finished",
		slog.Int("items", len(resp.Items)),
		slog.Int("requests", resp.RequestsConsumed),
		slog.String("stop", string(resp.Stop)),
		slog.Time("watermark", resp.Watermark))
	return resp
}

// ResolveMedia looks up a media object by its network id. Connectors without a
// media lookup yield ErrUnsupported; unknown ids resolve to nil.
func (e *Engine) ResolveMedia(ctx context.Context, id string) (*core.MediaItem, error) {
	resolver, ok := e.connector.(MediaResolver)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no media lookup", ErrUnsupported, e.Network())
	}
	ctx, span := e.tracer.Start(ctx, "retrieval.resolve_media", trace.WithAttributes(
		attribute.String("retrieval.network", e.Network()),
		attribute.String("retrieval.media_id", id),
	))
	defer span.End()

	media, err := resolver.ResolveMedia(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return media, nil
}

// collect scans one page in source order and reports a stop reason when
// pagination must end.
func (e *Engine) collect(ctx context.Context, logger *slog.Logger, feed core.Feed, since time.Time, budget core.Budget, order Order, page Page, users *userCache, resp *core.Response) core.StopReason {
	for _, record := range page.Records {
		if record == nil {
			continue
		}
		item, err := record.Normalize()
		if err != nil {
			logger.Warn("Skipping malformed record", slog.String("error", err.Error()))
			continue
		}
		if item == nil {
			continue
		}
		if !item.PublicationTime.After(since) {
			if order == ReverseChronological {
				logger.Debug("Watermark reached", slog.String("item_id", item.ID), slog.Time("since", since))
				return core.StopWatermark
			}
			continue
		}

		if item.Source == "" {
			item.Source = e.Network()
		}
		item.FeedID = feed.FeedID()
		item.Label = feed.FeedLabel()
		if item.Author == nil && item.UserID != "" {
			item.Author = users.resolve(ctx, logger, item.UserID)
		}

		resp.Items = append(resp.Items, item)
		if item.PublicationTime.After(resp.Watermark) {
			resp.Watermark = item.PublicationTime.UTC()
		}
		if budget.ResultsExhausted(len(resp.Items)) {
			return core.StopMaxResults
		}
	}
	return ""
}

func (e *Engine) dispatch(feed core.Feed) (*Pager, error) {
	if e.connector == nil {
		return nil, Misconfigured(feed.FeedID(), "no connector configured")
	}
	var (
		pager *Pager
		err   error
	)
	switch f := feed.(type) {
	case *core.AccountFeed:
		pager, err = e.connector.AccountPager(f)
	case *core.KeywordsFeed:
		pager, err = e.connector.KeywordsPager(f)
	case *core.LocationFeed:
		pager, err = e.connector.LocationPager(f)
	case *core.GroupFeed:
		pager, err = e.connector.GroupPager(f)
	case *core.URLFeed:
		pager, err = e.connector.URLPager(f)
	case *core.RSSFeed:
		pager, err = e.connector.RSSPager(f)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, feed)
	}
	if err != nil {
		return nil, err
	}
	if pager == nil || pager.Fetch == nil {
		return nil, fmt.Errorf("%w: %s returned no pager for %s", ErrUnsupported, e.connector.Network(), feed.Kind())
	}
	return pager, nil
}

// userCache memoizes author lookups for the duration of one Retrieve call,
// including misses.
type userCache struct {
	connector Connector
	users     map[string]*core.StreamUser
}

func (c *userCache) resolve(ctx context.Context, logger *slog.Logger, id string) *core.StreamUser {
	if user, ok := c.users[id]; ok {
		return user
	}
	user, err := c.connector.ResolveUser(ctx, id)
	if err != nil {
		logger.Warn("Failed to resolve user", slog.String("user_id", id), slog.String("error", err.Error()))
		user = nil
	}
	c.users[id] = user
	return user
}
