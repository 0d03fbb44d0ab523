package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/enrich"
	"github.com/bakkerme/curator-streams/internal/filter"
)

const tracerName = "github.com/bakkerme/curator-streams/internal/scheduler"

// DefaultQueueSize is the queue capacity used when Config.QueueSize is unset.
const DefaultQueueSize = 64

// ErrNoSink is reported for every item that cannot be forwarded because no sink
// is configured.
var ErrNoSink = errors.New("no sink configured")

// Retriever fetches new content for a feed. It must not fail; failures resolve
// into the returned Response.
type Retriever interface {
	Retrieve(ctx context.Context, feed core.Feed, budget core.Budget) core.Response
}

// Sink persists or indexes items handed over by the scheduler.
type Sink interface {
	Store(ctx context.Context, item *core.Item) error
	StoreBatch(ctx context.Context, items []*core.Item) error
	Delete(ctx context.Context, item *core.Item) error
}

// WatermarkStore persists feed watermarks across restarts.
type WatermarkStore interface {
	SaveWatermark(ctx context.Context, feedID string, watermark time.Time) error
}

// State is the position of a feed in the scheduler's state machine:
// Idle → Queued → Retrieving → Idle.
type State string

const (
	StateIdle       State = "idle"
	StateQueued     State = "queued"
	StateRetrieving State = "retrieving"
)

// Config holds the scheduler's dependencies and limits.
type Config struct {
	Name       string
	Budget     core.Budget
	QueueSize  int
	Retriever  Retriever
	Sink       Sink
	Watermarks WatermarkStore
	Directory  *enrich.Directory
	Filters    filter.Chain
	Now        func() time.Time
}

// Result summarises one poll of one feed.
type Result struct {
	FeedID    string
	Response  core.Response
	Advanced  bool
	Stored    int
	Filtered  int
	Invalid   int
	Failed    int
	Watermark time.Time
}

// Scheduler owns the work queue of one network instance. Feeds are submitted,
// dequeued by Run workers and processed one at a time per worker.
type Scheduler struct {
	name       string
	budget     core.Budget
	retriever  Retriever
	sink       Sink
	watermarks WatermarkStore
	directory  *enrich.Directory
	filters    filter.Chain
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer

	queue chan core.Feed
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
	states  map[string]State
}

func New(logger *slog.Logger, cfg Config) (*Scheduler, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("scheduler retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	directory := cfg.Directory
	if directory == nil {
		directory = enrich.NewDirectory(nil)
	}
	return &Scheduler{
		name:       cfg.Name,
		budget:     cfg.Budget,
		retriever:  cfg.Retriever,
		sink:       cfg.Sink,
		watermarks: cfg.Watermarks,
		directory:  directory,
		filters:    cfg.Filters,
		now:        now,
		logger:     logger.With(slog.String("stream", cfg.Name)),
		tracer:     otel.Tracer(tracerName),
		queue:      make(chan core.Feed, size),
		done:       make(chan struct{}),
		states:     map[string]State{},
	}, nil
}

func (s *Scheduler) Name() string {
	return s.name
}

// Submit offers feed to the queue without blocking. It returns false when the
// scheduler is stopped, the queue is full, or the feed is already queued or
// being retrieved; the caller decides whether to retry.
func (s *Scheduler) Submit(feed core.Feed) bool {
	if core.IsNil(feed) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if state := s.states[feed.FeedID()]; state == StateQueued || state == StateRetrieving {
		return false
	}
	select {
	case s.queue <- feed:
		s.states[feed.FeedID()] = StateQueued
		return true
	default:
		s.logger.Warn("Feed queue full", slog.String("feed_id", feed.FeedID()))
		return false
	}
}

// State returns the state of the feed with the given id.
func (s *Scheduler) State(feedID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[feedID]; ok {
		return state
	}
	return StateIdle
}

// Pending returns the number of queued feeds.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Stop stops accepting submissions and signals Run to return once its current
// feed is done. Feeds still queued are left unprocessed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
}

// Run dequeues feeds until Stop is called or ctx is done. Several goroutines may
// call Run on the same scheduler; each processes one feed fully before taking the
// next. The retrieval of an in-flight feed is not cancelled by ctx or Stop.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case feed := <-s.queue:
			s.setState(feed.FeedID(), StateRetrieving)
			s.Poll(context.WithoutCancel(ctx), feed)
			s.setState(feed.FeedID(), StateIdle)
		}
	}
}

// Poll runs one retrieve, watermark, enrich and forward cycle for feed.
func (s *Scheduler) Poll(ctx context.Context, feed core.Feed) Result {
	logger := s.logger.With(slog.String("feed_id", feed.FeedID()), slog.String("feed_kind", string(feed.Kind())))
	ctx = core.WithStream(ctx, s.name)
	ctx = core.WithFeedID(ctx, feed.FeedID())
	ctx = core.WithLogger(ctx, logger)

	ctx, span := s.tracer.Start(ctx, "scheduler.poll", trace.WithAttributes(
		attribute.String("scheduler.stream", s.name),
		attribute.String("scheduler.feed_id", feed.FeedID()),
	))
	defer span.End()

	resp := s.retriever.Retrieve(ctx, feed, s.budget)
	result := Result{FeedID: feed.FeedID(), Response: resp, Watermark: feed.Watermark()}

	if !resp.Empty() {
		if feed.SetWatermark(resp.Watermark) {
			result.Advanced = true
			s.persistWatermark(ctx, logger, feed)
		}
		result.Watermark = feed.Watermark()
	}

	snapshot := s.directory.Snapshot()
	now := s.now()
	for _, item := range resp.Items {
		s.forward(ctx, logger, snapshot, now, item, &result)
	}

	span.SetAttributes(
		attribute.Int("scheduler.stored", result.Stored),
		attribute.Int("scheduler.filtered", result.Filtered),
		attribute.Int("scheduler.failed", result.Failed+result.Invalid),
	)
	logger.Info("Feed polled",
		slog.Int("items", len(resp.Items)),
		slog.Int("requests", resp.RequestsConsumed),
		slog.String("stop", string(resp.Stop)),
		slog.Int("stored", result.Stored),
		slog.Int("filtered", result.Filtered),
		slog.Int("failed", result.Failed+result.Invalid),
		slog.Time("watermark", result.Watermark))
	return result
}

func (s *Scheduler) forward(ctx context.Context, logger *slog.Logger, snapshot *enrich.Snapshot, now time.Time, item *core.Item, result *Result) {
	if !item.Valid() {
		result.Invalid++
		logger.Error("Refusing to store item without id or publication time", slog.String("item_id", item.ID))
		return
	}
	snapshot.Apply(item)

	if len(s.filters) > 0 {
		keep, rule, err := s.filters.Keep(item, now)
		if err != nil {
			logger.Warn("Filter evaluation failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		}
		if !keep {
			result.Filtered++
			logger.Debug("Item filtered", slog.String("item_id", item.ID), slog.String("rule", rule))
			return
		}
	}

	if s.sink == nil {
		result.Failed++
		logger.Error("Cannot forward item", slog.String("item_id", item.ID), slog.String("error", ErrNoSink.Error()))
		return
	}
	if err := s.sink.Store(ctx, item); err != nil {
		result.Failed++
		logger.Error("Failed to store item", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		return
	}
	result.Stored++
}

func (s *Scheduler) persistWatermark(ctx context.Context, logger *slog.Logger, feed core.Feed) {
	if s.watermarks == nil {
		return
	}
	if err := s.watermarks.SaveWatermark(ctx, feed.FeedID(), feed.Watermark()); err != nil {
		logger.Error("Failed to persist watermark", slog.String("error", err.Error()))
	}
}

// Delete forwards the deletion of item to the sink.
func (s *Scheduler) Delete(ctx context.Context, item *core.Item) error {
	if s.sink == nil {
		return ErrNoSink
	}
	if item == nil || item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	return s.sink.Delete(ctx, item)
}

func (s *Scheduler) setState(feedID string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == StateIdle {
		delete(s.states, feedID)
		return
	}
	s.states[feedID] = state
}
