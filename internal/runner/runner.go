// Package runner drives the configured streams: it feeds every scheduler its
// feeds at start and on each trigger tick, and runs the scheduler workers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bakkerme/curator-streams/internal/core"
	"github.com/bakkerme/curator-streams/internal/scheduler"
	"github.com/bakkerme/curator-streams/internal/trigger"
)

// Stream is one network instance: a scheduler with its feeds, worker count and
// optional re-enqueue trigger.
type Stream struct {
	Name      string
	Network   string
	Scheduler *scheduler.Scheduler
	Trigger   *trigger.Cron
	Feeds     []core.Feed
	Workers   int
}

// Run summarises one RunOnce call.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt time.Time
	Results     []scheduler.Result
}

// Stored returns the number of items stored during the run.
func (r *Run) Stored() int {
	total := 0
	for _, result := range r.Results {
		total += result.Stored
	}
	return total
}

type Runner struct {
	logger  *slog.Logger
	streams []*Stream
}

func New(logger *slog.Logger, streams ...*Stream) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, streams: streams}
}

func (r *Runner) Streams() []*Stream {
	return r.streams
}

// Start runs every stream until ctx is done or a stream fails to start. All
// feeds are submitted once up front and again on each tick of their trigger.
func (r *Runner) Start(ctx context.Context) error {
	if len(r.streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range r.streams {
		stream := stream
		if stream == nil || stream.Scheduler == nil {
			continue
		}
		workers := stream.Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				if err := stream.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("stream %q: %w", stream.Name, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			<-ctx.Done()
			stream.Scheduler.Stop()
			return nil
		})

		r.submit(stream, uuid.NewString())

		if stream.Trigger != nil {
			g.Go(func() error {
				ticks, err := stream.Trigger.Start(ctx)
				if err != nil {
					return fmt.Errorf("stream %q: start trigger: %w", stream.Name, err)
				}
				r.logger.Info("Trigger started",
					slog.String("stream", stream.Name),
					slog.Time("next", stream.Trigger.Next(time.Now())))
				for tick := range ticks {
					r.logger.Info("Trigger fired",
						slog.String("stream", stream.Name),
						slog.String("run_id", tick.RunID),
						slog.Time("time", tick.Time),
						slog.Time("next", stream.Trigger.Next(tick.Time)))
					r.submit(stream, tick.RunID)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// RunOnce polls every feed of every stream exactly once. Streams run in
// parallel; the feeds of one stream are polled one after another.
func (r *Runner) RunOnce(ctx context.Context) (*Run, error) {
	run := &Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := r.logger.With(slog.String("run_id", run.ID))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range r.streams {
		stream := stream
		if stream == nil || stream.Scheduler == nil {
			continue
		}
		g.Go(func() error {
			for _, feed := range stream.Feeds {
				if err := ctx.Err(); err != nil {
					return err
				}
				result := stream.Scheduler.Poll(ctx, feed)
				mu.Lock()
				run.Results = append(run.Results, result)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	run.CompletedAt = time.Now().UTC()
	logger.Info("Run completed",
		slog.Int("feeds", len(run.Results)),
		slog.Int("stored", run.Stored()),
		slog.Duration("duration", run.CompletedAt.Sub(run.StartedAt)))
	return run, err
}

func (r *Runner) submit(stream *Stream, runID string) {
	accepted := 0
	for _, feed := range stream.Feeds {
		if stream.Scheduler.Submit(feed) {
			accepted++
			continue
		}
		state := stream.Scheduler.State(feed.FeedID())
		level := slog.LevelDebug
		if state == scheduler.StateIdle {
			// Not in flight, so the queue was full or the scheduler stopped.
			level = slog.LevelWarn
		}
		r.logger.Log(context.Background(), level, "Feed not submitted",
			slog.String("stream", stream.Name),
			slog.String("feed_id", feed.FeedID()),
			slog.String("state", string(state)))
	}
	r.logger.Info("Feeds submitted",
		slog.String("stream", stream.Name),
		slog.String("run_id", runID),
		slog.Int("accepted", accepted),
		slog.Int("feeds", len(stream.Feeds)))
}
