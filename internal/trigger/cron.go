// Package trigger emits ticks that tell the runner to re-submit a stream's feeds.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/bakkerme/curator-streams/internal/config"
)

// Tick is one firing of a schedule.
type Tick struct {
	Stream string
	RunID  string
	Time   time.Time
}

// Cron fires on a cron schedule. A tick that has not been consumed yet absorbs
// later firings, so a slow consumer sees at most one pending tick.
type Cron struct {
	stream   string
	schedule string
	location *time.Location
	now      func() time.Time

	cron   *cron.Cron
	events chan Tick
	once   sync.Once
}

func NewCron(stream string, cfg *config.CronTrigger) (*Cron, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cron schedule is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	location := time.UTC
	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		location = tz
	}
	return &Cron{
		stream:   stream,
		schedule: cfg.Cron,
		location: location,
		now:      time.Now,
		events:   make(chan Tick, 1),
	}, nil
}

// Start begins firing. The returned channel is closed once ctx is done or Stop
// is called.
func (c *Cron) Start(ctx context.Context) (<-chan Tick, error) {
	c.cron = cron.New(cron.WithLocation(c.location))
	if _, err := c.cron.AddFunc(c.schedule, c.fire); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return c.events, nil
}

// Next returns the next firing time after t.
func (c *Cron) Next(t time.Time) time.Time {
	schedule, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(t.In(c.location))
}

func (c *Cron) Stop() {
	c.once.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		close(c.events)
	})
}

func (c *Cron) fire() {
	select {
	case c.events <- Tick{Stream: c.stream, RunID: uuid.NewString(), Time: c.now().UTC()}:
	default:
	}
}
