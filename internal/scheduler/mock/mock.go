// Package mock provides in-memory scheduler collaborators for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bakkerme/curator-streams/internal/core"
)

// Retriever returns canned responses per feed id. When Block is set, every call
// waits for a value on it (or for ctx) before returning.
type Retriever struct {
	mu        sync.Mutex
	Responses map[string]core.Response
	Block     chan struct{}
	Calls     []string
}

func (r *Retriever) Retrieve(ctx context.Context, feed core.Feed, _ core.Budget) core.Response {
	r.mu.Lock()
	r.Calls = append(r.Calls, feed.FeedID())
	resp := r.Responses[feed.FeedID()]
	block := r.Block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return core.Response{Stop: core.StopCancelled, Err: ctx.Err(), Watermark: feed.Watermark()}
		}
	}
	if resp.Watermark.IsZero() {
		resp.Watermark = feed.Watermark()
	}
	return resp
}

// CallCount returns the number of Retrieve calls so far.
func (r *Retriever) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Sink records stored and deleted items. Items whose id is in FailIDs are rejected.
type Sink struct {
	mu      sync.Mutex
	FailIDs map[string]bool
	Stored  []*core.Item
	Deleted []string
}

func (s *Sink) Store(_ context.Context, item *core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailIDs[item.ID] {
		return fmt.Errorf("store %s: rejected", item.ID)
	}
	s.Stored = append(s.Stored, item)
	return nil
}

func (s *Sink) StoreBatch(ctx context.Context, items []*core.Item) error {
	for _, item := range items {
		if err := s.Store(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Delete(_ context.Context, item *core.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, item.ID)
	return nil
}

// StoredIDs returns the ids of stored items in order.
func (s *Sink) StoredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.Stored))
	for _, item := range s.Stored {
		ids = append(ids, item.ID)
	}
	return ids
}

// Watermarks records persisted watermarks by feed id.
type Watermarks struct {
	mu    sync.Mutex
	Saved map[string]time.Time
	Err   error
}

func (w *Watermarks) SaveWatermark(_ context.Context, feedID string, watermark time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	if w.Saved == nil {
		w.Saved = map[string]time.Time{}
	}
	w.Saved[feedID] = watermark
	return nil
}

// Get returns the persisted watermark of feedID.
func (w *Watermarks) Get(feedID string) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.Saved[feedID]
	return t, ok
}
