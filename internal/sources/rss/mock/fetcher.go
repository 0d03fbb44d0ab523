package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/curator-streams/internal/sources/rss"
)

type Fetcher struct {
	ItemsByFeed map[string][]rss.Item
	ErrByFeed   map[string]error

	mu    sync.Mutex
	Calls []string
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) ([]rss.Item, error) {
	_ = ctx
	_ = options
	f.mu.Lock()
	f.Calls = append(f.Calls, feedURL)
	f.mu.Unlock()
	if f.ErrByFeed != nil {
		if err, ok := f.ErrByFeed[feedURL]; ok {
			return nil, err
		}
	}
	return f.ItemsByFeed[feedURL], nil
}
