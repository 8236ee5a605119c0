package source

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/logging"
)

// Cache is a Fetcher over resources fetched ahead of time. Each resource keeps
// its own outcome, so one failed download does not hide the others.
type Cache struct {
	data map[string][]byte
	errs map[string]error
	next Fetcher
}

// Prefetch fetches names concurrently, at most limit at a time. It never
// fails as a whole; per-resource errors are returned by Cache.Fetch.
func Prefetch(ctx context.Context, f Fetcher, names []string, limit int) *Cache {
	if limit <= 0 {
		limit = 4
	}

	c := &Cache{
		data: make(map[string][]byte, len(names)),
		errs: make(map[string]error),
		next: f,
	}
	var mu sync.Mutex
	log := logctx.FromContext(ctx)

	// A plain group, not WithContext: a failure must not cancel the siblings.
	var g errgroup.Group
	g.SetLimit(limit)

	for _, name := range names {
		if name == "" {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			data, err := f.Fetch(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.errs[name] = err
				log.Warn().Err(err).Str("resource", name).Msg("prefetch failed")
				return nil
			}
			c.data[name] = data

			logging.FetchComplete(log, name, time.Since(start)).
				Bytes("size", int64(len(data))).
				LogDebug("prefetched resource")
			return nil
		})
	}
	_ = g.Wait()

	return c
}

// Fetch returns the prefetched bytes or error for name. Names that were not
// prefetched are fetched directly.
func (c *Cache) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err, ok := c.errs[name]; ok {
		return nil, err
	}
	if data, ok := c.data[name]; ok {
		return data, nil
	}
	return c.next.Fetch(ctx, name)
}

// Failed returns the resources whose prefetch failed.
func (c *Cache) Failed() map[string]error {
	out := make(map[string]error, len(c.errs))
	for k, v := range c.errs {
		out[k] = v
	}
	return out
}
