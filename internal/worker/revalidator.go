package worker

import (
	"context"
	"time"

	"github.com/merchkit/shopfront/internal/query"
)

// Revalidator periodically refetches stale cache entries that still have
// active subscribers and prunes dead tag-index slots. It is the watch-mode
// substitute for a UI's remount-driven refetching.
type Revalidator struct {
	cache    *query.Store
	interval time.Duration
}

// NewRevalidator creates a Revalidator ticking at interval.
func NewRevalidator(cache *query.Store, interval time.Duration) *Revalidator {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Revalidator{cache: cache, interval: interval}
}

// Run revalidates until ctx is cancelled.
func (w *Revalidator) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cache.Revalidate(ctx)
			w.cache.Prune()
		case <-ctx.Done():
			return nil
		}
	}
}
