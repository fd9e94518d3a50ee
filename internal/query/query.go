package query

import (
	"context"
	"fmt"
)

// Query describes a cacheable read endpoint. A is the argument type,
// R the response type.
type Query[A, R any] struct {
	// Name is the endpoint name; with Key(args) it forms cache identity.
	Name string
	// Provides declares the tags this query's entries carry.
	Provides TagSet
	// Key serializes the identity-relevant arguments. Paginated queries
	// exclude the page number here so all pages share one entry.
	Key func(args A) string
	// Fetch performs the network call.
	Fetch func(ctx context.Context, args A) (R, error)
	// Merge combines cached data with a fresh response. Nil means the
	// fresh response replaces the cache.
	Merge func(cached, fresh R, args A) R
	// Reset rewrites the arguments for invalidation-driven refetches
	// (e.g. back to page 1 so an accumulated list restarts cleanly).
	// Nil reuses the last subscribed arguments.
	Reset func(args A) A
}

// Subscription is a live attachment to one cache entry.
type Subscription[R any] struct {
	store *Store
	e     *entry
	ch    chan struct{}
	done  bool

	// minSeq is the entry sequence Wait blocks for: the current sequence
	// when served from cache, one past it when this subscription forced a
	// fetch.
	minSeq uint64
}

// Subscribe attaches to the cache entry for (q, args), creating it if
// needed. Cached data is available immediately via Get; a background
// fetch is launched when the entry is absent, stale, or past the
// retention window. Concurrent subscriptions to the same key share one
// in-flight request.
func Subscribe[A, R any](ctx context.Context, s *Store, q Query[A, R], args A) *Subscription[R] {
	key := q.Name + "(" + q.Key(args) + ")"
	// The fingerprint covers the full argument set, page included, so a
	// "load more" subscription fetches even when the entry is fresh.
	e, ch, needFetch, replace := s.subscribe(key, q.Provides, fmt.Sprintf("%+v", args))

	// Rebind the replace-semantics refetch to the latest arguments.
	refetchArgs := args
	if q.Reset != nil {
		refetchArgs = q.Reset(args)
	}
	refetchFn := func(ctx context.Context) (any, error) {
		return q.Fetch(ctx, refetchArgs)
	}
	s.mu.Lock()
	e.refetch = refetchFn
	if needFetch && replace {
		// The stale-driven fetch runs with the reset arguments, so the
		// fingerprint must record those, not the subscriber's.
		e.argsKey = fmt.Sprintf("%+v", refetchArgs)
	}
	minSeq := e.seq
	if needFetch {
		minSeq++
	}
	s.mu.Unlock()

	if needFetch {
		if replace {
			s.launch(ctx, e, refetchFn, nil)
		} else {
			fetchFn := func(ctx context.Context) (any, error) {
				return q.Fetch(ctx, args)
			}
			var apply func(old any, hasOld bool, fresh any) any
			if q.Merge != nil {
				apply = func(old any, hasOld bool, fresh any) any {
					if !hasOld {
						return fresh
					}
					return q.Merge(old.(R), fresh.(R), args)
				}
			}
			s.launch(ctx, e, fetchFn, apply)
		}
	}
	return &Subscription[R]{store: s, e: e, ch: ch, minSeq: minSeq}
}

// Get returns the entry's current data and status. The zero R is
// returned until the first fulfillment.
func (sub *Subscription[R]) Get() (R, Status) {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	var r R
	if sub.e.hasData {
		r = sub.e.data.(R)
	}
	return r, sub.e.status
}

// Err returns the last fetch error, if the entry is rejected.
func (sub *Subscription[R]) Err() error {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return sub.e.err
}

// Updates signals whenever the entry changes. The channel never closes;
// callers multiplex it with their own cancellation.
func (sub *Subscription[R]) Updates() <-chan struct{} {
	return sub.ch
}

// Wait blocks until the entry holds data at least as new as this
// subscription's own fetch. A subscription served from cache returns
// immediately, stale-while-revalidate included; one that forced a fetch
// (first load, changed arguments such as the next page) waits for that
// fetch, so its result is applied before Wait returns.
func (sub *Subscription[R]) Wait(ctx context.Context) (R, error) {
	for {
		sub.store.mu.Lock()
		status, err := sub.e.status, sub.e.err
		var r R
		if sub.e.hasData {
			r = sub.e.data.(R)
		}
		settled := sub.e.hasData && sub.e.seq >= sub.minSeq
		sub.store.mu.Unlock()

		switch {
		case settled:
			return r, nil
		case status == StatusRejected:
			return r, err
		}
		select {
		case <-sub.ch:
		case <-ctx.Done():
			return r, ctx.Err()
		}
	}
}

// Close detaches the subscription. The entry is retained for the grace
// period; an in-flight fetch is not cancelled.
func (sub *Subscription[R]) Close() {
	if sub.done {
		return
	}
	sub.done = true
	sub.store.unsubscribe(sub.e, sub.ch)
}

// FetchOnce subscribes, waits for data, and detaches. Convenience for
// one-shot consumers like CLI commands. When the call forces a fetch,
// the returned data includes that fetch's result: asking for the next
// page returns the accumulated list with the new page merged in.
func FetchOnce[A, R any](ctx context.Context, s *Store, q Query[A, R], args A) (R, error) {
	sub := Subscribe(ctx, s, q, args)
	defer sub.Close()
	return sub.Wait(ctx)
}

// Mutation describes a one-shot write endpoint. On success the declared
// tags are invalidated, marking every providing entry stale.
type Mutation[A, R any] struct {
	Name string
	// Invalidates declares the tags stale after a successful execution.
	Invalidates TagSet
	Execute     func(ctx context.Context, args A) (R, error)
}

// Run executes the mutation and, on success, invalidates its declared
// tags. Subscribed entries providing those tags refetch immediately.
func Run[A, R any](ctx context.Context, s *Store, m Mutation[A, R], args A) (R, error) {
	r, err := m.Execute(ctx, args)
	if err != nil {
		return r, err
	}
	s.Invalidate(ctx, m.Invalidates)
	return r, nil
}
