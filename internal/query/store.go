// Package query implements the client-side data-fetching layer: a cache
// store keyed by endpoint and arguments, tag-based invalidation, request
// de-duplication, stale-while-revalidate, and paginated list merging.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/merchkit/shopfront/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// Status is the fetch state of a cache entry.
type Status int

const (
	StatusUninitialized Status = iota
	StatusPending
	StatusFulfilled
	StatusRejected
)

// String returns a short status name.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Options configures a Store.
type Options struct {
	// Retention is the freshness window: within it a new subscriber is
	// served from cache with no network call.
	Retention time.Duration
	// GracePeriod is how long a zero-subscriber entry is retained for
	// rapid re-mount before it becomes eligible for collection.
	GracePeriod time.Duration
	// MaxDetached caps retained zero-subscriber entries.
	MaxDetached int
	// Metrics is optional.
	Metrics *telemetry.Metrics
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the process-wide query cache. It is an explicit instance,
// constructed once at startup and passed by reference; all mutation
// flows through its methods under one mutex.
type Store struct {
	mu    sync.Mutex
	live  map[string]*entry           // entries with subscribers
	byTag [numTags]map[string]*entry  // provides-tag index over live + detached
	idle  *otter.Cache[string, *entry] // zero-subscriber entries, TTL = grace period

	group     singleflight.Group
	retention time.Duration
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// entry is one cache slot: (endpoint, serialized args) -> last-known-good
// response plus staleness and subscription metadata.
type entry struct {
	key      string
	provides TagSet

	status    Status
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool

	// gen counts invalidations. A fetch snapshots it at launch; on
	// completion a changed gen means the result predates a mutation and
	// the entry must stay stale.
	gen uint64
	// seq counts successful fetch applications, so a subscriber can wait
	// for data at least as new as the fetch it triggered.
	seq uint64

	subscribers int
	watchers    map[chan struct{}]struct{}
	fetching    bool

	// argsKey fingerprints the full argument set of the last launched
	// fetch, page number included. A subscriber arriving with different
	// arguments (the next page) must fetch even when the entry is fresh.
	argsKey string

	// refetch re-runs the last bound fetch with replace semantics.
	// Invalidation and revalidation use it so accumulated paginated
	// state restarts from page 1 instead of appending again.
	refetch func(ctx context.Context) (any, error)
}

// NewStore creates a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Retention <= 0 {
		opts.Retention = 60 * time.Second
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Minute
	}
	if opts.MaxDetached <= 0 {
		opts.MaxDetached = 1_000
	}
	idle, err := otter.New[string, *entry](&otter.Options[string, *entry]{
		MaximumSize:      opts.MaxDetached,
		ExpiryCalculator: otter.ExpiryWriting[string, *entry](opts.GracePeriod),
	})
	if err != nil {
		return nil, fmt.Errorf("create retention cache: %w", err)
	}
	s := &Store{
		live:      make(map[string]*entry),
		idle:      idle,
		retention: opts.Retention,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for i := range s.byTag {
		s.byTag[i] = make(map[string]*entry)
	}
	return s, nil
}

// subscribe attaches a watcher to the entry for key, creating or reviving
// it as needed. It reports whether a fetch should be launched and, when
// it should, whether the fetch must use replace semantics (stale data is
// never merged into).
func (s *Store) subscribe(key string, provides TagSet, argsKey string) (*entry, chan struct{}, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live[key]
	if e == nil {
		if idle, ok := s.idle.GetIfPresent(key); ok {
			e = idle
			s.idle.Invalidate(key)
			s.live[key] = e
		}
	}
	if e == nil {
		e = &entry{
			key:      key,
			provides: provides,
			watchers: make(map[chan struct{}]struct{}),
		}
		s.live[key] = e
		s.index(e)
	}

	e.subscribers++
	ch := make(chan struct{}, 1)
	e.watchers[ch] = struct{}{}

	needFetch := false
	replace := false
	switch {
	case e.fetching:
		// De-duplicated: ride the in-flight request.
		s.count(func(m *telemetry.Metrics) { m.DedupedFetches.Inc() })
	case e.status == StatusUninitialized || e.status == StatusRejected:
		needFetch = true
		s.count(func(m *telemetry.Metrics) { m.CacheMisses.Inc() })
	case e.stale || s.now().Sub(e.updatedAt) > s.retention:
		// Stale-while-revalidate: cached data is still served below, but
		// the refetch restarts from reset arguments and replaces it, so a
		// stale accumulated list is never appended onto.
		needFetch = true
		replace = true
		s.count(func(m *telemetry.Metrics) { m.CacheMisses.Inc() })
	case e.argsKey != argsKey:
		// Same cache identity, different arguments: the next page of an
		// accumulated list.
		needFetch = true
		s.count(func(m *telemetry.Metrics) { m.CacheMisses.Inc() })
	default:
		s.count(func(m *telemetry.Metrics) { m.CacheHits.Inc() })
	}
	if needFetch {
		e.fetching = true
		e.argsKey = argsKey
		if e.status == StatusUninitialized {
			e.status = StatusPending
		}
	}
	return e, ch, needFetch, replace
}

// unsubscribe detaches a watcher. When the last subscriber leaves, the
// entry moves to the grace-period retention cache rather than being
// evicted, so navigating away and back does not refetch.
func (s *Store) unsubscribe(e *entry, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(e.watchers, ch)
	if e.subscribers > 0 {
		e.subscribers--
	}
	if e.subscribers == 0 {
		delete(s.live, e.key)
		s.idle.Set(e.key, e)
	}
}

// launch runs fetchFn in the background and applies the result. The
// caller context is detached from cancellation: unsubscription never
// cancels an in-flight request.
func (s *Store) launch(ctx context.Context, e *entry, fetchFn func(ctx context.Context) (any, error), apply func(old any, hasOld bool, fresh any) any) {
	ctx = context.WithoutCancel(ctx)
	s.count(func(m *telemetry.Metrics) { m.Refetches.Inc() })
	go func() {
		s.mu.Lock()
		startGen := e.gen
		s.mu.Unlock()

		v, err, _ := s.group.Do(e.key, func() (any, error) {
			return fetchFn(ctx)
		})
		s.mu.Lock()
		e.fetching = false
		if err != nil {
			e.status = StatusRejected
			e.err = err
		} else {
			if apply != nil {
				v = apply(e.data, e.hasData && e.status == StatusFulfilled, v)
			}
			e.data = v
			e.hasData = true
			e.status = StatusFulfilled
			e.err = nil
			e.seq++
			e.updatedAt = s.now()
			if e.gen == startGen {
				e.stale = false
			} else if e.subscribers > 0 && e.refetch != nil {
				// Invalidated while this fetch was in flight: the result
				// predates the mutation. The entry stays stale and a
				// follow-up refetch goes out immediately.
				e.fetching = true
				e.argsKey = ""
				s.launch(ctx, e, e.refetch, nil)
			}
		}
		notifyAll(e)
		s.mu.Unlock()
	}()
}

// Invalidate marks every entry whose provides set intersects tags as
// stale. Entries with active subscribers refetch eagerly; detached
// entries refetch lazily on next subscription.
func (s *Store) Invalidate(ctx context.Context, tags TagSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tags.List() {
		for key, e := range s.byTag[t] {
			if !s.alive(key) {
				delete(s.byTag[t], key)
				continue
			}
			e.stale = true
			e.gen++
			e.argsKey = ""
			s.count(func(m *telemetry.Metrics) { m.CacheInvalidations.Inc() })
			if e.subscribers > 0 && !e.fetching && e.refetch != nil {
				e.fetching = true
				s.launch(ctx, e, e.refetch, nil)
			}
		}
	}
}

// Revalidate refetches every stale or expired entry that still has
// active subscribers. Driven periodically in watch mode so long-lived
// subscriptions keep fresh without a new subscribe call.
func (s *Store) Revalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.live {
		if e.subscribers == 0 || e.fetching || e.refetch == nil {
			continue
		}
		if e.stale || (e.status == StatusFulfilled && s.now().Sub(e.updatedAt) > s.retention) {
			e.fetching = true
			e.argsKey = ""
			s.launch(ctx, e, e.refetch, nil)
		}
	}
}

// PurgeAll drops every cache entry. Live entries are reset in place so
// open subscriptions observe the wipe; detached entries are discarded.
// Used on logout: no user-scoped data may survive.
func (s *Store) PurgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.live {
		e.status = StatusUninitialized
		e.data = nil
		e.hasData = false
		e.err = nil
		e.stale = true
		e.gen++
		e.argsKey = ""
		notifyAll(e)
	}
	s.idle.InvalidateAll()
	for i := range s.byTag {
		for key := range s.byTag[i] {
			if _, ok := s.live[key]; !ok {
				delete(s.byTag[i], key)
			}
		}
	}
}

// Prune drops tag-index slots whose entries are gone (grace period
// elapsed or evicted under pressure).
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.byTag {
		for key := range s.byTag[i] {
			if !s.alive(key) {
				delete(s.byTag[i], key)
			}
		}
	}
}

// EntryInfo is a diagnostic snapshot of one cache entry.
type EntryInfo struct {
	Key         string    `json:"key"`
	Status      string    `json:"status"`
	Stale       bool      `json:"stale"`
	Subscribers int       `json:"subscribers"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	Tags        string    `json:"tags"`
}

// Snapshot returns diagnostic info for all live entries.
func (s *Store) Snapshot() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.live))
	for _, e := range s.live {
		out = append(out, EntryInfo{
			Key:         e.key,
			Status:      e.status.String(),
			Stale:       e.stale,
			Subscribers: e.subscribers,
			UpdatedAt:   e.updatedAt,
			Tags:        e.provides.String(),
		})
	}
	return out
}

// alive reports whether key is present live or in the retention cache.
// Callers hold s.mu.
func (s *Store) alive(key string) bool {
	if _, ok := s.live[key]; ok {
		return true
	}
	_, ok := s.idle.GetIfPresent(key)
	return ok
}

// index registers the entry under each provided tag. Callers hold s.mu.
func (s *Store) index(e *entry) {
	for _, t := range e.provides.List() {
		s.byTag[t][e.key] = e
	}
}

func (s *Store) count(fn func(*telemetry.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

// notifyAll signals every watcher without blocking. Callers hold s.mu.
func notifyAll(e *entry) {
	for ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
