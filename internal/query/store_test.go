package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := NewStore(opts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// countingQuery returns a query whose fetch returns an incrementing call
// number, so tests can assert both call counts and data freshness.
func countingQuery(name string, calls *atomic.Int64) Query[string, int] {
	return Query[string, int]{
		Name:     name,
		Provides: Tags(TagProduct),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			return int(calls.Add(1)), nil
		},
	}
}

// settle waits until cond holds for the subscription's current state,
// waking on updates.
func settle[R any](t *testing.T, sub *Subscription[R], cond func(R, Status) bool) R {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r, status := sub.Get()
		if cond(r, status) {
			return r
		}
		select {
		case <-sub.Updates():
		case <-deadline:
			t.Fatalf("subscription did not settle; status=%v value=%v", status, r)
		}
	}
}

func TestSubscribe_ServesFromCacheWithinRetention(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	v, err := FetchOnce(ctx, s, q, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("first fetch = %d, want 1", v)
	}

	// Detached by FetchOnce; a new subscription within the grace period
	// revives the entry without a network call.
	v, err = FetchOnce(ctx, s, q, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("cached fetch = %d, want 1", v)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestSubscribe_RefetchesAfterGracePeriod(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute, GracePeriod: 50 * time.Millisecond})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	if _, err := FetchOnce(ctx, s, q, "a"); err != nil {
		t.Fatal(err)
	}
	// Detached entries survive only for the grace period.
	time.Sleep(150 * time.Millisecond)

	v, err := FetchOnce(ctx, s, q, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("value = %d, want 2 (entry should be collected after grace)", v)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestSubscribe_DistinctArgsGetDistinctEntries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	if _, err := FetchOnce(ctx, s, q, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := FetchOnce(ctx, s, q, "b"); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestSubscribe_InFlightRequestShared(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	release := make(chan struct{})
	q := Query[string, int]{
		Name:     "slow",
		Provides: Tags(TagProduct),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		},
	}
	ctx := context.Background()

	sub1 := Subscribe(ctx, s, q, "a")
	defer sub1.Close()
	sub2 := Subscribe(ctx, s, q, "a")
	defer sub2.Close()
	close(release)

	var wg sync.WaitGroup
	for _, sub := range []*Subscription[int]{sub1, sub2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := sub.Wait(ctx)
			if err != nil {
				t.Errorf("wait: %v", err)
			}
			if v != 42 {
				t.Errorf("value = %d, want 42", v)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (request should be shared)", got)
	}
}

func TestSubscribe_RejectedEntryRetries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := Query[string, int]{
		Name:     "flaky",
		Provides: Tags(TagProduct),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			if calls.Add(1) == 1 {
				return 0, errors.New("backend down")
			}
			return 7, nil
		},
	}
	ctx := context.Background()

	if _, err := FetchOnce(ctx, s, q, "a"); err == nil {
		t.Fatal("first fetch should fail")
	}
	v, err := FetchOnce(ctx, s, q, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 7 {
		t.Errorf("value = %d, want 7", v)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestInvalidate_RefetchesSubscribedEntries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	s.Invalidate(ctx, Tags(TagProduct))
	got := settle(t, sub, func(v int, st Status) bool { return v == 2 })
	if got != 2 {
		t.Errorf("value after invalidation = %d, want 2", got)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestInvalidate_IntersectionBased(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := Query[string, int]{
		Name:     "multi",
		Provides: Tags(TagSegment, TagAnalytics),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			return int(calls.Add(1)), nil
		},
	}
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	// No overlap: nothing happens.
	s.Invalidate(ctx, Tags(TagCart))
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls after unrelated invalidation = %d, want 1", n)
	}

	// One shared tag is enough.
	s.Invalidate(ctx, Tags(TagAnalytics))
	settle(t, sub, func(v int, st Status) bool { return v == 2 })
}

func TestInvalidate_DetachedEntryRefetchesOnNextSubscribe(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	if _, err := FetchOnce(ctx, s, q, "a"); err != nil {
		t.Fatal(err)
	}

	// Detached: marked stale, no eager refetch.
	s.Invalidate(ctx, Tags(TagProduct))
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1 (detached entries refetch lazily)", n)
	}

	v, err := FetchOnce(ctx, s, q, "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
}

func TestInvalidate_DuringInFlightRefetchIsNotLost(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	gate := make(chan struct{})
	q := Query[string, int]{
		Name:     "gated",
		Provides: Tags(TagProduct),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			n := int(calls.Add(1))
			if n == 2 {
				<-gate
			}
			return n, nil
		},
	}
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	// First invalidation launches a refetch that blocks in flight.
	s.Invalidate(ctx, Tags(TagProduct))
	deadline := time.After(5 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("refetch was not launched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A second invalidation lands while that refetch is in flight. Its
	// result predates the mutation, so the entry must refetch once more
	// before it may be considered fresh.
	s.Invalidate(ctx, Tags(TagProduct))
	close(gate)

	got := settle(t, sub, func(v int, st Status) bool {
		return v == 3 && !stale(s, "gated(a)")
	})
	if got != 3 {
		t.Errorf("value = %d, want 3", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("fetch calls = %d, want 3 (mid-flight invalidation must trigger a follow-up)", n)
	}
}

func TestWait_StaleDataServedWhileRevalidating(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	release := make(chan struct{})
	var calls atomic.Int64
	q := Query[string, int]{
		Name:     "swr",
		Provides: Tags(TagProduct),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			if calls.Add(1) > 1 {
				<-release
			}
			return int(calls.Load()), nil
		},
	}
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	// Refetch is in flight and blocked; stale data must return immediately.
	s.Invalidate(ctx, Tags(TagProduct))
	done := make(chan int, 1)
	go func() {
		v, _ := sub.Wait(ctx)
		done <- v
	}()
	select {
	case v := <-done:
		if v != 1 {
			t.Errorf("stale value = %d, want 1", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on a stale entry with cached data")
	}
	close(release)
}

func TestPurgeAll_WipesLiveAndDetached(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "live")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })
	if _, err := FetchOnce(ctx, s, q, "detached"); err != nil {
		t.Fatal(err)
	}

	s.PurgeAll()

	if v, st := sub.Get(); st != StatusUninitialized || v != 0 {
		t.Errorf("live entry after purge: value=%d status=%v, want 0/uninitialized", v, st)
	}

	// Both keys refetch.
	before := calls.Load()
	if _, err := FetchOnce(ctx, s, q, "detached"); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != before+1 {
		t.Errorf("fetch calls = %d, want %d", got, before+1)
	}
}

func TestRevalidate_RefetchesExpiredSubscriptions(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := newTestStore(t, Options{Retention: time.Minute, Now: clock})
	var calls atomic.Int64
	q := countingQuery("q", &calls)
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	// Fresh: revalidation is a no-op.
	s.Revalidate(ctx)
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls after fresh revalidate = %d, want 1", n)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	s.Revalidate(ctx)
	settle(t, sub, func(v int, st Status) bool { return v == 2 })
}

func TestMutationRun_InvalidatesOnSuccessOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := Query[string, int]{
		Name:     "cart",
		Provides: Tags(TagCart),
		Key:      func(args string) string { return args },
		Fetch: func(ctx context.Context, args string) (int, error) {
			return int(calls.Add(1)), nil
		},
	}
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	fail := Mutation[struct{}, struct{}]{
		Name:        "failing",
		Invalidates: Tags(TagCart),
		Execute: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, errors.New("rejected")
		},
	}
	if _, err := Run(ctx, s, fail, struct{}{}); err == nil {
		t.Fatal("mutation should fail")
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("failed mutation must not invalidate; fetch calls = %d", n)
	}

	ok := Mutation[struct{}, struct{}]{
		Name:        "ok",
		Invalidates: Tags(TagCart),
		Execute: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, nil
		},
	}
	if _, err := Run(ctx, s, ok, struct{}{}); err != nil {
		t.Fatal(err)
	}
	settle(t, sub, func(v int, st Status) bool { return v == 2 })
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("snap", &calls)
	ctx := context.Background()

	sub := Subscribe(ctx, s, q, "a")
	defer sub.Close()
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot entries = %d, want 1", len(snap))
	}
	e := snap[0]
	if e.Key != "snap(a)" {
		t.Errorf("key = %q, want %q", e.Key, "snap(a)")
	}
	if e.Status != "fulfilled" {
		t.Errorf("status = %q, want fulfilled", e.Status)
	}
	if e.Subscribers != 1 {
		t.Errorf("subscribers = %d, want 1", e.Subscribers)
	}
	if e.Tags != "Product" {
		t.Errorf("tags = %q, want Product", e.Tags)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{Retention: time.Minute})
	var calls atomic.Int64
	q := countingQuery("q", &calls)

	sub := Subscribe(context.Background(), s, q, "a")
	settle(t, sub, func(v int, st Status) bool { return st == StatusFulfilled })
	sub.Close()
	sub.Close()
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	for want, s := range map[string]Status{
		"uninitialized": StatusUninitialized,
		"pending":       StatusPending,
		"fulfilled":     StatusFulfilled,
		"rejected":      StatusRejected,
	} {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
	if got := Status(99).String(); got != "unknown" {
		t.Errorf("unknown status = %q", got)
	}
}

func ExampleSubscribe() {
	s, _ := NewStore(Options{})
	q := Query[string, string]{
		Name:     "greeting",
		Provides: Tags(TagUser),
		Key:      func(name string) string { return name },
		Fetch: func(ctx context.Context, name string) (string, error) {
			return "hello " + name, nil
		},
	}
	v, _ := FetchOnce(context.Background(), s, q, "shopper")
	fmt.Println(v)
	// Output: hello shopper
}
