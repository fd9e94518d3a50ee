package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/merchkit/shopfront/internal/query"
)

func TestRevalidator_RefetchesExpiredEntries(t *testing.T) {
	t.Parallel()
	var offset atomic.Int64
	clock := func() time.Time {
		return time.Now().Add(time.Duration(offset.Load()))
	}
	cache, err := query.NewStore(query.Options{Retention: time.Minute, Now: clock})
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int64
	q := query.Query[string, int]{
		Name:     "cart",
		Provides: query.Tags(query.TagCart),
		Key:      func(s string) string { return s },
		Fetch: func(ctx context.Context, s string) (int, error) {
			return int(calls.Add(1)), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := query.Subscribe(ctx, cache, q, "a")
	defer sub.Close()
	if _, err := sub.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- NewRevalidator(cache, 10*time.Millisecond).Run(ctx)
	}()

	// Push the entry past the retention window; the next tick refetches.
	offset.Store(int64(2 * time.Minute))

	deadline := time.After(5 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("revalidator never refetched the stale entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("revalidator returned %v", err)
	}
}

type workerFunc func(ctx context.Context) error

func (f workerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunner_CancelsAllOnFirstError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var peerStopped atomic.Bool

	failing := workerFunc(func(ctx context.Context) error {
		return boom
	})
	peer := workerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		peerStopped.Store(true)
		return nil
	})

	err := NewRunner(failing, peer).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if !peerStopped.Load() {
		t.Error("peer worker was not cancelled")
	}
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	cache, err := query.NewStore(query.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewRunner(NewRevalidator(cache, time.Millisecond)).Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runner returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}
}
