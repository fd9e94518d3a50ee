package session

import (
	"context"
	"testing"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/storage"
)

// memStore is an in-memory SessionStore.
type memStore struct {
	rec *storage.SessionRecord
}

func (m *memStore) SaveSession(_ context.Context, rec *storage.SessionRecord) error {
	cp := *rec
	m.rec = &cp
	return nil
}

func (m *memStore) LoadSession(context.Context) (*storage.SessionRecord, error) {
	if m.rec == nil {
		return nil, shopfront.ErrNoSession
	}
	cp := *m.rec
	return &cp, nil
}

func (m *memStore) ClearSession(context.Context) error {
	m.rec = nil
	return nil
}

// prefStore is a memStore that also persists preferences, like the
// SQLite store does.
type prefStore struct {
	memStore
	prefsCleared bool
}

func (p *prefStore) SetPreference(context.Context, string, string) error { return nil }

func (p *prefStore) GetPreference(context.Context, string) (string, error) { return "", nil }

func (p *prefStore) ClearPreferences(context.Context) error {
	p.prefsCleared = true
	return nil
}

func TestSetTokens_EmptyRefreshKeepsPrevious(t *testing.T) {
	t.Parallel()
	s := New(nil)
	ctx := context.Background()

	if err := s.SetTokens(ctx, shopfront.AuthTokens{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}
	// Refresh responses may rotate only the access token.
	if err := s.SetTokens(ctx, shopfront.AuthTokens{AccessToken: "a2"}); err != nil {
		t.Fatal(err)
	}
	if got := s.AccessToken(); got != "a2" {
		t.Errorf("access = %q, want a2", got)
	}
	if got := s.RefreshToken(); got != "r1" {
		t.Errorf("refresh = %q, want r1 (empty refresh must not erase)", got)
	}
}

func TestLoggedIn(t *testing.T) {
	t.Parallel()
	s := New(nil)
	if s.LoggedIn() {
		t.Error("empty session reports logged in")
	}
	if err := s.SetTokens(context.Background(), shopfront.AuthTokens{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	if !s.LoggedIn() {
		t.Error("session with token reports logged out")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	ctx := context.Background()

	s1 := New(store)
	if err := s1.SetTokens(ctx, shopfront.AuthTokens{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := s1.SetUser(ctx, &shopfront.User{ID: "u-1", Name: "Ada"}); err != nil {
		t.Fatal(err)
	}

	// A fresh process restores the session from the store.
	s2 := New(store)
	if err := s2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if s2.AccessToken() != "a" || s2.RefreshToken() != "r" {
		t.Errorf("tokens = %q/%q", s2.AccessToken(), s2.RefreshToken())
	}
	if u := s2.User(); u == nil || u.ID != "u-1" {
		t.Errorf("user = %+v", u)
	}
}

func TestLoad_MissingSessionIsNotAnError(t *testing.T) {
	t.Parallel()
	s := New(&memStore{})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.LoggedIn() {
		t.Error("should start logged out")
	}
}

func TestClear_WipesStateAndFiresListeners(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	s := New(store)
	ctx := context.Background()

	if err := s.SetTokens(ctx, shopfront.AuthTokens{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetUser(ctx, &shopfront.User{ID: "u-1"}); err != nil {
		t.Fatal(err)
	}

	fired := 0
	s.OnClear(func() { fired++ })
	s.OnClear(func() { fired++ })

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s.LoggedIn() || s.RefreshToken() != "" || s.User() != nil {
		t.Error("session not wiped")
	}
	if fired != 2 {
		t.Errorf("listeners fired = %d, want 2", fired)
	}
	if store.rec != nil {
		t.Error("persisted session not cleared")
	}
}

func TestClear_WipesPersistedPreferences(t *testing.T) {
	t.Parallel()
	store := &prefStore{}
	s := New(store)
	ctx := context.Background()

	if err := s.SetTokens(ctx, shopfront.AuthTokens{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	// Logout must leave no local state behind, preferences included.
	if !store.prefsCleared {
		t.Error("preferences survived the session wipe")
	}
	if store.rec != nil {
		t.Error("persisted session not cleared")
	}
}
