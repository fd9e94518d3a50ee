// Package session holds the client's authentication state: the token pair
// and the authenticated user snapshot. All mutation flows through the
// session's setters; every write is persisted to the local store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/storage"
)

// Session is the single client-wide auth session. Constructed once at
// startup and passed by reference to everything that needs credentials.
type Session struct {
	mu      sync.RWMutex
	access  string
	refresh string
	user    *shopfront.User

	store   storage.SessionStore // nil = in-memory only
	onClear []func()
}

// New returns an empty session backed by store. A nil store keeps the
// session in memory only (tests).
func New(store storage.SessionStore) *Session {
	return &Session{store: store}
}

// Load restores the persisted session, if any. A missing session is not
// an error; the client simply starts logged out.
func (s *Session) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.LoadSession(ctx)
	if err != nil {
		if err == shopfront.ErrNoSession {
			return nil
		}
		return fmt.Errorf("load session: %w", err)
	}
	s.mu.Lock()
	s.access = rec.AccessToken
	s.refresh = rec.RefreshToken
	s.user = rec.User
	s.mu.Unlock()
	return nil
}

// SetTokens stores a new token pair. An empty refresh token keeps the
// previous one (the refresh endpoint may rotate only the access token).
func (s *Session) SetTokens(ctx context.Context, tokens shopfront.AuthTokens) error {
	s.mu.Lock()
	s.access = tokens.AccessToken
	if tokens.RefreshToken != "" {
		s.refresh = tokens.RefreshToken
	}
	s.mu.Unlock()
	return s.persist(ctx)
}

// SetUser stores the authenticated user snapshot.
func (s *Session) SetUser(ctx context.Context, u *shopfront.User) error {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return s.persist(ctx)
}

// AccessToken returns the current access token, or "" when logged out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the current refresh token, or "" when absent.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// User returns the authenticated user snapshot, or nil when logged out.
func (s *Session) User() *shopfront.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// LoggedIn reports whether an access token is present.
func (s *Session) LoggedIn() bool {
	return s.AccessToken() != ""
}

// OnClear registers a listener invoked after the session is cleared
// (logout or unrecoverable refresh failure).
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	s.onClear = append(s.onClear, fn)
	s.mu.Unlock()
}

// Clear wipes the in-memory session and the persisted copy, then fires
// the clear listeners. A store that also holds user preferences is
// cleared in full: logout leaves no local state behind.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.user = nil
	listeners := make([]func(), len(s.onClear))
	copy(listeners, s.onClear)
	s.mu.Unlock()

	var err error
	if s.store != nil {
		err = s.store.ClearSession(ctx)
		if p, ok := s.store.(storage.PreferenceStore); ok {
			err = errors.Join(err, p.ClearPreferences(ctx))
		}
	}
	for _, fn := range listeners {
		fn()
	}
	return err
}

func (s *Session) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.RLock()
	rec := &storage.SessionRecord{
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		User:         s.user,
	}
	s.mu.RUnlock()
	if err := s.store.SaveSession(ctx, rec); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
