package shop

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/query"
)

// authResponse is the payload of login and register.
type authResponse struct {
	shopfront.AuthTokens
	User *shopfront.User `json:"user"`
}

// refreshRequest is the token refresh payload.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// registerRequest is the account creation payload.
type registerRequest struct {
	shopfront.Credentials
	Name string `json:"name"`
}

// Login authenticates and stores the session. User-scoped cache tags are
// invalidated: the backend merges any anonymous cart into the account.
func (s *Service) Login(ctx context.Context, creds shopfront.Credentials) (*shopfront.User, error) {
	var resp authResponse
	if err := s.api.DoOnce(ctx, http.MethodPost, "/auth/login", nil, creds, &resp); err != nil {
		return nil, err
	}
	if err := s.session.SetTokens(ctx, resp.AuthTokens); err != nil {
		return nil, err
	}
	if err := s.session.SetUser(ctx, resp.User); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, query.Tags(query.TagUser, query.TagCart, query.TagOrder))
	return resp.User, nil
}

// Register creates an account and logs in.
func (s *Service) Register(ctx context.Context, creds shopfront.Credentials, name string) (*shopfront.User, error) {
	var resp authResponse
	req := registerRequest{Credentials: creds, Name: name}
	if err := s.api.DoOnce(ctx, http.MethodPost, "/auth/register", nil, req, &resp); err != nil {
		return nil, err
	}
	if err := s.session.SetTokens(ctx, resp.AuthTokens); err != nil {
		return nil, err
	}
	if err := s.session.SetUser(ctx, resp.User); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, query.Tags(query.TagUser, query.TagCart, query.TagOrder))
	return resp.User, nil
}

// Logout revokes the session server-side (best effort) and clears it
// locally. Clearing the session purges the whole cache via the OnClear
// listener installed in New.
func (s *Service) Logout(ctx context.Context) error {
	if s.session.LoggedIn() {
		if err := s.api.DoOnce(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
			slog.Warn("server-side logout failed", "error", err)
		}
	}
	return s.session.Clear(ctx)
}

// Refresh implements api.TokenRefresher: it exchanges the refresh token
// for a new access token. Dispatched outside the interceptor so a 401
// here cannot recurse.
func (s *Service) Refresh(ctx context.Context) error {
	rt := s.session.RefreshToken()
	if rt == "" {
		return shopfront.ErrNoRefreshToken
	}
	var tokens shopfront.AuthTokens
	if err := s.api.DoOnce(ctx, http.MethodPost, "/auth/refresh", nil, refreshRequest{RefreshToken: rt}, &tokens); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	return s.session.SetTokens(ctx, tokens)
}
