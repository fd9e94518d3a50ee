package shopfront

import "errors"

// Sentinel errors for the storefront client domain.
var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrNoSession      = errors.New("no persisted session")
)
