// Package storage defines local persistence interfaces for the storefront client.
package storage

import (
	"context"

	shopfront "github.com/merchkit/shopfront/internal"
)

// SessionRecord is the durable form of the auth session.
type SessionRecord struct {
	AccessToken  string
	RefreshToken string
	User         *shopfront.User
}

// SessionStore persists the auth session under a fixed key.
type SessionStore interface {
	SaveSession(ctx context.Context, rec *SessionRecord) error
	// LoadSession returns shopfront.ErrNoSession when nothing is persisted.
	LoadSession(ctx context.Context) (*SessionRecord, error)
	ClearSession(ctx context.Context) error
}

// PreferenceStore persists small user preferences (theme and the like)
// as key/value pairs.
type PreferenceStore interface {
	SetPreference(ctx context.Context, key, value string) error
	// GetPreference returns "" with no error for an unset key.
	GetPreference(ctx context.Context, key string) (string, error)
	ClearPreferences(ctx context.Context) error
}

// Store combines all storage interfaces.
type Store interface {
	SessionStore
	PreferenceStore
	Ping(ctx context.Context) error
	Close() error
}

// Well-known preference keys.
const (
	PrefTheme = "theme"
)
