package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/storage"
)

// sessionID is the fixed row key: the client holds at most one session.
const sessionID = "current"

// SaveSession upserts the current session.
func (s *Store) SaveSession(ctx context.Context, rec *storage.SessionRecord) error {
	var userJSON sql.NullString
	if rec.User != nil {
		b, err := json.Marshal(rec.User)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		userJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO sessions (id, access_token, refresh_token, user_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 access_token=excluded.access_token,
		 refresh_token=excluded.refresh_token,
		 user_json=excluded.user_json,
		 updated_at=excluded.updated_at`,
		sessionID, rec.AccessToken, rec.RefreshToken, userJSON,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LoadSession retrieves the persisted session, if any.
func (s *Store) LoadSession(ctx context.Context) (*storage.SessionRecord, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, user_json FROM sessions WHERE id = ?`, sessionID)

	var rec storage.SessionRecord
	var userJSON sql.NullString
	if err := row.Scan(&rec.AccessToken, &rec.RefreshToken, &userJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shopfront.ErrNoSession
		}
		return nil, err
	}
	if userJSON.Valid {
		var u shopfront.User
		if err := json.Unmarshal([]byte(userJSON.String), &u); err != nil {
			return nil, fmt.Errorf("unmarshal user: %w", err)
		}
		rec.User = &u
	}
	return &rec, nil
}

// ClearSession removes the persisted session.
func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}
