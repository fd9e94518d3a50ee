package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

// SetPreference upserts a key/value preference.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetPreference returns the value for key, or "" when unset.
func (s *Store) GetPreference(ctx context.Context, key string) (string, error) {
	row := s.read.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// ClearPreferences removes all preferences.
func (s *Store) ClearPreferences(ctx context.Context) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM preferences`)
	return err
}
