package state

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

const upsertPreferenceSQL = `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`

// GetPreference returns the stored value for key and whether it was present.
func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading preference %q: %w", key, err)
	}
	return v, true, nil
}

// GetPreferences returns the stored values for keys. Missing keys are absent
// from the result.
func (s *Store) GetPreferences(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.GetPreference(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetPreferences writes all key/value pairs in one transaction.
func (s *Store) SetPreferences(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, upsertPreferenceSQL, k, values[k]); err != nil {
				return fmt.Errorf("writing preference %q: %w", k, err)
			}
		}
		return nil
	}, TablePreferences)
}
