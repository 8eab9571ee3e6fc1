package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/quoteshelf/internal/model"
)

const collectionColumns = `id, name, description, user_id, created_at, updated_at`

const upsertCollectionSQL = `
		INSERT INTO collections (id, name, description, user_id, created_at, updated_at, last_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name        = excluded.name,
		    description = excluded.description,
		    user_id     = excluded.user_id,
		    created_at  = excluded.created_at,
		    updated_at  = excluded.updated_at,
		    last_synced = excluded.last_synced`

const upsertMembershipSQL = `
		INSERT INTO collection_quotes (collection_id, quote_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection_id, quote_id) DO UPDATE SET
		    added_at = excluded.added_at`

const (
	clearCollectionSQL  = `DELETE FROM collection_quotes WHERE collection_id = ?`
	deleteCollectionSQL = `DELETE FROM collections WHERE id = ?`
)

// UpsertCollection inserts or replaces a collection keyed by ID. QuoteIDs is
// ignored; membership lives in its own table.
func (s *Store) UpsertCollection(ctx context.Context, c model.Collection) error {
	if _, err := s.exec(ctx, upsertCollectionSQL, s.collectionArgs(c), TableCollections); err != nil {
		return fmt.Errorf("upserting collection %q: %w", c.ID, err)
	}
	return nil
}

// UpsertCollections inserts or replaces all collections in one transaction.
func (s *Store) UpsertCollections(ctx context.Context, cs []model.Collection) error {
	if len(cs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range cs {
			if _, err := tx.ExecContext(ctx, upsertCollectionSQL, s.collectionArgs(c)...); err != nil {
				return fmt.Errorf("upserting collection %q: %w", c.ID, err)
			}
		}
		return nil
	}, TableCollections)
}

func (s *Store) collectionArgs(c model.Collection) []any {
	return []any{c.ID, c.Name, c.Description, c.UserID, c.CreatedAt, c.UpdatedAt, formatTime(s.now())}
}

// GetCollection returns the collection row with the given ID (QuoteIDs left
// empty), or (nil, nil) if it is not cached.
func (s *Store) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	return scanCollection(row)
}

// ListCollectionsByUser returns the collections owned by userID, most recently
// updated first. QuoteIDs is left empty.
func (s *Store) ListCollectionsByUser(ctx context.Context, userID string) ([]model.Collection, error) {
	const q = `SELECT ` + collectionColumns + ` FROM collections
		WHERE user_id = ? ORDER BY updated_at DESC, id`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying collections for user %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	cs := []model.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, *c)
	}
	return cs, rows.Err()
}

// UpdateCollection overwrites name, description and updated_at of a cached
// collection. Unknown IDs are a no-op.
func (s *Store) UpdateCollection(ctx context.Context, id, name, description, updatedAt string) error {
	const q = `UPDATE collections SET name = ?, description = ?, updated_at = ? WHERE id = ?`
	if _, err := s.exec(ctx, q, []any{name, description, updatedAt, id}, TableCollections); err != nil {
		return fmt.Errorf("updating collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollection removes a collection row only. Use
// [Store.DeleteCollectionWithMemberships] to also drop its membership.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, deleteCollectionSQL, []any{id}, TableCollections); err != nil {
		return fmt.Errorf("deleting collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollectionWithMemberships clears the membership of a collection and
// deletes it in a single transaction; readers never observe one without the
// other.
func (s *Store) DeleteCollectionWithMemberships(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, clearCollectionSQL, id); err != nil {
			return fmt.Errorf("clearing collection %q: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, deleteCollectionSQL, id); err != nil {
			return fmt.Errorf("deleting collection %q: %w", id, err)
		}
		return nil
	}, TableCollections, TableCollectionQuotes)
}

// --- membership --------------------------------------------------------------

// AddMembership inserts or replaces a (collection, quote) pair.
func (s *Store) AddMembership(ctx context.Context, m model.Membership) error {
	args := []any{m.CollectionID, m.QuoteID, formatTime(m.AddedAt)}
	if _, err := s.exec(ctx, upsertMembershipSQL, args, TableCollectionQuotes); err != nil {
		return fmt.Errorf("adding quote %q to collection %q: %w", m.QuoteID, m.CollectionID, err)
	}
	return nil
}

// UpsertMemberships inserts or replaces all pairs in one transaction.
func (s *Store) UpsertMemberships(ctx context.Context, ms []model.Membership) error {
	if len(ms) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range ms {
			if _, err := tx.ExecContext(ctx, upsertMembershipSQL, m.CollectionID, m.QuoteID, formatTime(m.AddedAt)); err != nil {
				return fmt.Errorf("adding quote %q to collection %q: %w", m.QuoteID, m.CollectionID, err)
			}
		}
		return nil
	}, TableCollectionQuotes)
}

// RemoveMembership deletes a single (collection, quote) pair.
func (s *Store) RemoveMembership(ctx context.Context, collectionID, quoteID string) error {
	const q = `DELETE FROM collection_quotes WHERE collection_id = ? AND quote_id = ?`
	if _, err := s.exec(ctx, q, []any{collectionID, quoteID}, TableCollectionQuotes); err != nil {
		return fmt.Errorf("removing quote %q from collection %q: %w", quoteID, collectionID, err)
	}
	return nil
}

// ClearCollection deletes every membership row of a collection.
func (s *Store) ClearCollection(ctx context.Context, collectionID string) error {
	if _, err := s.exec(ctx, clearCollectionSQL, []any{collectionID}, TableCollectionQuotes); err != nil {
		return fmt.Errorf("clearing collection %q: %w", collectionID, err)
	}
	return nil
}

// QuoteIDsInCollection returns the member quote IDs of a collection in the
// order they were added.
func (s *Store) QuoteIDsInCollection(ctx context.Context, collectionID string) ([]string, error) {
	const q = `SELECT quote_id FROM collection_quotes WHERE collection_id = ? ORDER BY added_at, quote_id`
	rows, err := s.db.QueryContext(ctx, q, collectionID)
	if err != nil {
		return nil, fmt.Errorf("querying members of collection %q: %w", collectionID, err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Membership returns a single membership row, or (nil, nil) if absent.
func (s *Store) Membership(ctx context.Context, collectionID, quoteID string) (*model.Membership, error) {
	const q = `SELECT collection_id, quote_id, added_at FROM collection_quotes
		WHERE collection_id = ? AND quote_id = ?`
	var (
		m       model.Membership
		addedAt string
	)
	err := s.db.QueryRowContext(ctx, q, collectionID, quoteID).Scan(&m.CollectionID, &m.QuoteID, &addedAt)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning membership row: %w", err)
	}
	m.AddedAt, _ = parseTime(addedAt)
	return &m, nil
}

func scanCollection(s scanner) (*model.Collection, error) {
	var c model.Collection
	err := s.Scan(&c.ID, &c.Name, &c.Description, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning collection row: %w", err)
	}
	c.QuoteIDs = []string{}
	return &c, nil
}
