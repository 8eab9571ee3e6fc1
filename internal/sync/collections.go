package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

// SyncStats summarizes one [CollectionSync.SyncCollections] pass.
type SyncStats struct {
	Collections int
	Memberships int
}

// CollectionSync manages user collections. Creation is remote-first; adding a
// quote tolerates remote denial; every other mutation writes locally only
// after the remote write succeeded.
type CollectionSync struct {
	remote CollectionRemote
	local  CollectionStore
	log    *slog.Logger
	now    func() time.Time
}

// NewCollectionSync creates a CollectionSync.
func NewCollectionSync(remote CollectionRemote, local CollectionStore, logger *slog.Logger) *CollectionSync {
	return &CollectionSync{remote: remote, local: local, log: logger, now: time.Now}
}

// UserCollections watches the collections owned by userID with their member
// quote IDs, most recently updated first.
func (s *CollectionSync) UserCollections(ctx context.Context, userID string) *live.Subscription[[]model.Collection] {
	return live.Watch(ctx, s.local, func(ctx context.Context) ([]model.Collection, error) {
		cs, err := s.local.ListCollectionsByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for i := range cs {
			ids, err := s.local.QuoteIDsInCollection(ctx, cs[i].ID)
			if err != nil {
				return nil, err
			}
			cs[i].QuoteIDs = ids
		}
		return cs, nil
	}, state.TableCollections, state.TableCollectionQuotes)
}

// QuotesInCollection watches the cached quotes that belong to collectionID.
// Members whose quote is not cached are skipped.
func (s *CollectionSync) QuotesInCollection(ctx context.Context, collectionID string) *live.Subscription[[]model.Quote] {
	return live.Watch(ctx, s.local, func(ctx context.Context) ([]model.Quote, error) {
		ids, err := s.local.QuoteIDsInCollection(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		quotes := make([]model.Quote, 0, len(ids))
		for _, id := range ids {
			q, err := s.local.GetQuote(ctx, id)
			if err != nil {
				return nil, err
			}
			if q != nil {
				quotes = append(quotes, *q)
			}
		}
		return quotes, nil
	}, state.TableCollectionQuotes, state.TableQuotes)
}

// CollectionByID returns a cached collection with its member IDs, or
// (nil, nil) if it is not cached.
func (s *CollectionSync) CollectionByID(ctx context.Context, id string) (*model.Collection, error) {
	c, err := s.local.GetCollection(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	ids, err := s.local.QuoteIDsInCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	c.QuoteIDs = ids
	return c, nil
}

// CreateCollection creates the collection remotely and mirrors the returned
// record locally. Nothing is written locally when the remote insert fails.
func (s *CollectionSync) CreateCollection(ctx context.Context, name, description string) (*model.Collection, error) {
	user, err := s.remote.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	if user == nil {
		return nil, ErrSignInForCollections
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	c, err := s.remote.InsertCollection(ctx, user.ID, name, description)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	if err := s.local.UpsertCollection(ctx, *c); err != nil {
		return nil, fmt.Errorf("caching collection %q: %w", c.ID, err)
	}
	c.QuoteIDs = []string{}
	s.log.Info("collection created", "collection_id", c.ID, "name", c.Name)
	return c, nil
}

// UpdateCollection renames and re-describes a collection remotely, then
// locally. A remote failure leaves the local copy untouched.
func (s *CollectionSync) UpdateCollection(ctx context.Context, id, name, description string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	updatedAt := model.FormatTimestamp(s.now())
	if err := s.remote.UpdateCollection(ctx, id, name, description, updatedAt); err != nil {
		return fmt.Errorf("updating collection %q: %w", id, err)
	}
	if err := s.local.UpdateCollection(ctx, id, name, description, updatedAt); err != nil {
		return fmt.Errorf("updating cached collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollection deletes the remote memberships, then the remote
// collection, then the local collection and its memberships in one
// transaction. Remote deletes already applied are not undone when a later
// step fails, and nothing local changes in that case.
func (s *CollectionSync) DeleteCollection(ctx context.Context, id string) error {
	if err := s.remote.DeleteCollectionMemberships(ctx, id); err != nil {
		return fmt.Errorf("deleting collection %q: %w", id, err)
	}
	if err := s.remote.DeleteCollection(ctx, id); err != nil {
		return fmt.Errorf("deleting collection %q: %w", id, err)
	}
	if err := s.local.DeleteCollectionWithMemberships(ctx, id); err != nil {
		return fmt.Errorf("deleting cached collection %q: %w", id, err)
	}
	s.log.Info("collection deleted", "collection_id", id)
	return nil
}

// AddQuoteToCollection attempts the remote insert, logs and ignores its
// failure, and always records the membership locally. Only a local failure
// is returned.
func (s *CollectionSync) AddQuoteToCollection(ctx context.Context, collectionID, quoteID string) error {
	if err := s.remote.InsertMembership(ctx, collectionID, quoteID); err != nil {
		s.log.Warn("remote membership insert failed, saving locally only",
			"collection_id", collectionID, "quote_id", quoteID, "error", err)
	}
	m := model.Membership{CollectionID: collectionID, QuoteID: quoteID, AddedAt: s.now()}
	if err := s.local.AddMembership(ctx, m); err != nil {
		return fmt.Errorf("adding quote %q to collection %q: %w", quoteID, collectionID, err)
	}
	return nil
}

// RemoveQuoteFromCollection deletes the remote membership and, only if that
// succeeded, the local one.
func (s *CollectionSync) RemoveQuoteFromCollection(ctx context.Context, collectionID, quoteID string) error {
	if err := s.remote.DeleteMembership(ctx, collectionID, quoteID); err != nil {
		return fmt.Errorf("removing quote %q from collection %q: %w", quoteID, collectionID, err)
	}
	if err := s.local.RemoveMembership(ctx, collectionID, quoteID); err != nil {
		return fmt.Errorf("removing quote %q from cached collection %q: %w", quoteID, collectionID, err)
	}
	return nil
}

// SyncCollections pulls the user's collections and every membership row of
// the remote table and upserts both locally.
//
// The membership fetch is not scoped to the user, so other users' rows are
// cached too. Kept as-is until the remote offers a per-user view.
func (s *CollectionSync) SyncCollections(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	user, err := s.remote.CurrentUser(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncing collections: %w", err)
	}
	if user == nil {
		return stats, ErrNotAuthenticated
	}

	collections, err := s.remote.FetchCollections(ctx, user.ID)
	if err != nil {
		return stats, fmt.Errorf("syncing collections: %w", err)
	}
	memberships, err := s.remote.FetchAllMemberships(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncing collections: %w", err)
	}

	if err := s.local.UpsertCollections(ctx, collections); err != nil {
		return stats, fmt.Errorf("caching collections: %w", err)
	}
	stats.Collections = len(collections)

	now := s.now()
	for i := range memberships {
		if memberships[i].AddedAt.IsZero() {
			memberships[i].AddedAt = now
		}
	}
	if err := s.local.UpsertMemberships(ctx, memberships); err != nil {
		return stats, fmt.Errorf("caching memberships: %w", err)
	}
	stats.Memberships = len(memberships)

	s.log.Debug("collections synced", "collections", stats.Collections, "memberships", stats.Memberships)
	return stats, nil
}
