// Package sync keeps the local SQLite cache and the remote backend in step.
//
// The package contains three main components:
//
//   - [QuoteCache] refreshes the quote catalog, projects the user's favorites
//     onto it, serves every quote read from the local cache and owns the
//     favorite dual-write and the daily quote.
//   - [CollectionSync] manages user collections and their membership with
//     local-first durability and best-effort remote mirroring.
//   - [Engine] drives periodic refresh passes; [Bootstrap] warms an empty
//     cache on first run.
package sync

import (
	"context"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

// Identity reports the signed-in user, or (nil, nil) when signed out.
// Implemented by [remote.Adapter].
type Identity interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// QuoteRemote is the remote side of the quote cache.
// Implemented by [remote.Adapter].
type QuoteRemote interface {
	Identity
	FetchQuotes(ctx context.Context) ([]model.Quote, error)
	FetchFavoriteQuoteIDs(ctx context.Context, userID string) ([]string, error)
	InsertFavorite(ctx context.Context, userID, quoteID string) error
	DeleteFavorite(ctx context.Context, userID, quoteID string) error
}

// CollectionRemote is the remote side of collection sync.
// Implemented by [remote.Adapter].
type CollectionRemote interface {
	Identity
	InsertCollection(ctx context.Context, userID, name, description string) (*model.Collection, error)
	UpdateCollection(ctx context.Context, id, name, description, updatedAt string) error
	DeleteCollectionMemberships(ctx context.Context, id string) error
	DeleteCollection(ctx context.Context, id string) error
	InsertMembership(ctx context.Context, collectionID, quoteID string) error
	DeleteMembership(ctx context.Context, collectionID, quoteID string) error
	FetchCollections(ctx context.Context, userID string) ([]model.Collection, error)
	FetchAllMemberships(ctx context.Context) ([]model.Membership, error)
}

// QuoteStore is the local side of the quote cache.
// Implemented by [state.Store].
type QuoteStore interface {
	live.Source
	UpsertQuotes(ctx context.Context, quotes []model.Quote) error
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	ListQuotes(ctx context.Context, f state.QuoteFilter) ([]model.Quote, error)
	RandomQuote(ctx context.Context) (*model.Quote, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	GetPreferences(ctx context.Context, keys ...string) (map[string]string, error)
	SetPreferences(ctx context.Context, values map[string]string) error
	IsEmpty(ctx context.Context) (bool, error)
}

// CollectionStore is the local side of collection sync.
// Implemented by [state.Store].
type CollectionStore interface {
	live.Source
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	UpsertCollection(ctx context.Context, c model.Collection) error
	UpsertCollections(ctx context.Context, cs []model.Collection) error
	GetCollection(ctx context.Context, id string) (*model.Collection, error)
	ListCollectionsByUser(ctx context.Context, userID string) ([]model.Collection, error)
	UpdateCollection(ctx context.Context, id, name, description, updatedAt string) error
	DeleteCollectionWithMemberships(ctx context.Context, id string) error
	AddMembership(ctx context.Context, m model.Membership) error
	UpsertMemberships(ctx context.Context, ms []model.Membership) error
	RemoveMembership(ctx context.Context, collectionID, quoteID string) error
	QuoteIDsInCollection(ctx context.Context, collectionID string) ([]string, error)
}
