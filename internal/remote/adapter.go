package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/njoerd114/quoteshelf/internal/model"
)

// API is the subset of [Client] methods used by the adapter. Defining it as
// an interface allows mock injection in tests.
type API interface {
	Select(ctx context.Context, table string, filters ...Filter) ([]Row, error)
	Insert(ctx context.Context, table string, row Row, opts ...WriteOption) ([]Row, error)
	Update(ctx context.Context, table string, values Row, filters []Filter, opts ...WriteOption) ([]Row, error)
	Delete(ctx context.Context, table string, filters ...Filter) error
	CurrentUser(ctx context.Context) (*model.User, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
	Ping(ctx context.Context) error
}

// Adapter provides sync-oriented operations on the remote tables. Create one
// with [NewAdapter].
type Adapter struct {
	api    API
	logger *slog.Logger
	now    func() time.Time
}

// NewAdapter wraps api.
func NewAdapter(api API, logger *slog.Logger) *Adapter {
	return &Adapter{api: api, logger: logger, now: time.Now}
}

// Ping validates the remote connection and API key.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.api.Ping(ctx)
}

// CurrentUser returns the signed-in identity, or (nil, nil) when signed out.
func (a *Adapter) CurrentUser(ctx context.Context) (*model.User, error) {
	return a.api.CurrentUser(ctx)
}

// --- quotes & favorites -------------------------------------------------------

// FetchQuotes returns the full quote catalog.
func (a *Adapter) FetchQuotes(ctx context.Context) ([]model.Quote, error) {
	rows, err := a.api.Select(ctx, TableQuotes)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	quotes := make([]model.Quote, 0, len(rows))
	for _, r := range rows {
		q := quoteFromRow(r)
		if q.ID == "" {
			a.logger.Warn("skipping quote row without id")
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// FetchFavoriteQuoteIDs returns the quote IDs userID has favorited.
func (a *Adapter) FetchFavoriteQuoteIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := a.api.Select(ctx, TableFavorites, Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("fetch favorites for %s: %w", userID, err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if f := favoriteFromRow(r); f.QuoteID != "" {
			ids = append(ids, f.QuoteID)
		}
	}
	return ids, nil
}

// InsertFavorite records that userID favorited quoteID.
func (a *Adapter) InsertFavorite(ctx context.Context, userID, quoteID string) error {
	if _, err := a.api.Insert(ctx, TableFavorites, favoriteRow(userID, quoteID)); err != nil {
		return fmt.Errorf("add favorite %q: %w", quoteID, err)
	}
	return nil
}

// DeleteFavorite removes the (userID, quoteID) favorite.
func (a *Adapter) DeleteFavorite(ctx context.Context, userID, quoteID string) error {
	err := a.api.Delete(ctx, TableFavorites, Eq("user_id", userID), Eq("quote_id", quoteID))
	if err != nil {
		return fmt.Errorf("remove favorite %q: %w", quoteID, err)
	}
	return nil
}

// --- collections ---------------------------------------------------------------

// InsertCollection creates a collection and returns the stored record with
// its server-assigned ID and timestamps.
func (a *Adapter) InsertCollection(ctx context.Context, userID, name, description string) (*model.Collection, error) {
	rows, err := a.api.Insert(ctx, TableCollections, collectionInsertRow(userID, name, description), Returning())
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create collection %q: server returned no row", name)
	}
	c := collectionFromRow(rows[0])
	if c.ID == "" {
		return nil, fmt.Errorf("create collection %q: returned row has no id", name)
	}
	return &c, nil
}

// UpdateCollection sets name, description and updated_at on collection id.
func (a *Adapter) UpdateCollection(ctx context.Context, id, name, description, updatedAt string) error {
	_, err := a.api.Update(ctx, TableCollections, collectionUpdateRow(name, description, updatedAt), []Filter{Eq("id", id)})
	if err != nil {
		return fmt.Errorf("update collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollectionMemberships removes every membership row of collection id.
func (a *Adapter) DeleteCollectionMemberships(ctx context.Context, id string) error {
	if err := a.api.Delete(ctx, TableCollectionQuotes, Eq("collection_id", id)); err != nil {
		return fmt.Errorf("delete memberships of collection %q: %w", id, err)
	}
	return nil
}

// DeleteCollection removes the collection row id.
func (a *Adapter) DeleteCollection(ctx context.Context, id string) error {
	if err := a.api.Delete(ctx, TableCollections, Eq("id", id)); err != nil {
		return fmt.Errorf("delete collection %q: %w", id, err)
	}
	return nil
}

// InsertMembership adds quoteID to collectionID.
func (a *Adapter) InsertMembership(ctx context.Context, collectionID, quoteID string) error {
	if _, err := a.api.Insert(ctx, TableCollectionQuotes, membershipRow(collectionID, quoteID)); err != nil {
		return fmt.Errorf("add quote %q to collection %q: %w", quoteID, collectionID, err)
	}
	return nil
}

// DeleteMembership removes quoteID from collectionID.
func (a *Adapter) DeleteMembership(ctx context.Context, collectionID, quoteID string) error {
	err := a.api.Delete(ctx, TableCollectionQuotes, Eq("collection_id", collectionID), Eq("quote_id", quoteID))
	if err != nil {
		return fmt.Errorf("remove quote %q from collection %q: %w", quoteID, collectionID, err)
	}
	return nil
}

// FetchCollections returns the collections owned by userID.
func (a *Adapter) FetchCollections(ctx context.Context, userID string) ([]model.Collection, error) {
	rows, err := a.api.Select(ctx, TableCollections, Eq("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("fetch collections for %s: %w", userID, err)
	}
	cs := make([]model.Collection, 0, len(rows))
	for _, r := range rows {
		if c := collectionFromRow(r); c.ID != "" {
			cs = append(cs, c)
		}
	}
	return cs, nil
}

// FetchAllMemberships returns every row of the membership table, regardless
// of owner.
func (a *Adapter) FetchAllMemberships(ctx context.Context) ([]model.Membership, error) {
	rows, err := a.api.Select(ctx, TableCollectionQuotes)
	if err != nil {
		return nil, fmt.Errorf("fetch memberships: %w", err)
	}
	ms := make([]model.Membership, 0, len(rows))
	for _, r := range rows {
		m := membershipFromRow(r)
		if m.CollectionID == "" || m.QuoteID == "" {
			continue
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// --- profile & storage ----------------------------------------------------------

// Profile returns the user_profiles row for userID, or (nil, nil) if none.
func (a *Adapter) Profile(ctx context.Context, userID string) (*model.User, error) {
	rows, err := a.api.Select(ctx, TableUserProfiles, Eq("id", userID))
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	u := profileFromRow(rows[0])
	return &u, nil
}

// UploadAvatar stores a JPEG avatar for userID, replacing any previous one,
// and returns its public URL with a cache-busting query parameter.
func (a *Adapter) UploadAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	if userID == "" {
		return "", errors.New("upload avatar: user id is required")
	}
	if len(data) == 0 {
		return "", errors.New("upload avatar: image is empty")
	}
	path := userID + ".jpg"
	if err := a.api.Upload(ctx, BucketAvatars, path, data, "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	a.logger.Debug("avatar uploaded", "user_id", userID, "bytes", len(data))
	return a.api.PublicURL(BucketAvatars, path) + "?t=" + strconv.FormatInt(a.now().UnixMilli(), 10), nil
}
