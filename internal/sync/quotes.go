package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

// Preference keys of the daily quote marker.
const (
	prefDailyQuoteDate = "daily_quote_date"
	prefDailyQuoteID   = "daily_quote_id"

	dayLayout = "2006-01-02"
)

// QuoteCache keeps a local replica of the remote quote catalog, annotated
// with the signed-in user's favorites. All reads are served locally.
type QuoteCache struct {
	remote QuoteRemote
	local  QuoteStore
	log    *slog.Logger
	now    func() time.Time
}

// NewQuoteCache creates a QuoteCache.
func NewQuoteCache(remote QuoteRemote, local QuoteStore, logger *slog.Logger) *QuoteCache {
	return &QuoteCache{remote: remote, local: local, log: logger, now: time.Now}
}

// RefreshQuotes pulls the full catalog, marks the user's favorites and
// upserts the result in one local transaction. It returns the number of
// quotes cached. If the catalog fetch fails nothing local is written.
func (c *QuoteCache) RefreshQuotes(ctx context.Context) (int, error) {
	quotes, err := c.remote.FetchQuotes(ctx)
	if err != nil {
		return 0, fmt.Errorf("refreshing quotes: %w", err)
	}

	favorites := c.favoriteSet(ctx)
	for i := range quotes {
		quotes[i].IsFavorite = favorites[quotes[i].ID]
	}

	if err := c.local.UpsertQuotes(ctx, quotes); err != nil {
		return 0, fmt.Errorf("caching quotes: %w", err)
	}
	c.log.Debug("quotes refreshed", "count", len(quotes), "favorites", len(favorites))
	return len(quotes), nil
}

// favoriteSet returns the signed-in user's favorite quote IDs. Any failure
// yields an empty set so refresh can continue.
func (c *QuoteCache) favoriteSet(ctx context.Context) map[string]bool {
	set := map[string]bool{}
	user, err := c.remote.CurrentUser(ctx)
	if err != nil {
		c.log.Warn("identity lookup failed, refreshing without favorites", "error", err)
		return set
	}
	if user == nil {
		return set
	}
	ids, err := c.remote.FetchFavoriteQuoteIDs(ctx, user.ID)
	if err != nil {
		c.log.Warn("fetching favorites failed, refreshing without them", "user_id", user.ID, "error", err)
		return set
	}
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// AllQuotes watches every cached quote, newest first.
func (c *QuoteCache) AllQuotes(ctx context.Context) *live.Subscription[[]model.Quote] {
	return c.watch(ctx, state.QuoteFilter{})
}

// QuotesByCategory watches cached quotes in category.
func (c *QuoteCache) QuotesByCategory(ctx context.Context, category model.Category) *live.Subscription[[]model.Quote] {
	return c.watch(ctx, state.QuoteFilter{Category: category})
}

// FavoriteQuotes watches cached quotes flagged as favorite.
func (c *QuoteCache) FavoriteQuotes(ctx context.Context) *live.Subscription[[]model.Quote] {
	return c.watch(ctx, state.QuoteFilter{FavoritesOnly: true})
}

// SearchQuotes watches cached quotes whose text or author contains query,
// ignoring case.
func (c *QuoteCache) SearchQuotes(ctx context.Context, query string) *live.Subscription[[]model.Quote] {
	return c.watch(ctx, state.QuoteFilter{Search: query})
}

// QuotesByAuthor watches cached quotes whose author contains query, ignoring
// case.
func (c *QuoteCache) QuotesByAuthor(ctx context.Context, query string) *live.Subscription[[]model.Quote] {
	return c.watch(ctx, state.QuoteFilter{Author: query})
}

func (c *QuoteCache) watch(ctx context.Context, f state.QuoteFilter) *live.Subscription[[]model.Quote] {
	return live.Watch(ctx, c.local, func(ctx context.Context) ([]model.Quote, error) {
		return c.local.ListQuotes(ctx, f)
	}, state.TableQuotes)
}

// QuoteByID returns a cached quote, or (nil, nil) if it is not cached.
func (c *QuoteCache) QuoteByID(ctx context.Context, id string) (*model.Quote, error) {
	return c.local.GetQuote(ctx, id)
}

// ToggleFavorite mirrors the favorite flag to the remote favorites table and
// then writes it locally whatever the remote outcome. A remote failure,
// including a failed identity lookup, is still returned so the caller can
// report it; the local flag stays changed. Only a signed-out answer leaves
// everything untouched.
func (c *QuoteCache) ToggleFavorite(ctx context.Context, id string, favorite bool) error {
	user, remoteErr := c.remote.CurrentUser(ctx)
	if remoteErr == nil && user == nil {
		return ErrSignInForFavorites
	}

	switch {
	case remoteErr != nil:
		// Identity unknown; skip the remote write.
	case favorite:
		remoteErr = c.remote.InsertFavorite(ctx, user.ID, id)
	default:
		remoteErr = c.remote.DeleteFavorite(ctx, user.ID, id)
	}

	localErr := c.local.SetFavorite(ctx, id, favorite)
	if remoteErr != nil {
		c.log.Warn("remote favorite write failed, kept local change", "quote_id", id, "favorite", favorite, "error", remoteErr)
	}
	switch {
	case remoteErr != nil && localErr != nil:
		return fmt.Errorf("toggling favorite on %q: %w", id, errors.Join(remoteErr, localErr))
	case localErr != nil:
		return fmt.Errorf("toggling favorite on %q: %w", id, localErr)
	case remoteErr != nil:
		return fmt.Errorf("toggling favorite on %q: %w", id, remoteErr)
	}
	return nil
}

// DailyQuote returns the quote pinned to today's date, picking and pinning a
// random cached quote when there is none or it is no longer cached. Days are
// compared as device-local YYYY-MM-DD strings.
func (c *QuoteCache) DailyQuote(ctx context.Context) (*model.Quote, error) {
	today := c.now().Format(dayLayout)

	marker, err := c.local.GetPreferences(ctx, prefDailyQuoteDate, prefDailyQuoteID)
	if err != nil {
		return nil, fmt.Errorf("reading daily quote marker: %w", err)
	}
	if marker[prefDailyQuoteDate] == today && marker[prefDailyQuoteID] != "" {
		q, err := c.local.GetQuote(ctx, marker[prefDailyQuoteID])
		if err != nil {
			return nil, fmt.Errorf("loading daily quote: %w", err)
		}
		if q != nil {
			return q, nil
		}
	}

	q, err := c.local.RandomQuote(ctx)
	if err != nil {
		return nil, fmt.Errorf("picking daily quote: %w", err)
	}
	if q == nil {
		return nil, ErrNoQuotes
	}
	if err := c.local.SetPreferences(ctx, map[string]string{
		prefDailyQuoteDate: today,
		prefDailyQuoteID:   q.ID,
	}); err != nil {
		return nil, fmt.Errorf("saving daily quote marker: %w", err)
	}
	c.log.Debug("daily quote selected", "date", today, "quote_id", q.ID)
	return q, nil
}

// RandomQuote returns a uniformly random cached quote, or (nil, nil) when the
// cache is empty.
func (c *QuoteCache) RandomQuote(ctx context.Context) (*model.Quote, error) {
	return c.local.RandomQuote(ctx)
}
