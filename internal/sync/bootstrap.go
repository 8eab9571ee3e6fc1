package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

// Bootstrap warms an empty cache on first run: it refreshes the quote
// catalog, syncs collections when signed in, and prints a summary.
type Bootstrap struct {
	quotes      *QuoteCache
	collections *CollectionSync
	store       QuoteStore
	log         *slog.Logger
	writer      io.Writer // summary output (os.Stdout in production)
}

// NewBootstrap creates a Bootstrap. writer receives the summary.
func NewBootstrap(quotes *QuoteCache, collections *CollectionSync, store QuoteStore, logger *slog.Logger, writer io.Writer) *Bootstrap {
	return &Bootstrap{
		quotes:      quotes,
		collections: collections,
		store:       store,
		log:         logger,
		writer:      writer,
	}
}

// Run checks whether the cache is empty and, if so, fills it. Returns true if
// the warm-up ran, false if it was skipped.
func (b *Bootstrap) Run(ctx context.Context) (bool, error) {
	empty, err := b.store.IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("checking cache: %w", err)
	}
	if !empty {
		b.log.Debug("cache is not empty, skipping bootstrap")
		return false, nil
	}

	b.log.Info("empty cache detected, starting first-run bootstrap")

	n, err := b.quotes.RefreshQuotes(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}

	stats, err := b.collections.SyncCollections(ctx)
	signedOut := errors.Is(err, ErrNotAuthenticated)
	if err != nil && !signedOut {
		// Quotes are cached; collections catch up on the next pass.
		b.log.Warn("bootstrap collection sync failed", "error", err)
	}

	quotes, err := b.store.ListQuotes(ctx, state.QuoteFilter{})
	if err != nil {
		return true, fmt.Errorf("bootstrap summary: %w", err)
	}
	b.printSummary(n, quotes, stats, signedOut)
	return true, nil
}

func (b *Bootstrap) printSummary(cached int, quotes []model.Quote, stats SyncStats, signedOut bool) {
	perCategory := make(map[model.Category]int, len(model.Categories))
	favorites := 0
	for _, q := range quotes {
		perCategory[q.Category]++
		if q.IsFavorite {
			favorites++
		}
	}

	_, _ = fmt.Fprintf(b.writer, "\n--- First-Run Cache Warm-Up ---\n\n")
	_, _ = fmt.Fprintf(b.writer, "Quotes cached: %d\n", cached)
	for _, c := range model.Categories {
		if n := perCategory[c]; n > 0 {
			_, _ = fmt.Fprintf(b.writer, "  %-12s %d\n", c.DisplayName(), n)
		}
	}
	_, _ = fmt.Fprintf(b.writer, "Favorites: %d\n", favorites)
	if signedOut {
		_, _ = fmt.Fprintln(b.writer, "Collections: skipped (not signed in)")
	} else {
		_, _ = fmt.Fprintf(b.writer, "Collections: %d (%d memberships)\n", stats.Collections, stats.Memberships)
	}
	_, _ = fmt.Fprintln(b.writer)
}
