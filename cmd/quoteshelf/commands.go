package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/settings"
	syncp "github.com/njoerd114/quoteshelf/internal/sync"
)

// builder registers command-specific flags on fs and returns the command
// body, which reads them after parsing.
type builder func(fs *flag.FlagSet) command

var commands = map[string]builder{
	"refresh":     buildRefresh,
	"sync":        buildSync,
	"quotes":      buildQuotes,
	"quote":       buildQuote,
	"daily":       buildDaily,
	"random":      buildRandom,
	"favorite":    buildFavorite,
	"collections": buildCollections,
	"settings":    buildSettings,
	"avatar":      buildAvatar,
}

func lookup(name string) (builder, bool) {
	b, ok := commands[name]
	return b, ok
}

// --- refresh / sync ----------------------------------------------------------

func buildRefresh(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, _ []string) error {
		n, err := a.quotes.RefreshQuotes(ctx)
		if err != nil {
			return fmt.Errorf("refreshing quotes: %w", err)
		}
		fmt.Fprintf(a.out, "✓ %d quotes cached\n", n)
		return nil
	}
}

func buildSync(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, _ []string) error {
		engine := syncp.NewEngine(a.quotes, a.collections, a.cfg.RefreshInterval, a.logger)
		stats, err := engine.RunOnce(ctx)
		fmt.Fprintf(a.out, "Quotes:       %d\n", stats.Quotes)
		if stats.SignedOut {
			fmt.Fprintln(a.out, "Collections:  skipped (not signed in)")
		} else {
			fmt.Fprintf(a.out, "Collections:  %d (%d memberships)\n", stats.Collections, stats.Memberships)
		}
		if err != nil {
			return fmt.Errorf("sync finished with %d error(s): %w", stats.Errors, err)
		}
		return nil
	}
}

// --- quotes ------------------------------------------------------------------

func buildQuotes(fs *flag.FlagSet) command {
	category := fs.String("category", "", "only quotes in this category")
	favorites := fs.Bool("favorites", false, "only favorite quotes")
	search := fs.String("search", "", "match text or author")
	author := fs.String("author", "", "match author")
	watch := fs.Bool("watch", false, "reprint whenever the cache changes")

	return func(ctx context.Context, a *app, _ []string) error {
		sub, err := quoteQuery(ctx, a.quotes, *category, *favorites, *search, *author)
		if err != nil {
			return err
		}
		if !*watch {
			quotes, err := first(ctx, sub)
			if err != nil {
				return err
			}
			printQuotes(a.out, quotes)
			return nil
		}

		defer sub.Cancel()
		for quotes := range sub.C() {
			fmt.Fprintf(a.out, "\n── %d quotes ──\n", len(quotes))
			printQuotes(a.out, quotes)
		}
		return sub.Err()
	}
}

// quoteQuery picks the live query for the given filters. At most one filter
// may be set.
func quoteQuery(ctx context.Context, qc *syncp.QuoteCache, category string, favorites bool, search, author string) (*live.Subscription[[]model.Quote], error) {
	set := 0
	for _, on := range []bool{category != "", favorites, search != "", author != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("use at most one of --category, --favorites, --search, --author")
	}

	switch {
	case category != "":
		c, ok := model.ParseCategory(category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q (one of %s)", category, categoryList())
		}
		return qc.QuotesByCategory(ctx, c), nil
	case favorites:
		return qc.FavoriteQuotes(ctx), nil
	case search != "":
		return qc.SearchQuotes(ctx, search), nil
	case author != "":
		return qc.QuotesByAuthor(ctx, author), nil
	default:
		return qc.AllQuotes(ctx), nil
	}
}

func buildQuote(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: quoteshelf quote <id>")
		}
		q, err := a.quotes.QuoteByID(ctx, args[0])
		if err != nil {
			return err
		}
		if q == nil {
			return fmt.Errorf("quote %q is not cached", args[0])
		}
		printQuote(a.out, *q)
		return nil
	}
}

func buildDaily(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, _ []string) error {
		q, err := a.quotes.DailyQuote(ctx)
		if errors.Is(err, syncp.ErrNoQuotes) {
			return fmt.Errorf("%w: run 'quoteshelf refresh' first", err)
		}
		if err != nil {
			return err
		}
		printQuote(a.out, *q)
		return nil
	}
}

func buildRandom(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, _ []string) error {
		q, err := a.quotes.RandomQuote(ctx)
		if err != nil {
			return err
		}
		if q == nil {
			return fmt.Errorf("%w: run 'quoteshelf refresh' first", syncp.ErrNoQuotes)
		}
		printQuote(a.out, *q)
		return nil
	}
}

func buildFavorite(fs *flag.FlagSet) command {
	remove := fs.Bool("remove", false, "unmark instead of mark")

	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: quoteshelf favorite [--remove] <id>")
		}
		if err := a.quotes.ToggleFavorite(ctx, args[0], !*remove); err != nil {
			return err
		}
		if *remove {
			fmt.Fprintf(a.out, "✓ Removed %s from favorites\n", args[0])
		} else {
			fmt.Fprintf(a.out, "✓ Added %s to favorites\n", args[0])
		}
		return nil
	}
}

// --- collections -------------------------------------------------------------

const collectionsUsage = `usage: quoteshelf collections <subcommand>
  list
  show <collection-id>
  create [--description D] <name>
  update [--description D] <collection-id> <name>
  delete <collection-id>
  add <collection-id> <quote-id>
  remove <collection-id> <quote-id>`

func buildCollections(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			return errors.New(collectionsUsage)
		}
		sub, rest := args[0], args[1:]

		switch sub {
		case "list":
			return collectionsList(ctx, a)
		case "show":
			if len(rest) != 1 {
				return errors.New(collectionsUsage)
			}
			return collectionsShow(ctx, a, rest[0])
		case "create", "update":
			fs := flag.NewFlagSet("collections "+sub, flag.ExitOnError)
			description := fs.String("description", "", "collection description")
			if err := fs.Parse(rest); err != nil {
				return err
			}
			return collectionsWrite(ctx, a, sub, fs.Args(), *description)
		case "delete":
			if len(rest) != 1 {
				return errors.New(collectionsUsage)
			}
			if err := a.collections.DeleteCollection(ctx, rest[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Deleted collection %s\n", rest[0])
			return nil
		case "add", "remove":
			if len(rest) != 2 {
				return errors.New(collectionsUsage)
			}
			return collectionsMembership(ctx, a, sub, rest[0], rest[1])
		default:
			return fmt.Errorf("unknown collections subcommand %q\n%s", sub, collectionsUsage)
		}
	}
}

func collectionsList(ctx context.Context, a *app) error {
	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}
	if user == nil {
		return syncp.ErrSignInForCollections
	}
	cs, err := first(ctx, a.collections.UserCollections(ctx, user.ID))
	if err != nil {
		return err
	}
	printCollections(a.out, cs)
	return nil
}

func collectionsShow(ctx context.Context, a *app, id string) error {
	c, err := a.collections.CollectionByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("collection %q is not cached", id)
	}
	quotes, err := first(ctx, a.collections.QuotesInCollection(ctx, id))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  (%s)\n", c.Name, c.ID)
	if c.Description != "" {
		fmt.Fprintf(a.out, "%s\n", c.Description)
	}
	fmt.Fprintf(a.out, "Updated %s\n\n", c.UpdatedAt)
	printQuotes(a.out, quotes)
	return nil
}

func collectionsWrite(ctx context.Context, a *app, sub string, args []string, description string) error {
	if sub == "create" {
		if len(args) != 1 {
			return errors.New(collectionsUsage)
		}
		c, err := a.collections.CreateCollection(ctx, args[0], description)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Created collection %q (%s)\n", c.Name, c.ID)
		return nil
	}

	if len(args) != 2 {
		return errors.New(collectionsUsage)
	}
	if err := a.collections.UpdateCollection(ctx, args[0], args[1], description); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Updated collection %s\n", args[0])
	return nil
}

func collectionsMembership(ctx context.Context, a *app, sub, collectionID, quoteID string) error {
	if sub == "add" {
		if err := a.collections.AddQuoteToCollection(ctx, collectionID, quoteID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Added %s to %s\n", quoteID, collectionID)
		return nil
	}
	if err := a.collections.RemoveQuoteFromCollection(ctx, collectionID, quoteID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Removed %s from %s\n", quoteID, collectionID)
	return nil
}

// --- settings ----------------------------------------------------------------

func buildSettings(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 || args[0] == "show" {
			s, err := a.settings.Get(ctx)
			if err != nil {
				return err
			}
			printSettings(a.out, s)
			return nil
		}
		if args[0] != "set" || len(args) != 3 {
			return fmt.Errorf("usage: quoteshelf settings [show | set <key> <value>]\n  keys: %s",
				strings.Join(settings.Keys(), ", "))
		}
		if err := a.settings.Set(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ %s = %s\n", args[1], args[2])
		return nil
	}
}

// --- avatar ------------------------------------------------------------------

func buildAvatar(*flag.FlagSet) command {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: quoteshelf avatar <file.jpg>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading avatar: %w", err)
		}
		user, err := a.client.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("resolving identity: %w", err)
		}
		if user == nil {
			return syncp.ErrNotAuthenticated
		}
		url, err := a.adapter.UploadAvatar(ctx, user.ID, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "✓ Avatar uploaded: %s\n", url)
		return nil
	}
}

// --- helpers -----------------------------------------------------------------

// first returns the initial result of sub and cancels it.
func first[T any](ctx context.Context, sub *live.Subscription[T]) (T, error) {
	defer sub.Cancel()
	var zero T
	select {
	case v, ok := <-sub.C():
		if !ok {
			if err := sub.Err(); err != nil {
				return zero, err
			}
			return zero, ctx.Err()
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func categoryList() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = strings.ToLower(string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
