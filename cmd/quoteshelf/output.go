package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

func printQuote(w io.Writer, q model.Quote) {
	star := ""
	if q.IsFavorite {
		star = " ★"
	}
	fmt.Fprintf(w, "“%s”\n", q.Text)
	fmt.Fprintf(w, "    - %s · %s%s  [%s]\n", q.Author, q.Category.DisplayName(), star, q.ID)
}

func printQuotes(w io.Writer, quotes []model.Quote) {
	if len(quotes) == 0 {
		fmt.Fprintln(w, "No quotes.")
		return
	}
	for i, q := range quotes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printQuote(w, q)
	}
}

func printCollections(w io.Writer, cs []model.Collection) {
	if len(cs) == 0 {
		fmt.Fprintln(w, "No collections.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQUOTES\tUPDATED")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, truncate(c.Name, 40), len(c.QuoteIDs), c.UpdatedAt)
	}
	tw.Flush()
}

func printSettings(w io.Writer, s model.Settings) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "theme_mode\t%s\n", s.ThemeMode)
	fmt.Fprintf(tw, "accent_color\t%s\n", s.AccentColor)
	fmt.Fprintf(tw, "font_size\t%s (×%.2f)\n", s.FontSize, s.FontSize.Scale())
	fmt.Fprintf(tw, "notification_enabled\t%t\n", s.NotificationEnabled)
	fmt.Fprintf(tw, "notification_time\t%s\n", s.NotificationTime)
	tw.Flush()
}

// printStatus reports config, backend, identity and cache state. Failures
// are printed inline; only a broken cache DB is returned as an error.
func printStatus(ctx context.Context, a *app, cfgPath string) error {
	w := a.out
	fmt.Fprintf(w, "  Config:    %s\n", cfgPath)
	fmt.Fprintf(w, "  Backend:   %s", a.cfg.RemoteURL)
	if err := a.client.Ping(ctx); err != nil {
		fmt.Fprintf(w, " (unreachable: %v)\n", err)
	} else {
		fmt.Fprintln(w, " (reachable)")
	}
	fmt.Fprintf(w, "  Refresh:   every %s\n", a.cfg.RefreshInterval)

	user, err := a.client.CurrentUser(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  Account:   unknown (%v)\n", err)
	case user == nil:
		fmt.Fprintln(w, "  Account:   signed out")
	default:
		fmt.Fprintf(w, "  Account:   %s\n", accountLine(ctx, a, user))
	}

	if dbPath := dbPathFor(a); dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			fmt.Fprintf(w, "  Cache DB:  %s (%s)\n", dbPath, humanSize(info.Size()))
		}
	}
	version, err := a.store.Version(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	total, err := a.store.CountQuotes(ctx)
	if err != nil {
		return fmt.Errorf("counting quotes: %w", err)
	}
	favorites, err := a.store.ListQuotes(ctx, state.QuoteFilter{FavoritesOnly: true})
	if err != nil {
		return fmt.Errorf("counting favorites: %w", err)
	}
	fmt.Fprintf(w, "  Schema:    v%d\n", version)
	fmt.Fprintf(w, "  Quotes:    %d cached, %d favorites\n", total, len(favorites))
	return nil
}

func accountLine(ctx context.Context, a *app, user *model.User) string {
	label := user.Email
	if label == "" {
		label = user.ID
	}
	profile, err := a.adapter.Profile(ctx, user.ID)
	if err != nil {
		a.logger.Debug("profile lookup failed", "error", err)
		return label
	}
	if profile != nil && profile.DisplayName != "" {
		label = fmt.Sprintf("%s <%s>", profile.DisplayName, label)
	}
	if profile != nil && profile.AvatarURL != "" {
		label += ", avatar set"
	}
	return label
}

func dbPathFor(a *app) string {
	if a.cfg.DBPath != "" {
		return a.cfg.DBPath
	}
	p, _ := state.DefaultDBPath()
	return p
}

// humanSize returns a human-readable byte size string.
func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
