package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/njoerd114/quoteshelf/internal/model"
)

const quoteColumns = `id, text, author, category, created_at, is_favorite`

const upsertQuoteSQL = `
		INSERT INTO quotes (id, text, author, category, created_at, is_favorite, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    text         = excluded.text,
		    author       = excluded.author,
		    category     = excluded.category,
		    created_at   = excluded.created_at,
		    is_favorite  = excluded.is_favorite,
		    last_updated = excluded.last_updated`

// QuoteFilter narrows [Store.ListQuotes]. Zero fields do not filter.
type QuoteFilter struct {
	Category      model.Category
	FavoritesOnly bool
	// Search matches text OR author, case-insensitive substring.
	Search string
	// Author matches author only, case-insensitive substring.
	Author string
}

// UpsertQuote inserts or replaces a single quote keyed by ID.
func (s *Store) UpsertQuote(ctx context.Context, q model.Quote) error {
	if _, err := s.exec(ctx, upsertQuoteSQL, s.quoteArgs(q), TableQuotes); err != nil {
		return fmt.Errorf("upserting quote %q: %w", q.ID, err)
	}
	return nil
}

// UpsertQuotes inserts or replaces all quotes in one transaction. Either every
// row is written or none is.
func (s *Store) UpsertQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range quotes {
			if _, err := tx.ExecContext(ctx, upsertQuoteSQL, s.quoteArgs(q)...); err != nil {
				return fmt.Errorf("upserting quote %q: %w", q.ID, err)
			}
		}
		return nil
	}, TableQuotes)
}

func (s *Store) quoteArgs(q model.Quote) []any {
	return []any{
		q.ID,
		q.Text,
		q.Author,
		string(model.NormalizeCategory(string(q.Category))),
		q.CreatedAt,
		q.IsFavorite,
		formatTime(s.now()),
	}
}

// GetQuote returns the quote with the given ID, or (nil, nil) if it is not
// cached.
func (s *Store) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	return scanQuote(row)
}

// ListQuotes returns cached quotes matching f, newest created first.
func (s *Store) ListQuotes(ctx context.Context, f QuoteFilter) ([]model.Quote, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, string(f.Category))
	}
	if f.FavoritesOnly {
		where = append(where, `is_favorite = 1`)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, `(text LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if f.Author != "" {
		where = append(where, `author LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Author))
	}

	q := `SELECT ` + quoteColumns + ` FROM quotes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying quotes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	quotes := []model.Quote{}
	for rows.Next() {
		qt, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *qt)
	}
	return quotes, rows.Err()
}

// RandomQuote returns a uniformly random cached quote, or (nil, nil) when the
// cache is empty.
func (s *Store) RandomQuote(ctx context.Context) (*model.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes ORDER BY RANDOM() LIMIT 1`)
	return scanQuote(row)
}

// SetFavorite sets the local favorite flag of a quote. Unknown IDs are a
// no-op.
func (s *Store) SetFavorite(ctx context.Context, id string, favorite bool) error {
	const q = `UPDATE quotes SET is_favorite = ?, last_updated = ? WHERE id = ?`
	if _, err := s.exec(ctx, q, []any{favorite, formatTime(s.now()), id}, TableQuotes); err != nil {
		return fmt.Errorf("setting favorite on quote %q: %w", id, err)
	}
	return nil
}

// DeleteAllQuotes empties the quote cache.
func (s *Store) DeleteAllQuotes(ctx context.Context) error {
	if _, err := s.exec(ctx, `DELETE FROM quotes`, nil, TableQuotes); err != nil {
		return fmt.Errorf("deleting quotes: %w", err)
	}
	return nil
}

// CountQuotes returns the number of cached quotes.
func (s *Store) CountQuotes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting quotes: %w", err)
	}
	return n, nil
}

func scanQuote(s scanner) (*model.Quote, error) {
	var (
		q        model.Quote
		category string
	)
	err := s.Scan(&q.ID, &q.Text, &q.Author, &category, &q.CreatedAt, &q.IsFavorite)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning quote row: %w", err)
	}
	q.Category = model.NormalizeCategory(category)
	return &q, nil
}

// likePattern wraps term for a substring LIKE match, escaping LIKE wildcards
// so they match literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
