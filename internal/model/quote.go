// Package model defines shared types used across the local store, the remote
// adapter, and the sync managers.
package model

import "strings"

// Category is the closed set of quote categories. Values are the canonical
// upper-case names stored in the local cache.
type Category string

const (
	CategoryMotivation Category = "MOTIVATION"
	CategoryLove       Category = "LOVE"
	CategorySuccess    Category = "SUCCESS"
	CategoryWisdom     Category = "WISDOM"
	CategoryHumor      Category = "HUMOR"
	CategoryLife       Category = "LIFE"
	CategoryHappiness  Category = "HAPPINESS"
	CategoryFriendship Category = "FRIENDSHIP"
	CategoryLeadership Category = "LEADERSHIP"
	CategoryCreativity Category = "CREATIVITY"
	CategoryCourage    Category = "COURAGE"
)

// DefaultCategory is used for any value outside the known set.
const DefaultCategory = CategoryMotivation

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryMotivation,
	CategoryLove,
	CategorySuccess,
	CategoryWisdom,
	CategoryHumor,
	CategoryLife,
	CategoryHappiness,
	CategoryFriendship,
	CategoryLeadership,
	CategoryCreativity,
	CategoryCourage,
}

// NormalizeCategory maps a raw category string (any case) to one of the
// known categories. Unknown or empty values map to [DefaultCategory].
func NormalizeCategory(raw string) Category {
	c, ok := ParseCategory(raw)
	if !ok {
		return DefaultCategory
	}
	return c
}

// ParseCategory is like [NormalizeCategory] but reports whether raw named a
// known category.
func ParseCategory(raw string) (Category, bool) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	for _, c := range Categories {
		if string(c) == upper {
			return c, true
		}
	}
	return DefaultCategory, false
}

// DisplayName returns the human-readable label, e.g. "Friendship".
func (c Category) DisplayName() string {
	s := string(NormalizeCategory(string(c)))
	return s[:1] + strings.ToLower(s[1:])
}

// Quote is a single cached quote. IsFavorite is a per-user projection of the
// remote favorites join and is only meaningful locally.
type Quote struct {
	ID         string
	Text       string
	Author     string
	Category   Category
	CreatedAt  string // ISO-8601, as assigned by the remote
	IsFavorite bool
}

// Favorite is a remote (user, quote) favorite row. It is never cached as its
// own entity.
type Favorite struct {
	ID        string
	UserID    string
	QuoteID   string
	CreatedAt string
}
