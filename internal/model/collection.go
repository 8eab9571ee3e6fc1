package model

import "time"

// Collection is a user-owned named set of quotes. QuoteIDs is always derived
// from the membership join and is never persisted on the collection row.
type Collection struct {
	ID          string
	Name        string
	Description string
	UserID      string
	QuoteIDs    []string
	CreatedAt   string
	UpdatedAt   string
}

// Membership links a quote to a collection. (CollectionID, QuoteID) is the
// key; re-adding an existing pair replaces it.
type Membership struct {
	CollectionID string
	QuoteID      string
	AddedAt      time.Time
}

// User is the signed-in identity, optionally enriched from the user_profiles
// table.
type User struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
	CreatedAt   string
}

// TimestampLayout is the ISO-8601 form used for timestamps the client
// generates itself, always in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in [TimestampLayout].
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
