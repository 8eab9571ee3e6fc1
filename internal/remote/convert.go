package remote

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/njoerd114/quoteshelf/internal/model"
)

// Remote table and bucket names.
const (
	TableQuotes           = "quotes"
	TableFavorites        = "favorites"
	TableCollections      = "collections"
	TableCollectionQuotes = "collection_quotes"
	TableUserProfiles     = "user_profiles"

	BucketAvatars = "avatars"
)

// timestampLayouts are the forms the backend uses for timestamptz columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// quoteFromRow converts a quotes row. IsFavorite is left false; favorites are
// projected separately during refresh.
func quoteFromRow(r Row) model.Quote {
	return model.Quote{
		ID:        str(r, "id"),
		Text:      str(r, "text"),
		Author:    str(r, "author"),
		Category:  model.NormalizeCategory(str(r, "category")),
		CreatedAt: str(r, "created_at"),
	}
}

func favoriteFromRow(r Row) model.Favorite {
	return model.Favorite{
		ID:        str(r, "id"),
		UserID:    str(r, "user_id"),
		QuoteID:   str(r, "quote_id"),
		CreatedAt: str(r, "created_at"),
	}
}

// collectionFromRow converts a collections row. QuoteIDs is left empty.
func collectionFromRow(r Row) model.Collection {
	return model.Collection{
		ID:          str(r, "id"),
		Name:        str(r, "name"),
		Description: str(r, "description"),
		UserID:      str(r, "user_id"),
		QuoteIDs:    []string{},
		CreatedAt:   str(r, "created_at"),
		UpdatedAt:   str(r, "updated_at"),
	}
}

// membershipFromRow converts a collection_quotes row. The remote table calls
// the insertion time created_at; an unparseable value yields the zero time.
func membershipFromRow(r Row) model.Membership {
	added := str(r, "created_at")
	if added == "" {
		added = str(r, "added_at")
	}
	t, _ := parseTimestamp(added)
	return model.Membership{
		CollectionID: str(r, "collection_id"),
		QuoteID:      str(r, "quote_id"),
		AddedAt:      t,
	}
}

func profileFromRow(r Row) model.User {
	return model.User{
		ID:          str(r, "id"),
		Email:       str(r, "email"),
		DisplayName: str(r, "display_name"),
		AvatarURL:   str(r, "avatar_url"),
		CreatedAt:   str(r, "created_at"),
	}
}

// authUserToModel converts the auth endpoint's user object. Display name and
// avatar live in user_metadata.
func authUserToModel(r Row) model.User {
	u := model.User{
		ID:        str(r, "id"),
		Email:     str(r, "email"),
		CreatedAt: str(r, "created_at"),
	}
	if meta, ok := r["user_metadata"].(map[string]any); ok {
		u.DisplayName = str(meta, "display_name")
		u.AvatarURL = str(meta, "avatar_url")
	}
	return u
}

func favoriteRow(userID, quoteID string) Row {
	return Row{"user_id": userID, "quote_id": quoteID}
}

func collectionInsertRow(userID, name, description string) Row {
	return Row{"name": name, "description": description, "user_id": userID}
}

func collectionUpdateRow(name, description, updatedAt string) Row {
	return Row{"name": name, "description": description, "updated_at": updatedAt}
}

func membershipRow(collectionID, quoteID string) Row {
	return Row{"collection_id": collectionID, "quote_id": quoteID}
}

// str reads key from r as a string. Numbers are formatted; missing, null and
// non-scalar values yield "".
func str(r map[string]any, key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
