package sync

import "errors"

// Errors reported to callers. Match with errors.Is.
var (
	ErrSignInForFavorites   = errors.New("please sign in to save favorites")
	ErrSignInForCollections = errors.New("please sign in to create collections")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrNoQuotes             = errors.New("no quotes available")
	ErrEmptyName            = errors.New("collection name must not be empty")
)
