package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/remote"
)

// Checker verifies a backend connection.
// Implemented by [remote.Client].
type Checker interface {
	Ping(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
}

// ConnectFunc builds a Checker for the given credentials.
type ConnectFunc func(remoteURL, apiKey, accessToken string) (Checker, error)

// Connect returns a ConnectFunc backed by the real HTTP client.
func Connect(logger *slog.Logger, timeout time.Duration) ConnectFunc {
	return func(remoteURL, apiKey, accessToken string) (Checker, error) {
		c, err := remote.NewClient(remote.Options{
			BaseURL:     remoteURL,
			APIKey:      apiKey,
			AccessToken: accessToken,
			Timeout:     timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating client: %w", err)
		}
		return c, nil
	}
}
