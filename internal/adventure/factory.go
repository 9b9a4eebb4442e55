package adventure

import (
	"context"
	"strings"
)

// NewStore picks a backend from databaseURL: empty means in-memory, a
// "sqlite:" or "file:" prefix means SQLite, anything else is PostgreSQL.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch StoreMode(url) {
	case "in-memory":
		return NewInMemoryStore(), nil
	case "sqlite":
		if strings.HasPrefix(url, "sqlite:") {
			url = strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//")
		}
		return NewSQLiteStore(ctx, url)
	default:
		return NewPostgresStore(ctx, url)
	}
}

// StoreMode names the backend NewStore would choose for databaseURL.
func StoreMode(databaseURL string) string {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return "in-memory"
	case strings.HasPrefix(url, "sqlite:"), strings.HasPrefix(url, "file:"):
		return "sqlite"
	default:
		return "postgres"
	}
}
