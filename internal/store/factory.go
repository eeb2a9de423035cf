package store

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from the database URL scheme. An empty URL
// selects the in-memory store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(url)
	switch {
	case url == "" || lower == "memory://":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(ctx, url[len("sqlite://"):])
	case strings.HasPrefix(lower, "bolt://"):
		return NewBoltStore(url[len("bolt://"):])
	case strings.HasPrefix(lower, "bbolt://"):
		return NewBoltStore(url[len("bbolt://"):])
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL %q (expected postgres://, sqlite://, bolt:// or empty)", databaseURL)
	}
}

// Mode names the backend behind s.
func Mode(s Store) string {
	switch s.(type) {
	case *InMemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *SQLiteStore:
		return "sqlite"
	case *BoltStore:
		return "bolt"
	default:
		return "custom"
	}
}
