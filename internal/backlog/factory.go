package backlog

import (
	"context"
	"strings"
)

// NewStore picks a backend from dsn: empty for in-memory, postgres:// or
// postgresql:// for PostgreSQL, sqlite://PATH for an SQLite file.
func NewStore(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return NewPostgresStore(ctx, dsn)
	}
}

func prepare(item Item) Item {
	if item.ID == "" {
		item.ID = newID()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = now()
	}
	return item
}
