package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options configures Open.
type Options struct {
	// URL selects the dialect: postgres:// or postgresql:// for PostgreSQL,
	// sqlite://PATH or sqlite::memory: for SQLite.
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the database named by opts.URL.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(opts.URL, "postgres://"), strings.HasPrefix(opts.URL, "postgresql://"):
		return OpenPostgres(ctx, opts)
	case opts.URL == "sqlite::memory:":
		return OpenSQLite(ctx, ":memory:")
	case strings.HasPrefix(opts.URL, "sqlite://"):
		path := strings.TrimPrefix(opts.URL, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite URL %q has no path", opts.URL)
		}
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: %q", redactURL(opts.URL))
	}
}

// redactURL drops everything after the scheme so credentials never reach
// logs.
func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "..."
	}
	if len(u) > 8 {
		return u[:8] + "..."
	}
	return u
}
