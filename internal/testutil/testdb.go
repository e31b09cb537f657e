// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/JonMunkholm/fiscal/internal/store"
)

// OpenTestStore creates an in-memory SQLite store and applies the schema.
func OpenTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, s *store.SQLiteStore, name, email, passwordHash string) int64 {
	t.Helper()

	res, err := s.DB().Exec(
		`INSERT INTO usuarios (nome, email, senha_hash) VALUES (?, ?, ?)`,
		name, email, passwordHash,
	)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}
