// Package store is the relational persistence layer for suppliers, fiscal
// documents and the user directory.
//
// Two dialects are supported behind the same [Store] interface: PostgreSQL
// through pgx and SQLite through modernc.org/sqlite. Storage-level unique
// constraints are the source of truth for concurrent ingestion races, and
// both drivers report them as [ErrUniqueViolation].
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrUniqueViolation is returned when an insert conflicts with a unique
	// constraint.
	ErrUniqueViolation = errors.New("store: unique violation")
)

// DefaultListLimit caps ListDocuments when no limit is given.
const DefaultListLimit = 100

// Store owns a connection pool.
type Store interface {
	// Queries returns queries bound to the pool.
	Queries() Queries
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
	// Migrate applies the embedded schema. It is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	// Dialect names the backing database ("postgres" or "sqlite").
	Dialect() string
	Close()
}

// Queries is the set of statements the service layer issues.
type Queries interface {
	FindSupplier(ctx context.Context, companyID int64, taxID string) (int64, error)
	// CreateSupplier inserts a supplier. Inside a transaction the insert is
	// isolated by a savepoint so a unique violation leaves the transaction
	// usable.
	CreateSupplier(ctx context.Context, s NewSupplier) (int64, error)
	UpsertDocument(ctx context.Context, d DocumentUpsert) (UpsertResult, error)
	DocumentIDByAccessKey(ctx context.Context, accessKey string) (int64, error)
	DocumentStatus(ctx context.Context, id int64) (fiscal.Status, error)
	// CompareAndSetStatus moves a document from one status to another and
	// reports whether the row still had the expected status.
	CompareAndSetStatus(ctx context.Context, id int64, from, to fiscal.Status) (bool, error)
	GetDocument(ctx context.Context, id int64) (*fiscal.Document, error)
	ListDocuments(ctx context.Context, f DocumentFilter) ([]fiscal.Document, error)
	// UserNames resolves display names for the given ids in one query.
	// Unknown ids are absent from the result.
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
}

// NewSupplier is the input of CreateSupplier.
type NewSupplier struct {
	CompanyID  int64
	TaxID      string
	Name       string
	PersonType fiscal.PersonType
}

// DocumentUpsert is the input of UpsertDocument.
type DocumentUpsert struct {
	CompanyID  int64
	SupplierID int64
	CreatedBy  int64
	Doc        *fiscal.ExtractedDocument
}

// UpsertResult reports the affected document. ID is zero when the
// database returned no row.
type UpsertResult struct {
	ID       int64
	Inserted bool
}

// User is a row of the usuarios table.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Active       bool
}

// DocumentFilter narrows ListDocuments. Zero values are ignored.
type DocumentFilter struct {
	// Search matches number, supplier name or document kind.
	Search     string
	Status     string
	Kind       string
	SupplierID int64
	// From and To bound the issue date (YYYY-MM-DD, inclusive).
	From  string
	To    string
	Limit int
}

func (f DocumentFilter) limit() int {
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// amountText renders a monetary value the way the DECIMAL(15,2) columns
// store it.
func amountText(d decimal.Decimal) string {
	return d.StringFixed(2)
}
