package core

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// raceQueries simulates a supplier created by a concurrent request between
// the lookup and the insert. Unset methods panic.
type raceQueries struct {
	store.Queries
	finds   int
	creates int
	created fiscal.PersonType

	upsert     store.UpsertResult
	keyLookups int
}

func (q *raceQueries) FindSupplier(ctx context.Context, companyID int64, taxID string) (int64, error) {
	q.finds++
	if q.finds == 1 {
		return 0, store.ErrNotFound
	}
	return 42, nil
}

func (q *raceQueries) CreateSupplier(ctx context.Context, s store.NewSupplier) (int64, error) {
	q.creates++
	q.created = s.PersonType
	return 0, store.ErrUniqueViolation
}

func (q *raceQueries) UpsertDocument(ctx context.Context, d store.DocumentUpsert) (store.UpsertResult, error) {
	return q.upsert, nil
}

func (q *raceQueries) DocumentIDByAccessKey(ctx context.Context, accessKey string) (int64, error) {
	q.keyLookups++
	return 0, store.ErrNotFound
}

// fakeStore runs every transaction against q.
type fakeStore struct {
	q store.Queries
}

func (s *fakeStore) Queries() store.Queries { return s.q }
func (s *fakeStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return fn(s.q)
}
func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Ping(context.Context) error    { return nil }
func (s *fakeStore) Dialect() string               { return "fake" }
func (s *fakeStore) Close()                        {}

func TestResolveSupplier_RetriesLookupAfterConflict(t *testing.T) {
	q := &raceQueries{}
	doc := &fiscal.ExtractedDocument{SupplierTaxID: "123", SupplierName: "X"}

	id, err := resolveSupplier(context.Background(), q, 1, doc)
	if err != nil {
		t.Fatalf("resolveSupplier() error = %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if q.finds != 2 || q.creates != 1 {
		t.Errorf("finds/creates = %d/%d, want 2/1", q.finds, q.creates)
	}
	if q.created != fiscal.PersonLegal {
		t.Errorf("person type = %q, want PJ default", q.created)
	}
}

func TestResolveSupplier_PropagatesOtherErrors(t *testing.T) {
	boom := errors.New("disk I/O error")
	q := &errQueries{err: boom}

	_, err := resolveSupplier(context.Background(), q, 1, &fiscal.ExtractedDocument{SupplierTaxID: "1"})
	if !errors.Is(err, boom) {
		t.Errorf("resolveSupplier() error = %v, want %v", err, boom)
	}
}

type errQueries struct {
	store.Queries
	err error
}

func (q *errQueries) FindSupplier(context.Context, int64, string) (int64, error) {
	return 0, q.err
}

func TestIngest_UnresolvableIDFails(t *testing.T) {
	q := &raceQueries{}
	trailFixture := newFixture(t, nil)
	svc := NewService(&fakeStore{q: q}, trailFixture.svc.trail, testConfig())

	_, err := svc.Ingest(context.Background(), IngestRequest{FileName: "nota.xml", Data: nfeXML(testAccessKey, "1.00")})

	var resolution *fiscal.DocumentIDResolutionError
	if !errors.As(err, &resolution) {
		t.Fatalf("Ingest() error = %v, want DocumentIDResolutionError", err)
	}
	if resolution.AccessKey != testAccessKey || q.keyLookups != 1 {
		t.Errorf("resolution = %+v, lookups = %d", resolution, q.keyLookups)
	}
}
