package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultCollection is the top-level Firestore collection for documents.
const DefaultCollection = "documentos"

// FirestoreBackend stores records under
// {collection}/{documentID}/historico/{recordID}.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreBackend creates a client for projectID. An empty
// credentialsFile falls back to application default credentials.
func NewFirestoreBackend(ctx context.Context, projectID, credentialsFile, collection string) (*FirestoreBackend, error) {
	if projectID == "" {
		return nil, errors.New("projectID must be provided to create a firestore client")
	}
	if collection == "" {
		collection = DefaultCollection
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreBackend{client: client, collection: collection}, nil
}

func (b *FirestoreBackend) Name() string { return "firestore" }

func (b *FirestoreBackend) history(documentID int64) *firestore.CollectionRef {
	return b.client.Collection(b.collection).
		Doc(strconv.FormatInt(documentID, 10)).
		Collection("historico")
}

// Append uses the record id as document id so a retried write is
// idempotent.
func (b *FirestoreBackend) Append(ctx context.Context, rec Record) error {
	if _, err := b.history(rec.DocumentID).Doc(rec.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("firestore: append record: %w", err)
	}
	return nil
}

func (b *FirestoreBackend) List(ctx context.Context, documentID int64) ([]Record, error) {
	iter := b.history(documentID).OrderBy("timestamp", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var records []Record
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: list records: %w", err)
		}
		var rec Record
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("firestore: decode record %s: %w", snap.Ref.ID, err)
		}
		if rec.ID == "" {
			rec.ID = snap.Ref.ID
		}
		records = append(records, rec)
	}
	return records, nil
}

func (b *FirestoreBackend) Close() error {
	return b.client.Close()
}
