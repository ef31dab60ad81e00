package archive

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
)

// FirestoreStore writes records to <collection>/<id>.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore wraps an existing client.
func NewFirestoreStore(client *firestore.Client, collection string) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("archive: firestore client is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("archive: firestore collection is required")
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

// Save creates or overwrites the record document.
func (s *FirestoreStore) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("archive: record id is required")
	}
	_, err := s.client.Collection(s.collection).Doc(rec.ID).Set(ctx, rec)
	return err
}
