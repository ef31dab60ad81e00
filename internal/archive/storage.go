package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// BucketStore uploads attachments into a Cloud Storage bucket.
type BucketStore struct {
	bucket *storage.BucketHandle
}

// NewBucketStore wraps the named bucket.
func NewBucketStore(client *storage.Client, bucket string) (*BucketStore, error) {
	if client == nil {
		return nil, errors.New("archive: storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("archive: bucket name is required")
	}
	return &BucketStore{bucket: client.Bucket(bucket)}, nil
}

// Put writes data to object. The object is only committed when Close succeeds.
func (s *BucketStore) Put(ctx context.Context, object, contentType string, data []byte) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"source": "quote-form"}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", object, err)
	}
	return nil
}
