// Package archive keeps a durable copy of quote requests: a Firestore record, the uploaded photos
// in Cloud Storage and a Pub/Sub event for downstream consumers.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EventSubmitted is the event type attribute on published messages.
const EventSubmitted = "quote.submitted"

// Record is the stored form of a quote request.
type Record struct {
	ID           string            `firestore:"id" json:"id"`
	ReceivedAt   time.Time         `firestore:"receivedAt" json:"receivedAt"`
	Service      string            `firestore:"service" json:"service"`
	Name         string            `firestore:"name" json:"name"`
	Email        string            `firestore:"email" json:"email"`
	Phone        string            `firestore:"phone" json:"phone"`
	Address      string            `firestore:"address" json:"address"`
	Suburb       string            `firestore:"suburb" json:"suburb"`
	OccupantType string            `firestore:"occupantType" json:"occupantType"`
	Preference   string            `firestore:"preference" json:"preference"`
	Questions    string            `firestore:"questions" json:"questions,omitempty"`
	Details      map[string]string `firestore:"details" json:"details,omitempty"`
	Files        []FileRef         `firestore:"files" json:"files,omitempty"`
	Delivered    bool              `firestore:"delivered" json:"delivered"`
}

// FileRef points at an archived attachment.
type FileRef struct {
	Name        string `firestore:"name" json:"name"`
	Object      string `firestore:"object" json:"object"`
	ContentType string `firestore:"contentType" json:"contentType"`
	Size        int64  `firestore:"size" json:"size"`
}

// File is an attachment waiting to be archived.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// RecordStore persists records by ID.
type RecordStore interface {
	Save(ctx context.Context, rec Record) error
}

// BlobStore writes attachment bytes and returns the object name.
type BlobStore interface {
	Put(ctx context.Context, object, contentType string, data []byte) error
}

// Publisher emits the submitted event and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, rec Record) (string, error)
}

// Archiver fans a submission out to whichever sinks are configured. Any sink may be nil.
type Archiver struct {
	records RecordStore
	blobs   BlobStore
	events  Publisher
	logger  *zap.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithRecordStore sets the record sink.
func WithRecordStore(s RecordStore) Option { return func(a *Archiver) { a.records = s } }

// WithBlobStore sets the attachment sink.
func WithBlobStore(s BlobStore) Option { return func(a *Archiver) { a.blobs = s } }

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option { return func(a *Archiver) { a.events = p } }

// WithLogger sets the logger used to report sink failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an Archiver.
func New(opts ...Option) *Archiver {
	a := &Archiver{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Enabled reports whether at least one sink is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && (a.records != nil || a.blobs != nil || a.events != nil)
}

// Archive uploads files, saves rec and publishes the event. Each failure is logged and joined
// into the returned error; later sinks still run.
func (a *Archiver) Archive(ctx context.Context, rec Record, files []File) error {
	if !a.Enabled() {
		return nil
	}
	logger := a.logger.With(zap.String("submissionID", rec.ID))
	var errs []error

	if a.blobs != nil {
		for i, f := range files {
			object := ObjectName(rec.ID, i, f.Name)
			if err := a.blobs.Put(ctx, object, f.ContentType, f.Data); err != nil {
				logger.Warn("archive attachment failed", zap.String("object", object), zap.Error(err))
				errs = append(errs, fmt.Errorf("archive: put %s: %w", object, err))
				continue
			}
			rec.Files = append(rec.Files, FileRef{
				Name:        f.Name,
				Object:      object,
				ContentType: f.ContentType,
				Size:        int64(len(f.Data)),
			})
		}
	}

	if a.records != nil {
		if err := a.records.Save(ctx, rec); err != nil {
			logger.Warn("archive record failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("archive: save record: %w", err))
		}
	}

	if a.events != nil {
		id, err := a.events.Publish(ctx, rec)
		if err != nil {
			logger.Warn("publish submission event failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("archive: publish: %w", err))
		} else {
			logger.Debug("submission event published", zap.String("messageID", id))
		}
	}
	return errors.Join(errs...)
}

// ObjectName builds quotes/<id>/<index>-<name> with the file name reduced to a safe base name.
func ObjectName(id string, index int, name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return fmt.Sprintf("quotes/%s/%02d-%s", id, index, base)
}
