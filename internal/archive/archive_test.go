package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRecords struct {
	saved []Record
	err   error
}

func (f *fakeRecords) Save(_ context.Context, rec Record) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
	failOn  string
}

func (f *fakeBlobs) Put(_ context.Context, object, _ string, data []byte) error {
	if object == f.failOn {
		return errors.New("bucket unavailable")
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[object] = data
	return nil
}

type fakePublisher struct {
	published []Record
}

func (f *fakePublisher) Publish(_ context.Context, rec Record) (string, error) {
	f.published = append(f.published, rec)
	return "msg-1", nil
}

func TestArchiveWritesAllSinks(t *testing.T) {
	records := &fakeRecords{}
	blobs := &fakeBlobs{}
	events := &fakePublisher{}
	a := New(WithRecordStore(records), WithBlobStore(blobs), WithPublisher(events))
	require.True(t, a.Enabled())

	rec := Record{ID: "01J0", ReceivedAt: time.Date(2025, 3, 4, 5, 6, 0, 0, time.UTC), Service: "Mould Removal"}
	files := []File{
		{Name: "kitchen.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
		{Name: "bath room.png", ContentType: "image/png", Data: []byte("png!")},
	}

	require.NoError(t, a.Archive(context.Background(), rec, files))

	require.Len(t, blobs.objects, 2)
	require.Contains(t, blobs.objects, "quotes/01J0/00-kitchen.jpg")
	require.Contains(t, blobs.objects, "quotes/01J0/01-bath_room.png")

	require.Len(t, records.saved, 1)
	require.Len(t, records.saved[0].Files, 2)
	require.Equal(t, int64(4), records.saved[0].Files[1].Size)

	require.Len(t, events.published, 1)
	require.Equal(t, "01J0", events.published[0].ID)
}

func TestArchiveContinuesAfterSinkFailure(t *testing.T) {
	records := &fakeRecords{err: errors.New("firestore down")}
	blobs := &fakeBlobs{failOn: "quotes/x/00-a.jpg"}
	events := &fakePublisher{}
	a := New(WithRecordStore(records), WithBlobStore(blobs), WithPublisher(events))

	err := a.Archive(context.Background(), Record{ID: "x"}, []File{
		{Name: "a.jpg", Data: []byte("a")},
		{Name: "b.jpg", Data: []byte("b")},
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "firestore down")
	require.ErrorContains(t, err, "bucket unavailable")

	require.Len(t, events.published, 1)
	require.Len(t, events.published[0].Files, 1)
	require.Equal(t, "b.jpg", events.published[0].Files[0].Name)
}

func TestArchiveWithoutSinksIsNoop(t *testing.T) {
	a := New()
	require.False(t, a.Enabled())
	require.NoError(t, a.Archive(context.Background(), Record{ID: "x"}, nil))

	var nilArchiver *Archiver
	require.False(t, nilArchiver.Enabled())
}

func TestObjectNameStripsDirectories(t *testing.T) {
	require.Equal(t, "quotes/id/03-passwd", ObjectName("id", 3, "../../etc/passwd"))
	require.Equal(t, "quotes/id/00-photo.jpg", ObjectName("id", 0, `C:\Users\me\photo.jpg`))
	require.Equal(t, "quotes/id/01-attachment", ObjectName("id", 1, "  "))
}
