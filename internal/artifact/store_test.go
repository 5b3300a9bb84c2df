package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "tmp/sparkML_weights", Clean("/tmp/sparkML_weights/"))
	assert.Equal(t, "etc/passwd", Clean("../../etc/passwd"))
	assert.Equal(t, "", Clean("/"))
}

func TestDirStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewDirStore(t.TempDir())

	require.NoError(t, s.Write(ctx, "tmp/predictions/1", []byte("a")))
	require.NoError(t, s.Write(ctx, "tmp/predictions/2", []byte("bb")))

	data, err := s.Read(ctx, "/tmp/predictions/2")
	require.NoError(t, err)
	assert.Equal(t, "bb", string(data))

	entries, err := s.List(ctx, "tmp/predictions")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tmp/predictions/1", entries[0].Name)
	assert.Equal(t, "1", entries[0].Base())
	assert.Equal(t, int64(2), entries[1].Size)
}

func TestDirStoreListSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "model", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "model", "part-00000"), []byte("1\n"), 0o644))

	entries, err := NewDirStore(root).List(context.Background(), "model")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "part-00000", entries[0].Base())
}

func TestDirStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewDirStore(t.TempDir())

	_, err := s.List(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Read(ctx, "missing/file")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeBucket struct {
	objects []*jetstream.ObjectInfo
	data    map[string][]byte
	listErr error
	putErr  error
}

func (f *fakeBucket) List(context.Context, ...jetstream.ListObjectsOpt) ([]*jetstream.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.objects) == 0 {
		return nil, jetstream.ErrNoObjectsFound
	}
	return f.objects, nil
}

func (f *fakeBucket) GetBytes(_ context.Context, name string, _ ...jetstream.GetObjectOpt) ([]byte, error) {
	data, ok := f.data[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeBucket) PutBytes(_ context.Context, name string, data []byte) (*jetstream.ObjectInfo, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[name] = data
	info := &jetstream.ObjectInfo{
		ObjectMeta: jetstream.ObjectMeta{Name: name},
		Size:       uint64(len(data)),
		ModTime:    time.Now(),
	}
	f.objects = append(f.objects, info)
	return info, nil
}

func TestObjectStoreListKeepsBucketOrder(t *testing.T) {
	b := &fakeBucket{}
	s := &ObjectStore{bucket: b}
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "model/part-00001", []byte("0.05\n")))
	require.NoError(t, s.Write(ctx, "model/part-00000", []byte("0.1\n0.2\n")))
	require.NoError(t, s.Write(ctx, "model/sub/part", []byte("9\n")))
	require.NoError(t, s.Write(ctx, "other/part", []byte("9\n")))

	entries, err := s.List(ctx, "/model/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "model/part-00001", entries[0].Name)
	assert.Equal(t, "model/part-00000", entries[1].Name)

	data, err := s.Read(ctx, "model/part-00000")
	require.NoError(t, err)
	assert.Equal(t, "0.1\n0.2\n", string(data))
}

func TestObjectStoreSkipsDeleted(t *testing.T) {
	b := &fakeBucket{objects: []*jetstream.ObjectInfo{
		{ObjectMeta: jetstream.ObjectMeta{Name: "model/a"}, Deleted: true},
	}}

	_, err := (&ObjectStore{bucket: b}).List(context.Background(), "model")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObjectStoreErrors(t *testing.T) {
	ctx := context.Background()

	_, err := (&ObjectStore{bucket: &fakeBucket{}}).List(ctx, "model")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = (&ObjectStore{bucket: &fakeBucket{}}).Read(ctx, "model/a")
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("boom")
	_, err = (&ObjectStore{bucket: &fakeBucket{listErr: boom}}).List(ctx, "model")
	assert.ErrorIs(t, err, boom)

	err = (&ObjectStore{bucket: &fakeBucket{putErr: boom}}).Write(ctx, "a", nil)
	assert.ErrorIs(t, err, boom)
}
