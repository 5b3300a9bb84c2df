package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// bucket is the subset of jetstream.ObjectStore used here
type bucket interface {
	List(ctx context.Context, opts ...jetstream.ListObjectsOpt) ([]*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
}

// ObjectStore keeps artifacts in a JetStream object store bucket. Object
// names are slash-separated paths.
type ObjectStore struct {
	bucket bucket
}

// NewObjectStore opens bucketName, creating it if it does not exist
func NewObjectStore(ctx context.Context, js jetstream.JetStream, bucketName string) (*ObjectStore, error) {
	obs, err := js.ObjectStore(ctx, bucketName)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		obs, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucketName})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object store %s: %w", bucketName, err)
	}

	return &ObjectStore{bucket: obs}, nil
}

// List returns objects directly under dir in bucket order
func (s *ObjectStore) List(ctx context.Context, dir string) ([]Entry, error) {
	infos, err := s.bucket.List(ctx)
	if errors.Is(err, jetstream.ErrNoObjectsFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	prefix := Clean(dir)
	if prefix != "" {
		prefix += "/"
	}

	var entries []Entry
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		name := Clean(info.Name)
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Size:    int64(info.Size),
			ModTime: info.ModTime,
		})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}

	return entries, nil
}

// Read returns the contents of an object
func (s *ObjectStore) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.bucket.GetBytes(ctx, Clean(name))
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Write creates or replaces an object
func (s *ObjectStore) Write(ctx context.Context, name string, data []byte) error {
	if _, err := s.bucket.PutBytes(ctx, Clean(name), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

var _ Store = (*ObjectStore)(nil)
