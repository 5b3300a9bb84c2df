// Package artifact reads and writes named blobs in the artifact store that
// holds model weights and prediction audit reports.
package artifact

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a location or object does not exist
var ErrNotFound = errors.New("artifact not found")

// Entry describes one object directly under a listed location
type Entry struct {
	Name    string    `json:"name"` // full slash-separated path
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Base returns the last path element of the entry name
func (e Entry) Base() string {
	return path.Base(e.Name)
}

// Store is the read/write contract of the artifact store. List returns the
// entries directly under dir in the store's listing order.
type Store interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// Clean normalizes a slash-separated artifact path to a relative form
// without leading slash, dot segments or parent references.
func Clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
