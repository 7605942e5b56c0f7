// Package blobstore stores uploaded image bytes under opaque keys.
package blobstore

import (
	"context"
	"io"
)

// Object is a stored blob opened for reading. Callers close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	// ETag is a quoted entity tag, empty when the backend has none.
	ETag        string
}

// Store puts, opens and removes blobs. Get returns common.ErrorNotFound for
// unknown keys; Delete of an unknown key is not an error.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}
