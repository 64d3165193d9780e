package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader downloads objects. Get returns ErrNotFound for a missing key.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
