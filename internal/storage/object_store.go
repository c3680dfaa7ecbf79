package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

// ObjectStore is a single bucket of publicly readable objects.
type ObjectStore interface {
	// CreateBucket makes sure the bucket exists and is publicly readable.
	CreateBucket(ctx context.Context) error

	PutObject(ctx context.Context, key string, data io.Reader, contentType string) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	ListObjects(ctx context.Context, prefix string) ([]Object, error)

	DeleteObjects(ctx context.Context, prefix string) error

	// PublicURL is the address clients can fetch the object from.
	PublicURL(key string) string
}
