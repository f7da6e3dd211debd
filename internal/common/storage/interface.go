// Package storage abstracts the object store holding compressed submission
// archives.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject and StatObject for missing keys.
var ErrObjectNotFound = errors.New("object not found")

type ObjectStorage interface {
	// PutObject stores sizeBytes read from reader. A negative size streams
	// with multipart upload.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error
	// GetObject opens the object for reading. The caller closes it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
