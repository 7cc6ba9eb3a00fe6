package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	Bucket      string
	Key         string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// For localfs and minio this is Key. For gdrive it is the Drive fileId.
	Key  string
	Size int64
}

// StorageProvider is implemented by localfs, minio and gdrive.
// Objects are addressed by bucket and key; how a bucket maps to the
// backend (directory, S3 bucket, name prefix) is up to the adapter.
type StorageProvider interface {
	Provider() string

	GetObject(ctx context.Context, bucket, key string) (rc io.ReadCloser, contentType string, size int64, err error)
	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
}
