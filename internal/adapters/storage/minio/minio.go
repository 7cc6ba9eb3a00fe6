// Package minio implements ports.StorageProvider against an S3-compatible
// object store.
package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type Client struct {
	mc *minio.Client
}

func New(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStorage, "minio.new", "minio connection")
	}
	return &Client{mc: mc}, nil
}

func (c *Client) Provider() string { return "minio" }

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, string, int64, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, storageErr(err, "minio.get", bucket, key)
	}

	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, "", 0, storageErr(err, "minio.get", bucket, key)
	}
	return obj, st.ContentType, st.Size, nil
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	size := in.Size
	if size <= 0 {
		size = -1
	}
	info, err := c.mc.PutObject(ctx, in.Bucket, in.Key, in.Reader, size, minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, storageErr(err, "minio.put", in.Bucket, in.Key)
	}
	return ports.PutObjectOutput{Key: info.Key, Size: info.Size}, nil
}

// Ping checks that the endpoint answers and credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.mc.ListBuckets(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeStorage, "minio.ping", "minio unreachable")
	}
	return nil
}

func storageErr(err error, op, bucket, key string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.NotFound("object", bucket+"/"+key)
	}
	return errors.WrapWithCode(err, errors.CodeStorage, op, "object store request failed").
		WithField("bucket", bucket).
		WithField("key", key)
}
