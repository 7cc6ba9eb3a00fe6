// Package localfs stores objects as files under a root directory. Each
// bucket is a subdirectory of the root.
package localfs

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Ping checks that the root exists and is a directory.
func (l *LocalFS) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fi, err := os.Stat(l.root)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "localfs.ping", "storage root unavailable").
			WithField("root", l.root)
	}
	if !fi.IsDir() {
		return errors.New(errors.CodeUnavailable, "storage root is not a directory").WithField("root", l.root)
	}
	return nil
}

// objectPath resolves bucket/key under the root and rejects anything that
// would escape it.
func (l *LocalFS) objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", errors.New(errors.CodeValidation, "bucket and key are required")
	}
	root, err := filepath.Abs(l.root)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeStorage, "localfs.path", "resolve root")
	}
	p := filepath.Join(root, filepath.FromSlash(bucket), filepath.FromSlash(key))
	if p == root || !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", errors.New(errors.CodeValidation, "object path escapes storage root").
			WithField("bucket", bucket).
			WithField("key", key)
	}
	return p, nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.objectPath(in.Bucket, in.Key)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.put", "create directory")
	}

	// Write to a temp file and rename so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.put", "create file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, readerWithContext(ctx, in.Reader))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.put", "write object")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.put", "commit object")
	}

	return ports.PutObjectOutput{Key: in.Key, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, bucket, key string) (rc io.ReadCloser, contentType string, size int64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, "", 0, err
	}
	p, err := l.objectPath(bucket, key)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", 0, errors.NotFound("object", bucket+"/"+key)
		}
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeStorage, "localfs.get", "open object")
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
