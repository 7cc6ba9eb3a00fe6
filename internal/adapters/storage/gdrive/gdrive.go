// Package gdrive implements ports.StorageProvider on Google Drive. Drive
// has no buckets, so an object is a file named "bucket/key" inside the
// configured folder.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

// FileName is the Drive file name used for bucket/key.
func FileName(bucket, key string) string {
	return bucket + "/" + key
}

// nameQuery builds the Files.List query for an exact file name.
func (c *Client) nameQuery(name string) string {
	esc := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	q := fmt.Sprintf("name = '%s' and trashed = false", esc)
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", c.folderID)
	}
	return q
}

// Ping lists at most one file in the folder to check credentials and access.
func (c *Client) Ping(ctx context.Context) error {
	q := "trashed = false"
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", c.folderID)
	}
	_, err := c.srv.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.ping", "drive list failed")
	}
	return nil
}

func (c *Client) findFile(ctx context.Context, name string) (*drive.File, error) {
	list, err := c.srv.Files.List().
		Q(c.nameQuery(name)).
		Fields("files(id, name, mimeType, size)").
		OrderBy("modifiedTime desc").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStorage, "gdrive.find", "drive list failed").WithField("name", name)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, string, int64, error) {
	name := FileName(bucket, key)
	f, err := c.findFile(ctx, name)
	if err != nil {
		return nil, "", 0, err
	}
	if f == nil {
		return nil, "", 0, errors.NotFound("object", name)
	}

	resp, err := c.srv.Files.Get(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeStorage, "gdrive.get", "drive download failed").WithField("name", name)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = f.MimeType
	}
	return resp.Body, contentType, resp.ContentLength, nil
}

// PutObject replaces the content of an existing file with the same name,
// or creates one.
func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.Bucket == "" || in.Key == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeValidation, "bucket and key are required")
	}
	name := FileName(in.Bucket, in.Key)

	existing, err := c.findFile(ctx, name)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	var media []googleapi.MediaOption
	if in.ContentType != "" {
		media = append(media, googleapi.ContentType(in.ContentType))
	}

	var out *drive.File
	if existing != nil {
		out, err = c.srv.Files.Update(existing.Id, &drive.File{}).
			Media(in.Reader, media...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{Name: name, MimeType: in.ContentType}
		if c.folderID != "" {
			file.Parents = []string{c.folderID}
		}
		out, err = c.srv.Files.Create(file).
			Media(in.Reader, media...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeStorage, "gdrive.put", "drive upload failed").WithField("name", name)
	}

	size := in.Size
	if out.Size > 0 {
		size = out.Size
	}
	return ports.PutObjectOutput{Key: in.Key, Size: size}, nil
}
