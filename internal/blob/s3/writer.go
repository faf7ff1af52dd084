package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// minPartSize is the S3 floor for multipart parts.
const minPartSize int64 = 5 << 20

// Writer uploads exports into the bucket.
type Writer struct {
	c *Client
}

// NewWriter returns a Writer over c's bucket.
func NewWriter(c *Client) *Writer { return &Writer{c: c} }

var _ domain.BlobWriter = (*Writer)(nil)

// Put stores data with one PutObject call.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	bucket, key := w.c.object(path)
	in := &s3.PutObjectInput{Bucket: bucket, Key: key, Body: data}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := w.c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams a large CSV through the upload manager in parts of at
// least minPartSize.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	uploader := manager.NewUploader(w.c.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	bucket, key := w.c.object(path)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      bucket,
		Key:         key,
		Body:        data,
		ContentType: aws.String(csvContentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
