package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Reader serves archived exports back out of the bucket.
type Reader struct {
	c *Client
}

// NewReader returns a Reader over c's bucket.
func NewReader(c *Client) *Reader { return &Reader{c: c} }

var (
	_ domain.BlobReader  = (*Reader)(nil)
	_ domain.BlobDeleter = (*Reader)(nil)
)

// Get streams the object at path; the caller closes it. A missing key maps
// to domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key := r.c.object(path)
	out, err := r.c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: key})
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List walks every page of keys under prefix.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	bucket, pfx := r.c.object(prefix)
	pages := s3.NewListObjectsV2Paginator(r.c.api, &s3.ListObjectsV2Input{Bucket: bucket, Prefix: pfx})

	infos := []domain.BlobInfo{}
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Exists reports whether an export is stored at path.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key := r.c.object(path)
	_, err := r.c.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: bucket, Key: key})
	switch {
	case isNotFound(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
	return true, nil
}

// Delete removes the export at path. A key that is already gone is fine.
func (r *Reader) Delete(ctx context.Context, path string) error {
	bucket, key := r.c.object(path)
	_, err := r.c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: key})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3blob: delete %s: %w", path, err)
	}
	return nil
}

// isNotFound covers NoSuchKey from GetObject, the bare NotFound of
// HeadObject, and providers that only send a 404 status.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var status interface{ HTTPStatusCode() int }
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &status):
		return status.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
