package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

const (
	csvContentType = "text/csv; charset=utf-8"
	exportPrefix   = "exports/"
	dayLayout      = "2006-01-02"

	// multipartThreshold switches Store to the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
)

// ExportArchive keeps CSV exports under exports/<view>/<yyyy-mm-dd>/<file>.
type ExportArchive struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	deleter domain.BlobDeleter
}

// NewExportArchive creates an ExportArchive over the given blob primitives.
func NewExportArchive(writer domain.BlobWriter, reader domain.BlobReader, deleter domain.BlobDeleter) *ExportArchive {
	return &ExportArchive{writer: writer, reader: reader, deleter: deleter}
}

// ExportPath builds the object key for a view export taken on day at.
func ExportPath(view string, at time.Time, file string) string {
	return exportPrefix + view + "/" + at.Format(dayLayout) + "/" + file
}

// Store uploads one CSV export and returns its object key.
func (a *ExportArchive) Store(ctx context.Context, view string, at time.Time, file string, data []byte) (string, error) {
	path := ExportPath(view, at, file)

	var err error
	if len(data) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), csvContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: store export %s: %w", path, err)
	}
	return path, nil
}

// List returns archived exports, newest first. An empty view lists every
// view.
func (a *ExportArchive) List(ctx context.Context, view string) ([]domain.BlobInfo, error) {
	prefix := exportPrefix
	if view != "" {
		prefix += view + "/"
	}
	infos, err := a.reader.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: list exports: %w", err)
	}
	for i := range infos {
		if infos[i].ContentType == "" && strings.HasSuffix(infos[i].Path, ".csv") {
			infos[i].ContentType = csvContentType
		}
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].LastModified.Equal(infos[j].LastModified) {
			return infos[i].LastModified.After(infos[j].LastModified)
		}
		return infos[i].Path > infos[j].Path
	})
	return infos, nil
}

// Open returns the body of an archived export. Paths outside the export
// prefix are reported as domain.ErrNotFound.
func (a *ExportArchive) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, exportPrefix) || strings.Contains(path, "..") {
		return nil, fmt.Errorf("s3blob: open export %s: %w", path, domain.ErrNotFound)
	}
	return a.reader.Get(ctx, path)
}

// Prune deletes exports whose archive day is before cutoff and returns how
// many were removed. Keys without a parseable day are left alone.
func (a *ExportArchive) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	infos, err := a.reader.List(ctx, exportPrefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}

	cutoffDay := cutoff.Format(dayLayout)
	removed := 0
	for _, info := range infos {
		day, ok := exportDay(info.Path)
		if !ok || day >= cutoffDay {
			continue
		}
		if err := a.deleter.Delete(ctx, info.Path); err != nil {
			return removed, fmt.Errorf("s3blob: prune %s: %w", info.Path, err)
		}
		removed++
	}
	return removed, nil
}

// exportDay extracts the yyyy-mm-dd segment of an export key.
func exportDay(path string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(path, exportPrefix), "/")
	if len(parts) < 3 {
		return "", false
	}
	if _, err := time.Parse(dayLayout, parts[1]); err != nil {
		return "", false
	}
	return parts[1], true
}
