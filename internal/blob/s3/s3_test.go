package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	modified  map[string]time.Time
	multipart int
	clock     time.Time
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		clock:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memBlobs) put(path string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	m.objects[path] = b
	m.modified[path] = m.clock
	return nil
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	return m.put(path, data)
}

func (m *memBlobs) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.put(path, data)
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.BlobInfo{}
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b)), LastModified: m.modified[p]})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func TestExportPath(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "exports/world-cup/2025-03-09/world-cup-sales.csv", ExportPath("world-cup", at, "world-cup-sales.csv"))
}

func TestExportArchiveStoreListOpen(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	archive := NewExportArchive(blobs, blobs, blobs)

	day := time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC)
	p1, err := archive.Store(ctx, "all", day, "all-sales.csv", []byte("#,Platform\n"))
	require.NoError(t, err)
	p2, err := archive.Store(ctx, "liverpool", day, "liverpool-sales.csv", []byte("#,Platform\n1,LFT\n"))
	require.NoError(t, err)

	all, err := archive.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p2, all[0].Path, "newest first")
	assert.Equal(t, csvContentType, all[0].ContentType)

	only, err := archive.List(ctx, "all")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, p1, only[0].Path)

	rc, err := archive.Open(ctx, p2)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "#,Platform\n1,LFT\n", string(body))

	_, err = archive.Open(ctx, "secrets/.env")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = archive.Open(ctx, "exports/../secrets")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExportArchiveLargeUsesMultipart(t *testing.T) {
	blobs := newMemBlobs()
	archive := NewExportArchive(blobs, blobs, blobs)

	_, err := archive.Store(context.Background(), "all", time.Now(), "big.csv", make([]byte, multipartThreshold))
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.multipart)
}

func TestExportArchivePrune(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	archive := NewExportArchive(blobs, blobs, blobs)

	for _, d := range []string{"2025-01-01", "2025-02-28", "2025-03-01", "2025-03-02"} {
		at, _ := time.Parse(dayLayout, d)
		_, err := archive.Store(ctx, "all", at, "all-sales.csv", []byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, blobs.Put(ctx, "exports/all/not-a-date/x.csv", strings.NewReader("x"), ""))

	removed, err := archive.Prune(ctx, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := archive.List(ctx, "all")
	require.NoError(t, err)
	var paths []string
	for _, info := range left {
		paths = append(paths, info.Path)
	}
	assert.ElementsMatch(t, []string{
		"exports/all/2025-03-01/all-sales.csv",
		"exports/all/2025-03-02/all-sales.csv",
		"exports/all/not-a-date/x.csv",
	}, paths)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
	assert.Contains(t, err.Error(), "region is required")
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return "status" }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(nil))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.True(t, isNotFound(statusErr{code: 404}))
	assert.False(t, isNotFound(statusErr{code: 403}))
}
