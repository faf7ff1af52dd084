package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/csvio"
	"github.com/alanyoungcy/resaledash/internal/domain"
)

type memArchive struct {
	files  map[string][]byte
	cutoff time.Time
	err    error
}

func (m *memArchive) Store(_ context.Context, view string, at time.Time, file string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	path := "exports/" + view + "/" + at.Format("2006-01-02") + "/" + file
	m.files[path] = data
	return path, nil
}

func (m *memArchive) List(_ context.Context, view string) ([]domain.BlobInfo, error) {
	out := []domain.BlobInfo{}
	for p, d := range m.files {
		if strings.HasPrefix(p, "exports/"+view) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(d))})
		}
	}
	return out, nil
}

func (m *memArchive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	d, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (m *memArchive) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.cutoff = cutoff
	return 1, nil
}

var wcView = domain.View{Name: "wc", Title: "World Cup"}

func newTestExports(t *testing.T, archive ExportArchive, fn func(int, domain.View) (domain.Snapshot, error)) (*ExportService, *fakeHealthStore) {
	t.Helper()
	snaps := NewSnapshotService(&fakeFetcher{fn: fn}, nil, nil, []domain.View{allView, wcView}, SnapshotConfig{FetchTimeout: time.Second}, discardLogger())
	snaps.now = fixedNow
	a := NewAnalyticsService(snaps, AnalyticsConfig{}, discardLogger())
	a.now = fixedNow
	hs := newFakeHealthStore()
	svc := NewExportService(a, archive, NewHealthService(hs, nil, nil, discardLogger()), discardLogger())
	svc.now = fixedNow
	t.Cleanup(snaps.Wait)
	return svc, hs
}

func TestExportRendersFilteredCSV(t *testing.T) {
	svc, _ := newTestExports(t, nil, nil)
	st := riskyState()
	st.View = wcView

	file, err := svc.Export(st, analytics.Filter{EventID: "e-eng"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "world-cup-sales.csv", file.Name)
	assert.Equal(t, 2, file.Rows)

	back, err := csvio.ParseExport(bytes.NewReader(file.Data), time.UTC)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "England vs France", back[0].Event)
	assert.True(t, back[0].Price.Equal(dec("100")))
}

func TestArchiveAllStoresEveryView(t *testing.T) {
	archive := &memArchive{}
	svc, hs := newTestExports(t, archive, func(int, domain.View) (domain.Snapshot, error) {
		return *riskyState().Snapshot, nil
	})

	results, err := svc.ArchiveAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exports/all/2025-06-15/all-sales-sales.csv", results[0].Path)
	assert.Equal(t, 4, results[0].Rows)
	assert.Len(t, archive.files, 2)

	assert.Equal(t, domain.HealthOK, hs.status[ServiceArchiver].Status)
	assert.Equal(t, "2 views archived", hs.status[ServiceArchiver].Detail)
}

func TestArchiveAllReportsFailures(t *testing.T) {
	archive := &memArchive{err: errors.New("bucket gone")}
	svc, hs := newTestExports(t, archive, func(int, domain.View) (domain.Snapshot, error) {
		return *riskyState().Snapshot, nil
	})

	results, err := svc.ArchiveAll(context.Background())
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Equal(t, domain.HealthError, hs.status[ServiceArchiver].Status)
}

func TestArchiveWithoutSnapshot(t *testing.T) {
	svc, _ := newTestExports(t, &memArchive{}, func(int, domain.View) (domain.Snapshot, error) {
		return domain.Snapshot{}, errors.New("db down")
	})
	_, err := svc.Archive(context.Background(), "all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot")
}

func TestExportArchiveUnavailable(t *testing.T) {
	svc, _ := newTestExports(t, nil, nil)
	_, err := svc.Archive(context.Background(), "all")
	assert.ErrorIs(t, err, ErrArchiveUnavailable)
	_, err = svc.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrArchiveUnavailable)
	_, err = svc.Prune(context.Background(), 30)
	assert.ErrorIs(t, err, ErrArchiveUnavailable)
}

func TestPruneCutoff(t *testing.T) {
	archive := &memArchive{}
	svc, _ := newTestExports(t, archive, nil)

	n, err := svc.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, archive.cutoff.IsZero(), "zero retention keeps everything")

	n, err = svc.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, testNow.AddDate(0, 0, -30), archive.cutoff)
}
