package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/models"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/files"
	"github.com/dmitrijs2005/securebox/internal/server/storage"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

type fakeStatsBackend struct {
	storage.Backend

	counts    map[string]int64
	countErr  error
	snapshot  *files.Snapshot
	hourly    []models.HourlyCount
	breakdown []models.CategoryStats
	calls     int
}

func (b *fakeStatsBackend) CountByOperation(ctx context.Context, operation string) (int64, error) {
	if b.countErr != nil {
		return 0, b.countErr
	}
	b.calls++
	return b.counts[operation], nil
}

func (b *fakeStatsBackend) Snapshot(ctx context.Context) (*files.Snapshot, error) {
	return b.snapshot, nil
}

func (b *fakeStatsBackend) HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error) {
	return b.hourly, nil
}

func (b *fakeStatsBackend) CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error) {
	return b.breakdown, nil
}

func newFakeStatsBackend() *fakeStatsBackend {
	return &fakeStatsBackend{
		counts: map[string]int64{
			models.OpUpload:         120,
			models.OpDownload:       80,
			models.OpExpiredCleanup: 15,
		},
		snapshot: &files.Snapshot{ActiveFiles: 25, StorageUsed: 1 << 20, AvgFileSize: 41943},
		hourly: []models.HourlyCount{
			{Hour: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC), Uploads: 7},
		},
		breakdown: []models.CategoryStats{
			{Category: "application", Count: 20, TotalSize: 900000},
			{Category: "image", Count: 5, TotalSize: 148576},
		},
	}
}

func TestRecompute(t *testing.T) {
	backend := newFakeStatsBackend()
	cache := tokencache.NewMemCache()
	a := NewAggregator(backend, cache, logging.NewDefault(), time.Minute)

	doc, err := a.Recompute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(120), doc.TotalUploads)
	assert.Equal(t, int64(80), doc.TotalDownloads)
	assert.Equal(t, int64(15), doc.TotalExpired)
	assert.Equal(t, int64(25), doc.ActiveFiles)
	assert.Len(t, doc.HourlyUploads, 1)
	assert.Len(t, doc.FileCategories, 2)

	// The document is now cached.
	_, err = cache.Get(context.Background(), tokencache.StatsKey)
	assert.NoError(t, err)
}

func TestGet_ServesCacheFirst(t *testing.T) {
	backend := newFakeStatsBackend()
	cache := tokencache.NewMemCache()
	a := NewAggregator(backend, cache, logging.NewDefault(), time.Minute)

	ctx := context.Background()
	_, err := a.Recompute(ctx)
	require.NoError(t, err)
	callsAfterRecompute := backend.calls

	doc, err := a.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), doc.TotalUploads)
	assert.Equal(t, callsAfterRecompute, backend.calls)
}

func TestGet_RecomputesOnMiss(t *testing.T) {
	backend := newFakeStatsBackend()
	a := NewAggregator(backend, tokencache.NewMemCache(), logging.NewDefault(), time.Minute)

	doc, err := a.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(80), doc.TotalDownloads)
	assert.Positive(t, backend.calls)
}

func TestRecompute_PropagatesBackendError(t *testing.T) {
	backend := newFakeStatsBackend()
	backend.countErr = errors.New("db down")
	a := NewAggregator(backend, tokencache.NewMemCache(), logging.NewDefault(), time.Minute)

	_, err := a.Recompute(context.Background())
	assert.Error(t, err)
}
