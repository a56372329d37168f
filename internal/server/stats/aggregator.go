// Package stats derives read-only usage statistics from the audit trail and
// the current metadata snapshot. Results are cached with a short TTL; the
// aggregator never touches the file lifecycle.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/models"
	"github.com/dmitrijs2005/securebox/internal/server/storage"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

// Aggregator recomputes and caches the usage-stats document.
type Aggregator struct {
	store storage.Backend
	cache tokencache.Cache
	log   logging.Logger
	ttl   time.Duration
	now   func() time.Time
}

func NewAggregator(store storage.Backend, cache tokencache.Cache, log logging.Logger, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Aggregator{
		store: store,
		cache: cache,
		log:   log.With("component", "stats"),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Recompute rebuilds the stats document from the audit counts and the
// metadata snapshot, and refreshes the cached copy.
func (a *Aggregator) Recompute(ctx context.Context) (*models.UsageStats, error) {
	doc := &models.UsageStats{GeneratedAt: a.now()}

	var err error
	if doc.TotalUploads, err = a.store.CountByOperation(ctx, models.OpUpload); err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}
	if doc.TotalDownloads, err = a.store.CountByOperation(ctx, models.OpDownload); err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}
	if doc.TotalExpired, err = a.store.CountByOperation(ctx, models.OpExpiredCleanup); err != nil {
		return nil, fmt.Errorf("count expirations: %w", err)
	}

	snapshot, err := a.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	doc.ActiveFiles = snapshot.ActiveFiles
	doc.StorageUsed = snapshot.StorageUsed
	doc.AvgFileSize = snapshot.AvgFileSize

	if doc.HourlyUploads, err = a.store.HourlyUploads(ctx, doc.GeneratedAt.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("hourly uploads: %w", err)
	}
	if doc.FileCategories, err = a.store.CategoryBreakdown(ctx); err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	if raw, err := json.Marshal(doc); err == nil {
		if err := a.cache.Set(ctx, tokencache.StatsKey, string(raw), a.ttl); err != nil {
			a.log.Warn(ctx, "stats cache refresh failed", "error", err)
		}
	}
	return doc, nil
}

// Get serves the cached document when present, recomputing on a miss.
func (a *Aggregator) Get(ctx context.Context) (*models.UsageStats, error) {
	raw, err := a.cache.Get(ctx, tokencache.StatsKey)
	if err == nil {
		var doc models.UsageStats
		if err := json.Unmarshal([]byte(raw), &doc); err == nil {
			return &doc, nil
		}
		a.log.Warn(ctx, "discarding malformed cached stats")
	} else if !errors.Is(err, common.ErrNotFound) {
		a.log.Warn(ctx, "stats cache read failed", "error", err)
	}
	return a.Recompute(ctx)
}
