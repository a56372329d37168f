// Package storage implements the consistency engine over the three tiers:
// Postgres metadata, the blob store and the token cache. The metadata row is
// the commit point for every lifecycle transition; blobs and cache entries
// are reconciled around it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/dbx"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/blob"
	"github.com/dmitrijs2005/securebox/internal/server/models"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/files"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

// Backend is the storage contract consumed by the gateway, the reconciler
// and the stats aggregator.
type Backend interface {
	// Store persists the ciphertext and then the metadata row. The row
	// insert is the commit point: a blob written before a failed insert is
	// left behind for the orphan sweep.
	Store(ctx context.Context, record *models.FileRecord, ciphertext []byte) error

	// Retrieve returns the record and ciphertext for an exact
	// (fileID, token) pair. It does not consume the token.
	Retrieve(ctx context.Context, fileID, token string) (*models.FileRecord, []byte, error)

	// MarkDownloaded flips the one-time flag with a single conditional
	// update and appends the download audit entry in the same transaction.
	MarkDownloaded(ctx context.Context, fileID, token string) error

	// Status looks up a record by token alone, for the status endpoint.
	Status(ctx context.Context, token string) (*models.FileRecord, error)

	CleanupExpired(ctx context.Context) (int, error)
	CleanupDownloaded(ctx context.Context) (int, error)
	OrphanSweep(ctx context.Context) (int, error)

	// Read-side aggregates for the stats service.
	Snapshot(ctx context.Context) (*files.Snapshot, error)
	CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error)
	CountByOperation(ctx context.Context, operation string) (int64, error)
	HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error)

	PingDB(ctx context.Context) error
}

// Service implements Backend.
type Service struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	blobs blob.Store
	cache tokencache.Cache
	log   logging.Logger
	now   func() time.Time

	// downloadedRetention is how long consumed rows are kept before the
	// downloaded sweep removes them.
	downloadedRetention time.Duration
	// orphanGraceWindow protects blobs of in-flight uploads from the
	// orphan sweep.
	orphanGraceWindow time.Duration
}

type Options struct {
	DownloadedRetention time.Duration
	OrphanGraceWindow   time.Duration
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, blobs blob.Store,
	cache tokencache.Cache, log logging.Logger, opts Options) *Service {
	if opts.DownloadedRetention <= 0 {
		opts.DownloadedRetention = time.Hour
	}
	if opts.OrphanGraceWindow <= 0 {
		opts.OrphanGraceWindow = 24 * time.Hour
	}
	return &Service{
		db:                  db,
		repos:               repos,
		blobs:               blobs,
		cache:               cache,
		log:                 log.With("component", "storage"),
		now:                 time.Now,
		downloadedRetention: opts.DownloadedRetention,
		orphanGraceWindow:   opts.OrphanGraceWindow,
	}
}

func (s *Service) Store(ctx context.Context, record *models.FileRecord, ciphertext []byte) error {
	if err := s.blobs.Put(ctx, record.BlobObjectName, ciphertext); err != nil {
		return fmt.Errorf("%w: blob write: %w", common.ErrStorageFailed, err)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Files(tx).Create(ctx, record); err != nil {
			return err
		}
		return s.repos.Audit(tx).Append(ctx, &models.AuditEntry{
			FileID:    record.FileID,
			Operation: models.OpUpload,
			Metadata: map[string]any{
				"filename":     record.Filename,
				"size":         record.SizeBytes,
				"content_type": record.ContentType,
			},
		})
	})
	if err != nil {
		// The blob stays behind; the orphan sweep collects it.
		s.log.Error(ctx, "metadata insert failed, blob orphaned",
			"file_id", record.FileID, "object", record.BlobObjectName, "error", err)
		return fmt.Errorf("%w: metadata insert: %w", common.ErrStorageFailed, err)
	}
	return nil
}

func (s *Service) Retrieve(ctx context.Context, fileID, token string) (*models.FileRecord, []byte, error) {
	record, err := s.repos.Files(s.db).GetByIDAndToken(ctx, fileID, token)
	if err != nil {
		return nil, nil, err
	}

	if record.IsDownloaded {
		return nil, nil, common.ErrAlreadyDownloaded
	}
	if s.now().After(record.ExpiresAt) {
		return nil, nil, common.ErrExpired
	}

	ciphertext, err := s.blobs.Get(ctx, record.BlobObjectName)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Metadata says available but the blob is gone.
			return nil, nil, fmt.Errorf("%w: blob missing for %s", common.ErrStorageFailed, record.FileID)
		}
		return nil, nil, fmt.Errorf("%w: blob read: %w", common.ErrStorageFailed, err)
	}
	return record, ciphertext, nil
}

func (s *Service) MarkDownloaded(ctx context.Context, fileID, token string) error {
	now := s.now()
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Files(tx).MarkDownloaded(ctx, fileID, token, now); err != nil {
			return err
		}
		return s.repos.Audit(tx).Append(ctx, &models.AuditEntry{
			FileID:    fileID,
			Operation: models.OpDownload,
		})
	})
}

func (s *Service) Status(ctx context.Context, token string) (*models.FileRecord, error) {
	return s.repos.Files(s.db).GetByToken(ctx, token)
}

// CleanupExpired removes records past their expiry, together with their
// blobs and cache entries.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	candidates, err := s.repos.Files(s.db).SelectExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("select expired: %w", err)
	}
	return s.removeAll(ctx, candidates, models.OpExpiredCleanup), nil
}

// CleanupDownloaded removes consumed records older than the retention
// window.
func (s *Service) CleanupDownloaded(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.downloadedRetention)
	candidates, err := s.repos.Files(s.db).SelectDownloadedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select downloaded: %w", err)
	}
	return s.removeAll(ctx, candidates, models.OpDownloadedCleanup), nil
}

// removeAll tears down each candidate in blob → metadata → cache order.
// Failures are isolated per item so one bad record cannot stall the sweep.
func (s *Service) removeAll(ctx context.Context, candidates []*models.FileRecord, operation string) int {
	removed := 0
	for _, record := range candidates {
		if err := s.remove(ctx, record, operation); err != nil {
			s.log.Error(ctx, "cleanup failed for record",
				"file_id", record.FileID, "operation", operation, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info(ctx, "cleanup pass finished", "operation", operation, "removed", removed)
	}
	return removed
}

func (s *Service) remove(ctx context.Context, record *models.FileRecord, operation string) error {
	if err := s.blobs.Delete(ctx, record.BlobObjectName); err != nil {
		return fmt.Errorf("blob delete: %w", err)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Audit(tx).Append(ctx, &models.AuditEntry{
			FileID:    record.FileID,
			Operation: operation,
			Metadata: map[string]any{
				"filename": record.Filename,
				"size":     record.SizeBytes,
			},
		}); err != nil {
			return err
		}
		return s.repos.Files(tx).Delete(ctx, record.FileID)
	})
	if err != nil {
		return fmt.Errorf("metadata delete: %w", err)
	}

	if err := s.cache.Delete(ctx, tokencache.TokenKey(record.DownloadToken)); err != nil {
		// The cache entry expires on its own; the row is already gone.
		s.log.Warn(ctx, "cache invalidation failed", "file_id", record.FileID, "error", err)
	}
	return nil
}

// OrphanSweep deletes blobs older than the grace window that no metadata
// row references. Such blobs are the residue of upload sagas that failed
// after the blob write.
func (s *Service) OrphanSweep(ctx context.Context) (int, error) {
	objects, err := s.blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("blob list: %w", err)
	}

	cutoff := s.now().Add(-s.orphanGraceWindow)
	repo := s.repos.Files(s.db)
	removed := 0

	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		exists, err := repo.ExistsByObjectName(ctx, obj.Name)
		if err != nil {
			s.log.Error(ctx, "orphan check failed", "object", obj.Name, "error", err)
			continue
		}
		if exists {
			continue
		}
		if err := s.blobs.Delete(ctx, obj.Name); err != nil {
			s.log.Error(ctx, "orphan delete failed", "object", obj.Name, "error", err)
			continue
		}
		s.log.Info(ctx, "orphaned blob removed", "object", obj.Name, "size", obj.Size)
		removed++
	}
	return removed, nil
}

func (s *Service) Snapshot(ctx context.Context) (*files.Snapshot, error) {
	return s.repos.Files(s.db).CountSnapshot(ctx, s.now())
}

func (s *Service) CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error) {
	return s.repos.Files(s.db).CategoryBreakdown(ctx)
}

func (s *Service) CountByOperation(ctx context.Context, operation string) (int64, error) {
	return s.repos.Audit(s.db).CountByOperation(ctx, operation)
}

func (s *Service) HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error) {
	return s.repos.Audit(s.db).HourlyUploads(ctx, since)
}

func (s *Service) PingDB(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
