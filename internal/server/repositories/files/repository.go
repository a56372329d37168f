package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/securebox/internal/server/models"
)

// Snapshot aggregates the current state of the files table for stats.
type Snapshot struct {
	ActiveFiles int64
	StorageUsed int64
	AvgFileSize int64
}

// Repository is the metadata store for file records.
type Repository interface {
	Create(ctx context.Context, record *models.FileRecord) error
	GetByToken(ctx context.Context, token string) (*models.FileRecord, error)
	GetByIDAndToken(ctx context.Context, fileID, token string) (*models.FileRecord, error)

	// MarkDownloaded performs the single conditional update implementing
	// the one-time-use guarantee. It returns common.ErrConflict when the
	// row exists but is already downloaded, common.ErrNotFound when no
	// (fileID, token) row exists.
	MarkDownloaded(ctx context.Context, fileID, token string, now time.Time) error

	SelectExpired(ctx context.Context, now time.Time) ([]*models.FileRecord, error)
	SelectDownloadedBefore(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error)
	Delete(ctx context.Context, fileID string) error

	// ExistsByObjectName reports whether any metadata row references the
	// given blob object. Used by the orphan sweep.
	ExistsByObjectName(ctx context.Context, objectName string) (bool, error)

	CountSnapshot(ctx context.Context, now time.Time) (*Snapshot, error)
	CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error)
}
