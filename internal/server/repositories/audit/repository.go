package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/securebox/internal/server/models"
)

// Repository is the append-only audit trail of lifecycle operations.
type Repository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	CountByOperation(ctx context.Context, operation string) (int64, error)
	HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error)
}
