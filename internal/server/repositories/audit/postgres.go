package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securebox/internal/dbx"
	"github.com/dmitrijs2005/securebox/internal/server/models"
)

// PostgresRepository implements the audit log over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts one audit entry. Entries are never updated or deleted.
func (r *PostgresRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("metadata marshal error: %w", err)
	}

	query := `INSERT INTO file_audit_log (file_id, operation, metadata) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, entry.FileID, entry.Operation, payload); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountByOperation(ctx context.Context, operation string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_audit_log WHERE operation=$1`, operation).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// HourlyUploads buckets upload operations by hour, newest first.
func (r *PostgresRepository) HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error) {
	query := `
		SELECT DATE_TRUNC('hour', created_at) AS hour, COUNT(*)
		FROM file_audit_log
		WHERE operation = 'upload' AND created_at > $1
		GROUP BY DATE_TRUNC('hour', created_at)
		ORDER BY hour DESC
	`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select hourly uploads: %w", err)
	}
	defer rows.Close()

	var result []models.HourlyCount
	for rows.Next() {
		var h models.HourlyCount
		if err := rows.Scan(&h.Hour, &h.Uploads); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
