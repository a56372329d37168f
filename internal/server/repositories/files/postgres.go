package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/dbx"
	"github.com/dmitrijs2005/securebox/internal/server/models"
)

const recordColumns = `file_id, filename, file_size, content_type, download_token,
		key_material, created_at, expires_at, downloaded_at, is_downloaded,
		download_count, blob_object_name`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanRecord(row interface{ Scan(dest ...any) error }) (*models.FileRecord, error) {
	var r models.FileRecord
	var downloadedAt sql.NullTime
	err := row.Scan(&r.FileID, &r.Filename, &r.SizeBytes, &r.ContentType,
		&r.DownloadToken, &r.KeyMaterial, &r.CreatedAt, &r.ExpiresAt,
		&downloadedAt, &r.IsDownloaded, &r.DownloadCount, &r.BlobObjectName)
	if err != nil {
		return nil, err
	}
	if downloadedAt.Valid {
		r.DownloadedAt = &downloadedAt.Time
	}
	return &r, nil
}

// Create inserts a new file record. The insert is the commit point of the
// upload saga: once the row exists the upload happened.
func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) error {
	query := `
		INSERT INTO files (file_id, filename, file_size, content_type, download_token,
			key_material, created_at, expires_at, blob_object_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.FileID, record.Filename, record.SizeBytes, record.ContentType,
		record.DownloadToken, record.KeyMaterial, record.CreatedAt, record.ExpiresAt,
		record.BlobObjectName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE download_token=$1`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return record, nil
}

// GetByIDAndToken requires the exact pair so that a leaked or guessed file ID
// alone can never retrieve a record.
func (r *PostgresRepository) GetByIDAndToken(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE file_id=$1 AND download_token=$2`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, fileID, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return record, nil
}

// MarkDownloaded is the system's sole synchronization point: a compare-and-set
// on is_downloaded executed as one statement at the store. Of N concurrent
// callers exactly one sees rows-affected 1.
func (r *PostgresRepository) MarkDownloaded(ctx context.Context, fileID, token string, now time.Time) error {
	query := `
		UPDATE files
		SET is_downloaded = TRUE, downloaded_at = $3, download_count = download_count + 1
		WHERE file_id = $1 AND download_token = $2 AND is_downloaded = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, fileID, token, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or a concurrent caller won.
	var isDownloaded bool
	err = r.db.QueryRowContext(ctx,
		`SELECT is_downloaded FROM files WHERE file_id=$1 AND download_token=$2`,
		fileID, token).Scan(&isDownloaded)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if isDownloaded {
		return common.ErrConflict
	}
	return fmt.Errorf("mark downloaded affected no rows for %s", fileID)
}

func (r *PostgresRepository) selectRecords(ctx context.Context, query string, args ...any) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectExpired returns records whose TTL elapsed before now.
func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE expires_at < $1`
	return r.selectRecords(ctx, query, now)
}

// SelectDownloadedBefore returns consumed records whose grace period elapsed.
func (r *PostgresRepository) SelectDownloadedBefore(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE is_downloaded = TRUE AND downloaded_at < $1`
	return r.selectRecords(ctx, query, cutoff)
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE file_id=$1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ExistsByObjectName(ctx context.Context, objectName string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE blob_object_name=$1)`, objectName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) CountSnapshot(ctx context.Context, now time.Time) (*Snapshot, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE expires_at >= $1 AND NOT is_downloaded),
			COALESCE(SUM(file_size), 0),
			COALESCE(AVG(file_size), 0)::BIGINT
		FROM files
	`
	s := &Snapshot{}
	if err := r.db.QueryRowContext(ctx, query, now).Scan(&s.ActiveFiles, &s.StorageUsed, &s.AvgFileSize); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error) {
	query := `
		SELECT SPLIT_PART(content_type, '/', 1), COUNT(*), COALESCE(SUM(file_size), 0)
		FROM files
		WHERE content_type IS NOT NULL AND content_type <> ''
		GROUP BY SPLIT_PART(content_type, '/', 1)
		ORDER BY COUNT(*) DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}
	defer rows.Close()

	var result []models.CategoryStats
	for rows.Next() {
		var c models.CategoryStats
		if err := rows.Scan(&c.Category, &c.Count, &c.TotalSize); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
