package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/dbx"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/blob"
	"github.com/dmitrijs2005/securebox/internal/server/models"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/securebox/internal/server/repositories/files"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

type fakeFilesRepo struct {
	createFn       func(ctx context.Context, record *models.FileRecord) error
	getByPairFn    func(ctx context.Context, fileID, token string) (*models.FileRecord, error)
	getByTokenFn   func(ctx context.Context, token string) (*models.FileRecord, error)
	markFn         func(ctx context.Context, fileID, token string, now time.Time) error
	expiredFn      func(ctx context.Context, now time.Time) ([]*models.FileRecord, error)
	downloadedFn   func(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error)
	deleteFn       func(ctx context.Context, fileID string) error
	existsByNameFn func(ctx context.Context, objectName string) (bool, error)
}

func (f *fakeFilesRepo) Create(ctx context.Context, record *models.FileRecord) error {
	return f.createFn(ctx, record)
}
func (f *fakeFilesRepo) GetByToken(ctx context.Context, token string) (*models.FileRecord, error) {
	return f.getByTokenFn(ctx, token)
}
func (f *fakeFilesRepo) GetByIDAndToken(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
	return f.getByPairFn(ctx, fileID, token)
}
func (f *fakeFilesRepo) MarkDownloaded(ctx context.Context, fileID, token string, now time.Time) error {
	return f.markFn(ctx, fileID, token, now)
}
func (f *fakeFilesRepo) SelectExpired(ctx context.Context, now time.Time) ([]*models.FileRecord, error) {
	return f.expiredFn(ctx, now)
}
func (f *fakeFilesRepo) SelectDownloadedBefore(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error) {
	return f.downloadedFn(ctx, cutoff)
}
func (f *fakeFilesRepo) Delete(ctx context.Context, fileID string) error {
	return f.deleteFn(ctx, fileID)
}
func (f *fakeFilesRepo) ExistsByObjectName(ctx context.Context, objectName string) (bool, error) {
	return f.existsByNameFn(ctx, objectName)
}
func (f *fakeFilesRepo) CountSnapshot(ctx context.Context, now time.Time) (*files.Snapshot, error) {
	return &files.Snapshot{}, nil
}
func (f *fakeFilesRepo) CategoryBreakdown(ctx context.Context) ([]models.CategoryStats, error) {
	return nil, nil
}

type fakeAuditRepo struct {
	entries []*models.AuditEntry
	err     error
}

func (f *fakeAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}
func (f *fakeAuditRepo) CountByOperation(ctx context.Context, operation string) (int64, error) {
	return 0, nil
}
func (f *fakeAuditRepo) HourlyUploads(ctx context.Context, since time.Time) ([]models.HourlyCount, error) {
	return nil, nil
}

type fakeManager struct {
	files *fakeFilesRepo
	audit *fakeAuditRepo
}

func (m *fakeManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeManager) Files(db dbx.DBTX) files.Repository                  { return m.files }
func (m *fakeManager) Audit(db dbx.DBTX) audit.Repository                  { return m.audit }

func newTestService(t *testing.T, filesRepo *fakeFilesRepo, auditRepo *fakeAuditRepo) (*Service, sqlmock.Sqlmock, *blob.MemStore, *tokencache.MemCache) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs := blob.NewMemStore()
	cache := tokencache.NewMemCache()
	svc := NewService(db, &fakeManager{files: filesRepo, audit: auditRepo}, blobs,
		cache, logging.NewDefault(), Options{})
	return svc, mock, blobs, cache
}

func testRecord() *models.FileRecord {
	return &models.FileRecord{
		FileID:         "aabbccdd",
		Filename:       "report.pdf",
		ContentType:    "application/pdf",
		SizeBytes:      77,
		DownloadToken:  "tok",
		BlobObjectName: "aabbccdd/0011223344556677",
		ExpiresAt:      time.Now().Add(time.Hour),
	}
}

func TestStore_WritesBlobThenMetadata(t *testing.T) {
	filesRepo := &fakeFilesRepo{createFn: func(ctx context.Context, record *models.FileRecord) error { return nil }}
	auditRepo := &fakeAuditRepo{}
	svc, mock, blobs, _ := newTestService(t, filesRepo, auditRepo)

	mock.ExpectBegin()
	mock.ExpectCommit()

	record := testRecord()
	require.NoError(t, svc.Store(context.Background(), record, []byte("ciphertext")))

	data, err := blobs.Get(context.Background(), record.BlobObjectName)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, models.OpUpload, auditRepo.entries[0].Operation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertFailureLeavesBlobForSweep(t *testing.T) {
	filesRepo := &fakeFilesRepo{createFn: func(ctx context.Context, record *models.FileRecord) error {
		return errors.New("insert failed")
	}}
	svc, mock, blobs, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	mock.ExpectBegin()
	mock.ExpectRollback()

	record := testRecord()
	err := svc.Store(context.Background(), record, []byte("ciphertext"))
	assert.ErrorIs(t, err, common.ErrStorageFailed)

	// Orphaned blob stays behind for the sweep.
	_, err = blobs.Get(context.Background(), record.BlobObjectName)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_OK(t *testing.T) {
	record := testRecord()
	filesRepo := &fakeFilesRepo{getByPairFn: func(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
		assert.Equal(t, record.FileID, fileID)
		assert.Equal(t, record.DownloadToken, token)
		return record, nil
	}}
	svc, _, blobs, _ := newTestService(t, filesRepo, &fakeAuditRepo{})
	require.NoError(t, blobs.Put(context.Background(), record.BlobObjectName, []byte("ciphertext")))

	got, data, err := svc.Retrieve(context.Background(), record.FileID, record.DownloadToken)
	require.NoError(t, err)
	assert.Equal(t, record.FileID, got.FileID)
	assert.Equal(t, []byte("ciphertext"), data)
}

func TestRetrieve_AlreadyDownloaded(t *testing.T) {
	record := testRecord()
	record.IsDownloaded = true
	filesRepo := &fakeFilesRepo{getByPairFn: func(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
		return record, nil
	}}
	svc, _, _, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	_, _, err := svc.Retrieve(context.Background(), record.FileID, record.DownloadToken)
	assert.ErrorIs(t, err, common.ErrAlreadyDownloaded)
}

func TestRetrieve_Expired(t *testing.T) {
	record := testRecord()
	record.ExpiresAt = time.Now().Add(-time.Minute)
	filesRepo := &fakeFilesRepo{getByPairFn: func(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
		return record, nil
	}}
	svc, _, _, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	_, _, err := svc.Retrieve(context.Background(), record.FileID, record.DownloadToken)
	assert.ErrorIs(t, err, common.ErrExpired)
}

func TestRetrieve_BlobMissingIsStorageFailure(t *testing.T) {
	record := testRecord()
	filesRepo := &fakeFilesRepo{getByPairFn: func(ctx context.Context, fileID, token string) (*models.FileRecord, error) {
		return record, nil
	}}
	svc, _, _, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	_, _, err := svc.Retrieve(context.Background(), record.FileID, record.DownloadToken)
	assert.ErrorIs(t, err, common.ErrStorageFailed)
}

func TestMarkDownloaded_AppendsAuditInSameTx(t *testing.T) {
	marked := false
	filesRepo := &fakeFilesRepo{markFn: func(ctx context.Context, fileID, token string, now time.Time) error {
		marked = true
		return nil
	}}
	auditRepo := &fakeAuditRepo{}
	svc, mock, _, _ := newTestService(t, filesRepo, auditRepo)

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.MarkDownloaded(context.Background(), "aabbccdd", "tok"))
	assert.True(t, marked)
	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, models.OpDownload, auditRepo.entries[0].Operation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDownloaded_ConflictRollsBack(t *testing.T) {
	filesRepo := &fakeFilesRepo{markFn: func(ctx context.Context, fileID, token string, now time.Time) error {
		return common.ErrConflict
	}}
	auditRepo := &fakeAuditRepo{}
	svc, mock, _, _ := newTestService(t, filesRepo, auditRepo)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := svc.MarkDownloaded(context.Background(), "aabbccdd", "tok")
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Empty(t, auditRepo.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupExpired_PerItemIsolation(t *testing.T) {
	good := testRecord()
	bad := testRecord()
	bad.FileID = "badbadbad"
	bad.DownloadToken = "tok2"
	bad.BlobObjectName = "badbadbad/8899aabbccddeeff"

	filesRepo := &fakeFilesRepo{
		expiredFn: func(ctx context.Context, now time.Time) ([]*models.FileRecord, error) {
			return []*models.FileRecord{bad, good}, nil
		},
		deleteFn: func(ctx context.Context, fileID string) error {
			if fileID == bad.FileID {
				return errors.New("delete failed")
			}
			return nil
		},
	}
	auditRepo := &fakeAuditRepo{}
	svc, mock, blobs, cache := newTestService(t, filesRepo, auditRepo)

	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, good.BlobObjectName, []byte("a")))
	require.NoError(t, blobs.Put(ctx, bad.BlobObjectName, []byte("b")))
	require.NoError(t, cache.Set(ctx, tokencache.TokenKey(good.DownloadToken), good.FileID, time.Hour))

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = blobs.Get(ctx, good.BlobObjectName)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = cache.Get(ctx, tokencache.TokenKey(good.DownloadToken))
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupDownloaded_UsesRetentionCutoff(t *testing.T) {
	var gotCutoff time.Time
	filesRepo := &fakeFilesRepo{
		downloadedFn: func(ctx context.Context, cutoff time.Time) ([]*models.FileRecord, error) {
			gotCutoff = cutoff
			return nil, nil
		},
	}
	svc, _, _, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	removed, err := svc.CleanupDownloaded(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, fixed.Add(-time.Hour), gotCutoff)
}

func TestOrphanSweep(t *testing.T) {
	filesRepo := &fakeFilesRepo{
		existsByNameFn: func(ctx context.Context, objectName string) (bool, error) {
			return objectName == "known/0011223344556677", nil
		},
	}
	svc, _, blobs, _ := newTestService(t, filesRepo, &fakeAuditRepo{})

	fixed := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Old orphan, old referenced blob, fresh orphan inside the grace window.
	putAt := func(name string, modified time.Time) {
		blobs.SetNow(func() time.Time { return modified })
		require.NoError(t, blobs.Put(ctx, name, []byte("x")))
	}
	putAt("orphan/0011223344556677", fixed.Add(-48*time.Hour))
	putAt("known/0011223344556677", fixed.Add(-48*time.Hour))
	putAt("fresh/0011223344556677", fixed.Add(-time.Hour))

	svc.now = func() time.Time { return fixed }

	removed, err := svc.OrphanSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = blobs.Get(ctx, "orphan/0011223344556677")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = blobs.Get(ctx, "known/0011223344556677")
	assert.NoError(t, err)
	_, err = blobs.Get(ctx, "fresh/0011223344556677")
	assert.NoError(t, err)
}
