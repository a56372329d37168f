// Package gateway orchestrates the file lifecycle: the upload saga
// (encrypt, persist, cache) and the token-gated one-time download protocol.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/models"
	"github.com/dmitrijs2005/securebox/internal/server/notify"
	"github.com/dmitrijs2005/securebox/internal/server/storage"
	"github.com/dmitrijs2005/securebox/internal/server/tokencache"
)

// Encrypter is the payload encryption boundary consumed by the gateway.
type Encrypter interface {
	Encrypt(ctx context.Context, fileID string, plaintext []byte, password string) (ciphertext, material []byte, err error)
	Decrypt(ctx context.Context, fileID string, ciphertext, material []byte, password string) ([]byte, error)
}

// allowedExtensions is the upload allowlist, matched case-insensitively
// against the filename extension.
var allowedExtensions = map[string]struct{}{
	".txt": {}, ".pdf": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".mp4": {}, ".mp3": {}, ".wav": {},
	".avi": {}, ".mov": {},
}

// UploadRequest carries one upload. ExpiryHours of 0 selects the configured
// default; Password empty means a random content key.
type UploadRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	ExpiryHours int
	Password    string
}

// UploadResult is returned to the client after a committed upload.
type UploadResult struct {
	FileID        string
	DownloadToken string
	ExpiresAt     time.Time
}

// DownloadResult carries the decrypted payload of a consumed token.
type DownloadResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Limits bounds what the gateway accepts.
type Limits struct {
	MaxFileSize        int64
	MaxExpiryHours     int
	DefaultExpiryHours int
}

// Service drives the upload saga and the download protocol. It holds no
// mutable state of its own; all synchronization lives in the storage tier.
type Service struct {
	store    storage.Backend
	cache    tokencache.Cache
	crypto   Encrypter
	notifier notify.Notifier
	log      logging.Logger
	limits   Limits
	now      func() time.Time
}

func NewService(store storage.Backend, cache tokencache.Cache, crypto Encrypter,
	notifier notify.Notifier, log logging.Logger, limits Limits) *Service {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 100 << 20
	}
	if limits.MaxExpiryHours <= 0 {
		limits.MaxExpiryHours = 168
	}
	if limits.DefaultExpiryHours <= 0 {
		limits.DefaultExpiryHours = 24
	}
	return &Service{
		store:    store,
		cache:    cache,
		crypto:   crypto,
		notifier: notifier,
		log:      log.With("component", "gateway"),
		limits:   limits,
		now:      time.Now,
	}
}

func (s *Service) validate(req *UploadRequest) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if int64(len(req.Data)) > s.limits.MaxFileSize {
		return fmt.Errorf("%w: file exceeds %d bytes", common.ErrValidation, s.limits.MaxFileSize)
	}
	if req.Filename == "" {
		return fmt.Errorf("%w: filename required", common.ErrValidation)
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: file type not allowed", common.ErrValidation)
	}
	if req.ExpiryHours < 0 || req.ExpiryHours > s.limits.MaxExpiryHours {
		return fmt.Errorf("%w: expiry must be between 1 and %d hours", common.ErrValidation, s.limits.MaxExpiryHours)
	}
	return nil
}

// Upload runs the saga: validate, encrypt, persist, cache. The metadata
// insert inside the store is the commit point; every failure before it
// behaves as if the upload never happened.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	expiryHours := req.ExpiryHours
	if expiryHours == 0 {
		expiryHours = s.limits.DefaultExpiryHours
	}

	fileID := common.NewFileID()
	token := common.NewDownloadToken()

	ciphertext, material, err := s.crypto.Encrypt(ctx, fileID, req.Data, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := &models.FileRecord{
		FileID:         fileID,
		Filename:       filepath.Base(req.Filename),
		ContentType:    req.ContentType,
		SizeBytes:      int64(len(req.Data)),
		DownloadToken:  token,
		KeyMaterial:    material,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(expiryHours) * time.Hour),
		BlobObjectName: fileID + "/" + common.NewObjectSuffix(),
	}

	if err := s.store.Store(ctx, record, ciphertext); err != nil {
		return nil, err
	}

	// Cache only after the metadata commit, so an entry can never point at
	// a record that does not exist. A returned token must be resolvable,
	// so a failed populate fails the upload; the committed row is left for
	// the expiry sweep.
	ttl := record.ExpiresAt.Sub(now)
	if err := s.cache.Set(ctx, tokencache.TokenKey(token), fileID, ttl); err != nil {
		s.log.Error(ctx, "token cache populate failed", "file_id", fileID, "error", err)
		return nil, fmt.Errorf("%w: token registration: %w", common.ErrServiceUnavailable, err)
	}

	uploadsTotal.Inc()
	uploadSizes.Observe(float64(record.SizeBytes))
	s.log.Info(ctx, "file stored",
		"file_id", fileID, "size", record.SizeBytes, "expires_at", record.ExpiresAt)

	s.notify(ctx, notify.Notification{
		Type:    notify.TypeUploadComplete,
		Message: "file uploaded",
		Metadata: map[string]any{
			"file_id": fileID,
			"size":    record.SizeBytes,
		},
	})

	return &UploadResult{
		FileID:        fileID,
		DownloadToken: token,
		ExpiresAt:     record.ExpiresAt,
	}, nil
}

// Download consumes a one-time token. The durable downloaded flag is flipped
// only after a successful decrypt, and the cache entry is purged only after
// the flag flips; on a mark failure the call fails closed with
// ErrServiceUnavailable and serves nothing.
func (s *Service) Download(ctx context.Context, token, password string) (*DownloadResult, error) {
	fileID, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	record, ciphertext, err := s.store.Retrieve(ctx, fileID, token)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.crypto.Decrypt(ctx, fileID, ciphertext, record.KeyMaterial, password)
	if err != nil {
		// Unauthorized and DecryptionFailed both leave the token live.
		return nil, err
	}

	if err := s.store.MarkDownloaded(ctx, fileID, token); err != nil {
		if errors.Is(err, common.ErrConflict) || errors.Is(err, common.ErrNotFound) {
			// Lost the race: another download already consumed the token.
			return nil, common.ErrAlreadyDownloaded
		}
		s.log.Error(ctx, "download mark failed", "file_id", fileID, "error", err)
		return nil, fmt.Errorf("%w: download could not be recorded", common.ErrServiceUnavailable)
	}

	if err := s.cache.Delete(ctx, tokencache.TokenKey(token)); err != nil {
		// Harmless: storage rejects any further attempt on this token.
		s.log.Warn(ctx, "token cache purge failed", "file_id", fileID, "error", err)
	}

	downloadsTotal.Inc()
	s.log.Info(ctx, "file downloaded", "file_id", fileID, "size", record.SizeBytes)

	s.notify(ctx, notify.Notification{
		Type:    notify.TypeDownloadComplete,
		Message: "file downloaded",
		Metadata: map[string]any{
			"file_id": fileID,
		},
	})

	return &DownloadResult{
		Data:        plaintext,
		Filename:    record.Filename,
		ContentType: record.ContentType,
	}, nil
}

// resolveToken maps a download token to its file id via the cache. A miss is
// reported as not found: live tokens always have a cache entry because the
// TTL mirrors the file expiry and entries are purged only after consumption.
func (s *Service) resolveToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: token required", common.ErrValidation)
	}
	fileID, err := s.cache.Get(ctx, tokencache.TokenKey(token))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("%w: token lookup: %w", common.ErrServiceUnavailable, err)
	}
	return fileID, nil
}

// Status reports available, downloaded or expired for a token. A cache hit
// proves the record is live; otherwise the metadata store answers, so a cold
// cache degrades to a database read instead of a wrong answer.
func (s *Service) Status(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: token required", common.ErrValidation)
	}

	if _, err := s.cache.Get(ctx, tokencache.TokenKey(token)); err == nil {
		return models.StatusAvailable, nil
	}

	record, err := s.store.Status(ctx, token)
	if err != nil {
		return "", err
	}
	return record.StatusAt(s.now()), nil
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.log.Warn(ctx, "notification failed", "type", n.Type, "error", err)
	}
}
