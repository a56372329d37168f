// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileRecord is the durable metadata row for one uploaded file. The
// ciphertext itself lives in object storage under BlobObjectName.
//
// A record is created exactly once by the upload saga, flipped to
// downloaded at most once, and removed by the cleanup sweeps.
type FileRecord struct {
	// FileID is the opaque 32-char hex identifier of the file.
	FileID string
	// Filename is the sanitized client-supplied name returned on download.
	Filename    string
	ContentType string
	SizeBytes   int64

	// DownloadToken is the unguessable one-time token; retrieval always
	// requires the exact (FileID, DownloadToken) pair.
	DownloadToken string

	// KeyMaterial is the opaque blob produced by the encryption provider.
	KeyMaterial []byte

	CreatedAt time.Time
	ExpiresAt time.Time

	// IsDownloaded transitions false→true at most once, via a single
	// conditional update at the store.
	IsDownloaded  bool
	DownloadedAt  *time.Time
	DownloadCount int

	// BlobObjectName is "<fileID>/<random suffix>" in the blob tier.
	BlobObjectName string
}

// Status values computed from a record's lifecycle fields.
const (
	StatusAvailable  = "available"
	StatusDownloaded = "downloaded"
	StatusExpired    = "expired"
)

// StatusAt derives the record status at the given instant.
func (r *FileRecord) StatusAt(now time.Time) string {
	switch {
	case r.IsDownloaded:
		return StatusDownloaded
	case now.After(r.ExpiresAt):
		return StatusExpired
	default:
		return StatusAvailable
	}
}
