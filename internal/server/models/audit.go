package models

import "time"

// Audit operations recorded in the append-only file_audit_log table.
const (
	OpUpload            = "upload"
	OpDownload          = "download"
	OpExpiredCleanup    = "expired_cleanup"
	OpDownloadedCleanup = "downloaded_cleanup"
	OpProcessed         = "processed"
)

// AuditEntry is one append-only record of a lifecycle operation.
type AuditEntry struct {
	FileID    string
	Operation string
	// Metadata is a free-form JSON document (filename, size, timings...).
	Metadata  map[string]any
	CreatedAt time.Time
}
