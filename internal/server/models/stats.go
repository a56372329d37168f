package models

import "time"

// UsageStats is the derived, read-only statistics document produced by the
// stats aggregator. It has no lifecycle side effects.
type UsageStats struct {
	TotalUploads   int64           `json:"total_uploads"`
	TotalDownloads int64           `json:"total_downloads"`
	TotalExpired   int64           `json:"total_expired"`
	ActiveFiles    int64           `json:"active_files"`
	StorageUsed    int64           `json:"storage_used_bytes"`
	AvgFileSize    int64           `json:"avg_file_size_bytes"`
	HourlyUploads  []HourlyCount   `json:"hourly_uploads"`
	FileCategories []CategoryStats `json:"file_categories"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// HourlyCount is the number of uploads in one hour bucket.
type HourlyCount struct {
	Hour    time.Time `json:"hour"`
	Uploads int64     `json:"uploads"`
}

// CategoryStats aggregates files by the major part of their content type.
type CategoryStats struct {
	Category  string `json:"category"`
	Count     int64  `json:"count"`
	TotalSize int64  `json:"total_size"`
}
