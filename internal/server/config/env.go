package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays configuration from environment variables, the primary
// mechanism in containerized deployments. Unset variables keep the current
// values; malformed numeric values are ignored.
func parseEnv(config *Config) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "JWT_SECRET_KEY")
	setDuration(&config.JWTValidityDuration, "JWT_VALIDITY_DURATION")
	setString(&config.RedisAddr, "REDIS_ADDR")
	setString(&config.RedisPassword, "REDIS_PASSWORD")
	setInt(&config.RedisDB, "REDIS_DB")
	setString(&config.S3RootUser, "MINIO_ACCESS_KEY")
	setString(&config.S3RootPassword, "MINIO_SECRET_KEY")
	setString(&config.S3Bucket, "MINIO_BUCKET_NAME")
	setString(&config.S3Region, "MINIO_REGION")
	setString(&config.S3BaseEndpoint, "MINIO_ENDPOINT")
	setInt(&config.MaxFileSizeMB, "MAX_FILE_SIZE_MB")
	setInt(&config.MaxExpiryHours, "MAX_EXPIRY_HOURS")
	setInt(&config.DefaultExpiryHours, "DEFAULT_EXPIRY_HOURS")
	setDuration(&config.DownloadedRetention, "DOWNLOADED_RETENTION")
	setDuration(&config.OrphanGraceWindow, "ORPHAN_GRACE_WINDOW")
	setDuration(&config.CleanupExpiredInterval, "CLEANUP_EXPIRED_INTERVAL")
	setDuration(&config.CleanupDownloadedInterval, "CLEANUP_DOWNLOADED_INTERVAL")
	setDuration(&config.OrphanSweepInterval, "ORPHAN_SWEEP_INTERVAL")
	setDuration(&config.StatsInterval, "STATS_INTERVAL")
	setString(&config.WebhookURL, "WEBHOOK_URL")
}
