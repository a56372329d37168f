package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/securebox/internal/flagx"
	"github.com/dmitrijs2005/securebox/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. It uses timex.Duration for interval fields, which allows parsing
// both string values such as "5m" and integer nanoseconds. After
// unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	DatabaseDSN      *string `json:"database_dsn"`

	SecretKey           *string         `json:"secret_key"`
	JWTValidityDuration *timex.Duration `json:"jwt_validity_duration"`

	RedisAddr     *string `json:"redis_addr"`
	RedisPassword *string `json:"redis_password"`
	RedisDB       *int    `json:"redis_db"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`

	MaxFileSizeMB      *int `json:"max_file_size_mb"`
	MaxExpiryHours     *int `json:"max_expiry_hours"`
	DefaultExpiryHours *int `json:"default_expiry_hours"`

	DownloadedRetention *timex.Duration `json:"downloaded_retention"`
	OrphanGraceWindow   *timex.Duration `json:"orphan_grace_window"`

	CleanupExpiredInterval    *timex.Duration `json:"cleanup_expired_interval"`
	CleanupDownloadedInterval *timex.Duration `json:"cleanup_downloaded_interval"`
	OrphanSweepInterval       *timex.Duration `json:"orphan_sweep_interval"`
	StatsInterval             *timex.Duration `json:"stats_interval"`

	WebhookURL *string `json:"webhook_url"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config. The file path comes from the -c or -config flags; when neither is
// set, no file is loaded. Fields absent from the file keep their current
// values. An unreadable or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setInt(&config.MaxFileSizeMB, c.MaxFileSizeMB)
	setInt(&config.MaxExpiryHours, c.MaxExpiryHours)
	setInt(&config.DefaultExpiryHours, c.DefaultExpiryHours)
	setString(&config.WebhookURL, c.WebhookURL)

	if c.JWTValidityDuration != nil {
		config.JWTValidityDuration = c.JWTValidityDuration.Duration
	}
	if c.DownloadedRetention != nil {
		config.DownloadedRetention = c.DownloadedRetention.Duration
	}
	if c.OrphanGraceWindow != nil {
		config.OrphanGraceWindow = c.OrphanGraceWindow.Duration
	}
	if c.CleanupExpiredInterval != nil {
		config.CleanupExpiredInterval = c.CleanupExpiredInterval.Duration
	}
	if c.CleanupDownloadedInterval != nil {
		config.CleanupDownloadedInterval = c.CleanupDownloadedInterval.Duration
	}
	if c.OrphanSweepInterval != nil {
		config.OrphanSweepInterval = c.OrphanSweepInterval.Duration
	}
	if c.StatsInterval != nil {
		config.StatsInterval = c.StatsInterval.Duration
	}
}
