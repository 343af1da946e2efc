package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBPath    string // SCUTTLE_DB_PATH (required): SQLite index file
	LogPath   string // SCUTTLE_LOG_PATH (required): offset log file
	HTTPAddr  string // SCUTTLE_HTTP_ADDR (default ":8080")
	NATSURL   string // SCUTTLE_NATS_URL (optional, empty = no events)
	AuthToken string // SCUTTLE_AUTH_TOKEN (optional, empty = auth disabled)

	// Backup settings
	BackupInterval   time.Duration // SCUTTLE_BACKUP_INTERVAL (default 3m; 0 = disabled)
	BackupS3Bucket   string        // SCUTTLE_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string        // SCUTTLE_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string        // SCUTTLE_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string        // SCUTTLE_BACKUP_S3_KEY (default "scuttle/log.offset")
}

func Load() (*Config, error) {
	c := &Config{
		DBPath:           os.Getenv("SCUTTLE_DB_PATH"),
		LogPath:          os.Getenv("SCUTTLE_LOG_PATH"),
		HTTPAddr:         envOrDefault("SCUTTLE_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("SCUTTLE_NATS_URL"),
		AuthToken:        os.Getenv("SCUTTLE_AUTH_TOKEN"),
		BackupS3Bucket:   os.Getenv("SCUTTLE_BACKUP_S3_BUCKET"),
		BackupS3Endpoint: os.Getenv("SCUTTLE_BACKUP_S3_ENDPOINT"),
		BackupS3Region:   envOrDefault("SCUTTLE_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Key:      envOrDefault("SCUTTLE_BACKUP_S3_KEY", "scuttle/log.offset"),
	}
	if c.DBPath == "" {
		return nil, fmt.Errorf("SCUTTLE_DB_PATH is required")
	}
	if c.LogPath == "" {
		return nil, fmt.Errorf("SCUTTLE_LOG_PATH is required")
	}

	intervalStr := envOrDefault("SCUTTLE_BACKUP_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("SCUTTLE_BACKUP_INTERVAL: %w", err)
		}
		c.BackupInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
