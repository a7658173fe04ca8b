package occasync

import (
	"os"
	"time"
)

// Operational constants
const (
	// Token signing
	TokenTTL   = 7 * 24 * time.Hour
	BcryptCost = 10

	// Fallback-store persistence
	DefaultSnapshotPath    = "data/snapshot.json"
	DefaultFilePermissions = 0644
	DefaultDirPermissions  = 0755

	// Rate limiting
	DefaultRateWindow   = time.Minute
	RateSweepInterval   = 5 * time.Minute
	UnknownClientKey    = "unknown"
	RateKeyPrefix       = "ratelimit:"
	DefaultHTTPAddr     = ":8080"
	DefaultDatabaseName = "occasync"
)

// Config holds environment-driven configuration for the data-access core.
//
// Environment variables read (with defaults):
//   - DATABASE_URL: Postgres connection string; empty selects the in-memory
//     file-persisted fallback store
//   - DB_NAME (default: "occasync")
//   - SNAPSHOT_PATH (default: "data/snapshot.json"): fallback snapshot file
//   - JWT_SECRET: token signing secret; token issuing/verification refuses to
//     start without it
//   - REDIS_ADDR: optional, enables the Redis-backed rate limiter
//   - AWS_BUCKET / GCS_BUCKET: optional remote snapshot storage
//   - HTTP_ADDR (default: ":8080")
type Config struct {
	DatabaseURL  string
	DatabaseName string
	SnapshotPath string
	JWTSecret    string
	RedisAddr    string
	AWSBucket    string
	GCSBucket    string
	HTTPAddr     string
}

// LoadConfig reads configuration from the environment
func LoadConfig() Config {
	return Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: getEnv("DB_NAME", DefaultDatabaseName),
		SnapshotPath: getEnv("SNAPSHOT_PATH", DefaultSnapshotPath),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		AWSBucket:    os.Getenv("AWS_BUCKET"),
		GCSBucket:    os.Getenv("GCS_BUCKET"),
		HTTPAddr:     getEnv("HTTP_ADDR", DefaultHTTPAddr),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
