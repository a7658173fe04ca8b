package occasync

import "context"

// SnapshotBackend abstracts where the fallback store's snapshot lives.
// The filesystem is the default; S3 and GCS let deployments without a
// persistent disk (containers, serverless) keep durability.
type SnapshotBackend interface {
	// Get retrieves the snapshot object, ErrSnapshotNotFound when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the snapshot object wholesale
	Put(ctx context.Context, key string, data []byte) error

	// Exists checks if the snapshot object is present
	Exists(ctx context.Context, key string) (bool, error)

	// Ping checks the backend is reachable and writable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// SnapshotConfig selects and configures a snapshot backend
type SnapshotConfig struct {
	Type            string // "filesystem", "s3", "gcs"
	Path            string // base directory (filesystem)
	Bucket          string // bucket name (s3, gcs)
	Region          string // AWS region (s3)
	CredentialsFile string // service account file (gcs, optional)
}

// Validate checks if the SnapshotConfig is usable
func (c SnapshotConfig) Validate() error {
	switch c.Type {
	case "filesystem":
		if c.Path == "" {
			return WithContext(ErrInvalidConfig, map[string]interface{}{
				"field":  "Path",
				"reason": "filesystem snapshot backend requires a base path",
			})
		}
	case "s3", "gcs":
		if c.Bucket == "" {
			return WithContext(ErrInvalidConfig, map[string]interface{}{
				"field":  "Bucket",
				"reason": c.Type + " snapshot backend requires a bucket",
			})
		}
	default:
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"value":  c.Type,
			"reason": "unknown snapshot backend type",
		})
	}
	return nil
}
