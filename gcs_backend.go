package occasync

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSnapshotBackend stores the snapshot in a Google Cloud Storage bucket
type GCSSnapshotBackend struct {
	client *storage.Client
	bucket string
}

// NewGCSSnapshotBackend creates a GCS snapshot backend. With no credentials
// file it uses Application Default Credentials.
func NewGCSSnapshotBackend(ctx context.Context, cfg SnapshotConfig) (*GCSSnapshotBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSSnapshotBackend{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (b *GCSSnapshotBackend) Get(ctx context.Context, key string) ([]byte, error) {
	obj := b.client.Bucket(b.bucket).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (b *GCSSnapshotBackend) Put(ctx context.Context, key string, data []byte) error {
	obj := b.client.Bucket(b.bucket).Object(key)
	writer := obj.NewWriter(ctx)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}

	return writer.Close()
}

func (b *GCSSnapshotBackend) Exists(ctx context.Context, key string) (bool, error) {
	obj := b.client.Bucket(b.bucket).Object(key)
	_, err := obj.Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *GCSSnapshotBackend) Ping(ctx context.Context) error {
	_, err := b.client.Bucket(b.bucket).Attrs(ctx)
	return err
}

func (b *GCSSnapshotBackend) Close() error {
	return b.client.Close()
}
