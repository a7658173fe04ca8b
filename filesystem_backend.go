package occasync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemSnapshotBackend stores the snapshot as a file under a base
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a truncated snapshot behind.
type FilesystemSnapshotBackend struct {
	basePath string
}

// NewFilesystemSnapshotBackend creates a filesystem snapshot backend
func NewFilesystemSnapshotBackend(basePath string) *FilesystemSnapshotBackend {
	return &FilesystemSnapshotBackend{basePath: basePath}
}

func (b *FilesystemSnapshotBackend) getPath(key string) string {
	return filepath.Join(b.basePath, key)
}

func (b *FilesystemSnapshotBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.getPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *FilesystemSnapshotBackend) Put(ctx context.Context, key string, data []byte) error {
	path := b.getPath(key)
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, DefaultFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (b *FilesystemSnapshotBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.getPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *FilesystemSnapshotBackend) Ping(ctx context.Context) error {
	if err := os.MkdirAll(b.basePath, DefaultDirPermissions); err != nil {
		return err
	}

	// Verify write access with a scratch file
	testFile := filepath.Join(b.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), DefaultFilePermissions); err != nil {
		return fmt.Errorf("cannot write to base path: %w", err)
	}
	os.Remove(testFile)

	return nil
}

func (b *FilesystemSnapshotBackend) Close() error {
	return nil
}
