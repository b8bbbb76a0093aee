package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileDestination writes snapshots to a local directory. Each write replaces
// the file atomically so readers never see a partial snapshot.
type FileDestination struct {
	dir  string
	name string
}

// NewFileDestination returns a destination writing dir/name, where name
// follows the same "{date}" template as S3 keys.
func NewFileDestination(dir, name string) *FileDestination {
	return &FileDestination{dir: dir, name: name}
}

func (d *FileDestination) Write(_ context.Context, at time.Time, data []byte) error {
	path := filepath.Join(d.dir, objectKey(d.name, at))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename backup: %w", err)
	}
	return nil
}
