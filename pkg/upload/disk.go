package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// DiskStore stores uploads on the local filesystem.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates a new DiskStore.
//
// Parameters:
//   - dir: Directory to store uploads. Created on first Save.
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewDiskStore(dir string, maxSize int64) *DiskStore {
	return &DiskStore{dir: dir, maxSize: maxSize}
}

// Dir returns the upload directory.
func (s *DiskStore) Dir() string { return s.dir }

// Save writes the file under the upload directory. An existing file with
// the same name is overwritten.
func (s *DiskStore) Save(ctx context.Context, filename string, r io.Reader) (*SavedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	written, err := copyLimited(f, r, s.maxSize)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &SavedFile{
		Filename: filename,
		Size:     written,
		Path:     path,
	}, nil
}

var _ Store = (*DiskStore)(nil)
