// Package upload provides storage backends for the upload endpoint.
//
// The engine hands a backend the sanitized filename and the file stream;
// the backend decides where the bytes land. DiskStore writes under a local
// directory, S3Store writes to an AWS S3 bucket.
package upload

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge is returned when a file exceeds the store's size limit.
var ErrTooLarge = errors.New("upload: file too large")

// SavedFile describes where an upload ended up.
type SavedFile struct {
	// Filename is the name the file was stored under.
	Filename string

	// Size is the number of bytes written.
	Size int64

	// Path is the storage location: a filesystem path for DiskStore,
	// an s3:// URI for S3Store.
	Path string
}

// Store is the interface for upload storage backends.
// Implement this interface to use GCS or other storage.
type Store interface {
	// Save stores the file contents under filename and reports where
	// the bytes landed. The filename has already been sanitized to a
	// bare name with no directory components.
	Save(ctx context.Context, filename string, r io.Reader) (*SavedFile, error)
}

// copyLimited copies r to w, enforcing max bytes when max > 0.
func copyLimited(w io.Writer, r io.Reader, max int64) (int64, error) {
	if max <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, max+1)) // +1 to detect overflow
	if err != nil {
		return n, err
	}
	if n > max {
		return n, ErrTooLarge
	}
	return n, nil
}
