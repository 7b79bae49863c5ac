// Package storage provides the object stores that hold uploaded images.
//
// Every backend maps a logical image name onto an object inside one flat
// root (a directory, a bucket prefix, a container prefix). Names are
// validated before any backend call so no operation can address an object
// outside that root.
//
// Supported backends:
//   - Local: a directory on disk, through an afero filesystem
//   - S3: Amazon S3 or any S3-compatible endpoint
//   - GCS: Google Cloud Storage
//   - Azure: Azure Blob Storage
//   - Mock: in-memory storage for tests
//
// Example:
//
//	store, err := storage.NewLocal(afero.NewOsFs(), "./upload_images", "/uploads")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotExist is returned when the named object is not in the store.
	ErrNotExist = errors.New("storage: object does not exist")
	// ErrInvalidName is returned for names that could address something
	// outside the storage root.
	ErrInvalidName = errors.New("storage: invalid object name")
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines the operations every backend provides.
type Storage interface {
	// Store writes the content of r under name and returns the name it was
	// stored under.
	Store(ctx context.Context, name string, r io.Reader) (string, error)

	// Stat returns metadata for name, or ErrNotExist.
	Stat(ctx context.Context, name string) (ObjectInfo, error)

	// List returns every object directly under the root. A root that does
	// not exist yet yields an empty slice.
	List(ctx context.Context) ([]ObjectInfo, error)

	// Open returns a reader for name. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes name, returning ErrNotExist when it is absent.
	Delete(ctx context.Context, name string) error

	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// GetURL returns the public path or URL for name.
	GetURL(name string) string

	// Close releases backend resources.
	Close() error
}

// ValidateName rejects empty names, names with path separators, parent
// references, NUL or control characters.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return ErrInvalidName
		}
	}
	return nil
}

// joinKey prefixes name with a bucket prefix.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// flatName reports the object name for key under prefix, and false when
// key is nested deeper than the prefix.
func flatName(prefix, key string) (string, bool) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		if !strings.HasPrefix(key, prefix+"/") {
			return "", false
		}
		key = strings.TrimPrefix(key, prefix+"/")
	}
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// publicURL joins a base URL or path prefix with name.
func publicURL(base, name string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + name
}
