package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalStorage keeps images as regular files in a single directory of an
// afero filesystem. Production uses afero.NewOsFs; tests use a MemMapFs.
type LocalStorage struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewLocal creates a LocalStorage rooted at root. The directory is created
// lazily on the first Store. baseURL is the public prefix, e.g. "/uploads".
func NewLocal(fs afero.Fs, root, baseURL string) (*LocalStorage, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}
	return &LocalStorage{
		fs:      fs,
		root:    filepath.Clean(root),
		baseURL: baseURL,
	}, nil
}

// Root returns the directory that holds the images.
func (l *LocalStorage) Root() string {
	return l.root
}

// resolve maps name to a path inside the root or returns ErrInvalidName.
func (l *LocalStorage) resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	full := filepath.Join(l.root, name)
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidName
	}
	return full, nil
}

// regular lstats full and reports ErrNotExist for anything but a regular
// file, symlinks included.
func (l *LocalStorage) regular(full, name string) (os.FileInfo, error) {
	var (
		fi  os.FileInfo
		err error
	)
	if lst, ok := l.fs.(afero.Lstater); ok {
		fi, _, err = lst.LstatIfPossible(full)
	} else {
		fi, err = l.fs.Stat(full)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, ErrNotExist
	}
	return fi, nil
}

// Store writes r to the root under name. A partial file is removed when the
// copy fails.
func (l *LocalStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader cannot be nil")
	}
	full, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := l.fs.MkdirAll(l.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage root: %w", err)
	}

	if lst, ok := l.fs.(afero.Lstater); ok {
		if fi, _, err := lst.LstatIfPossible(full); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("refusing to write to symlink %s: %w", name, ErrInvalidName)
		}
	}

	f, err := l.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = l.fs.Remove(full)
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = l.fs.Remove(full)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return name, nil
}

// Stat returns size and modification time for name.
func (l *LocalStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	full, err := l.resolve(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := l.regular(full, name)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// List returns the regular files directly under the root. Subdirectories
// and other entries are skipped.
func (l *LocalStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ObjectInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, fi := range entries {
		if !fi.Mode().IsRegular() {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    fi.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return objects, nil
}

// Open returns the file for reading. Symlinks are not followed.
func (l *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	full, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	if _, err := l.regular(full, name); err != nil {
		return nil, err
	}
	f, err := l.fs.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Delete removes name from the root.
func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	full, err := l.resolve(name)
	if err != nil {
		return err
	}
	if _, err := l.regular(full, name); err != nil {
		return err
	}
	if err := l.fs.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is a regular file under the root.
func (l *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := l.Stat(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// GetURL returns baseURL/name.
func (l *LocalStorage) GetURL(name string) string {
	return publicURL(l.baseURL, name)
}

// Close is a no-op for local storage.
func (l *LocalStorage) Close() error {
	return nil
}
