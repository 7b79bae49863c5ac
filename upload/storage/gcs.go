package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig holds configuration for the GCS storage backend.
type GCSConfig struct {
	Bucket          string // GCS bucket name (required)
	Prefix          string // Object prefix acting as the storage root
	CredentialsFile string // Service account JSON; application default credentials otherwise
	BaseURL         string // Custom base URL for public access
}

// GCSStorage stores images as objects in one bucket prefix.
type GCSStorage struct {
	client *storage.Client
	config GCSConfig
}

// NewGCS creates a GCS storage backend.
func NewGCS(ctx context.Context, config GCSConfig) (*GCSStorage, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, config: config}, nil
}

func (g *GCSStorage) object(name string) (*storage.ObjectHandle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return g.client.Bucket(g.config.Bucket).Object(joinKey(g.config.Prefix, name)), nil
}

// Store writes r to the object name.
func (g *GCSStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	obj, err := g.object(name)
	if err != nil {
		return "", err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("failed to write to GCS: %v, and failed to close writer: %w", err, closeErr)
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return name, nil
}

// Stat reads the object attributes.
func (g *GCSStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	obj, err := g.object(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, fmt.Errorf("failed to get object attributes: %w", err)
	}
	return ObjectInfo{Name: name, Size: attrs.Size, ModTime: attrs.Updated}, nil
}

// List iterates the objects directly under the prefix.
func (g *GCSStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	query := &storage.Query{Delimiter: "/"}
	if p := strings.Trim(g.config.Prefix, "/"); p != "" {
		query.Prefix = p + "/"
	}

	objects := []ObjectInfo{}
	it := g.client.Bucket(g.config.Bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		name, ok := flatName(g.config.Prefix, attrs.Name)
		if !ok {
			continue
		}
		objects = append(objects, ObjectInfo{Name: name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return objects, nil
}

// Open returns a reader over the object.
func (g *GCSStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := g.object(name)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to get object reader: %w", err)
	}
	return r, nil
}

// Delete removes the object.
func (g *GCSStorage) Delete(ctx context.Context, name string) error {
	obj, err := g.object(name)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// Exists reports whether the object is present.
func (g *GCSStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := g.Stat(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// GetURL returns the public URL of name.
func (g *GCSStorage) GetURL(name string) string {
	if g.config.BaseURL != "" {
		return publicURL(g.config.BaseURL, name)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.config.Bucket, joinKey(g.config.Prefix, name))
}

// Close closes the GCS client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
