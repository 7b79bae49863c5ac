// Package gallery lists and deletes the images held by a storage backend.
//
// The backend listing is the source of truth. A metadata catalog, when one
// is configured, adds the original upload name to each entry; records whose
// image has disappeared are pruned while listing.
package gallery

import (
	"context"
	"errors"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/kdsmith18542/clickfit/catalog"
	"github.com/kdsmith18542/clickfit/logging"
	"github.com/kdsmith18542/clickfit/observability"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/upload/storage"
)

// Delete outcomes reported to the observer.
const (
	OutcomeDeleted  = "deleted"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Image is one entry of the gallery listing.
type Image struct {
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Path         string    `json:"path"`
	OriginalName string    `json:"originalName,omitempty"`
}

// Catalog is the subset of *catalog.Catalog the gallery uses.
type Catalog interface {
	Put(rec catalog.Record) error
	Get(filename string) (catalog.Record, error)
	Delete(filename string) error
	List() ([]catalog.Record, error)
	Reconcile(present []string) ([]string, error)
}

// Service implements listing and deletion over a storage backend.
type Service struct {
	store     storage.Storage
	catalog   Catalog
	policy    upload.Policy
	publisher Publisher
	logger    *logging.Logger
}

// NewService creates a gallery service. cat may be nil.
func NewService(store storage.Storage, cat Catalog, policy upload.Policy, logger *logging.Logger) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		policy:  policy,
		logger:  logger,
	}
}

// SetPublisher routes change events to p.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// List returns every stored image with an allowed extension, newest first.
// Images with the same modification time are ordered by filename.
func (s *Service) List(ctx context.Context) ([]Image, error) {
	start := time.Now()

	// Snapshot the catalog before scanning so a record written by an upload
	// racing this call is never pruned.
	var records []catalog.Record
	if s.catalog != nil {
		var err error
		if records, err = s.catalog.List(); err != nil {
			s.logger.Warn("catalog unavailable, listing without metadata", "err", err)
			records = nil
		}
	}

	objects, err := s.store.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list stored images")
	}

	byName := make(map[string]catalog.Record, len(records))
	for _, rec := range records {
		byName[rec.Filename] = rec
	}

	present := make(map[string]struct{}, len(objects))
	images := make([]Image, 0, len(objects))
	for _, obj := range objects {
		present[obj.Name] = struct{}{}
		if !s.policy.AllowsName(obj.Name) {
			continue
		}
		img := Image{
			Filename:   obj.Name,
			Size:       obj.Size,
			UploadedAt: obj.ModTime,
			Path:       s.store.GetURL(obj.Name),
		}
		if rec, ok := byName[obj.Name]; ok {
			img.OriginalName = rec.OriginalName
		}
		images = append(images, img)
	}

	sort.Slice(images, func(i, j int) bool {
		if !images[i].UploadedAt.Equal(images[j].UploadedAt) {
			return images[i].UploadedAt.After(images[j].UploadedAt)
		}
		return images[i].Filename < images[j].Filename
	})

	for _, rec := range records {
		if _, ok := present[rec.Filename]; ok {
			continue
		}
		if err := s.catalog.Delete(rec.Filename); err != nil {
			s.logger.Warn("failed to prune catalog record", "file", rec.Filename, "err", err)
		}
	}

	observability.GetObserver().OnGalleryList(ctx, len(images), time.Since(start))
	return images, nil
}

// Delete removes the named image. It returns storage.ErrInvalidName for
// names that could leave the storage root and storage.ErrNotExist when the
// image is already gone.
func (s *Service) Delete(ctx context.Context, name string) error {
	obs := observability.GetObserver()

	if err := storage.ValidateName(name); err != nil {
		obs.OnImageDelete(ctx, name, OutcomeInvalid)
		return err
	}

	if err := s.store.Delete(ctx, name); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			obs.OnImageDelete(ctx, name, OutcomeInvalid)
		case errors.Is(err, storage.ErrNotExist):
			obs.OnImageDelete(ctx, name, OutcomeNotFound)
		default:
			obs.OnImageDelete(ctx, name, OutcomeError)
			return pkgerrors.Wrapf(err, "failed to delete %s", name)
		}
		return err
	}

	s.forget(name)
	obs.OnImageDelete(ctx, name, OutcomeDeleted)
	s.publish(EventDeleted, name)
	return nil
}

// Record stores catalog metadata for a fresh upload and announces it. It
// has the shape of an upload success hook.
func (s *Service) Record(ctx context.Context, result upload.Result) {
	if s.catalog != nil {
		rec := catalog.Record{
			Filename:     result.Filename,
			OriginalName: result.OriginalName,
			DeclaredType: result.DeclaredType,
			DetectedType: result.DetectedType,
			Size:         result.Size,
			Checksum:     result.Checksum,
			UploadedAt:   result.UploadedAt,
		}
		if err := s.catalog.Put(rec); err != nil {
			s.logger.Warn("failed to record upload metadata", "file", result.Filename, "err", err)
		}
	}
	s.publish(EventCreated, result.Filename)
}

// Metadata returns the catalog record for name.
func (s *Service) Metadata(name string) (catalog.Record, error) {
	if s.catalog == nil {
		return catalog.Record{}, catalog.ErrNotFound
	}
	return s.catalog.Get(name)
}

// Reconcile drops every catalog record whose image is no longer stored and
// returns the dropped names.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	if s.catalog == nil {
		return nil, nil
	}
	objects, err := s.store.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list stored images")
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	return s.catalog.Reconcile(names)
}

func (s *Service) forget(name string) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Delete(name); err != nil {
		s.logger.Warn("failed to remove catalog record", "file", name, "err", err)
	}
}

func (s *Service) publish(t EventType, name string) {
	if s.publisher != nil {
		s.publisher.Publish(Event{Type: t, Filename: name})
	}
}
