package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kdsmith18542/clickfit/observability"
)

// ObservableStorage wraps a Storage implementation with observability
type ObservableStorage struct {
	storage     Storage
	storageType string
}

// NewObservableStorage creates a new observable storage wrapper
func NewObservableStorage(storage Storage, storageType string) *ObservableStorage {
	return &ObservableStorage{
		storage:     storage,
		storageType: storageType,
	}
}

// Unwrap returns the wrapped backend.
func (o *ObservableStorage) Unwrap() Storage {
	return o.storage
}

func (o *ObservableStorage) record(ctx context.Context, op string, start time.Time, err error) {
	// A missing object is an answer, not a failed operation.
	ok := err == nil || errors.Is(err, ErrNotExist)
	observability.GetObserver().OnStorageOperation(ctx, op, o.storageType, time.Since(start), ok)
}

func (o *ObservableStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	start := time.Now()
	stored, err := o.storage.Store(ctx, name, r)
	o.record(ctx, "store", start, err)
	return stored, err
}

func (o *ObservableStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	start := time.Now()
	info, err := o.storage.Stat(ctx, name)
	o.record(ctx, "stat", start, err)
	return info, err
}

func (o *ObservableStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	start := time.Now()
	objects, err := o.storage.List(ctx)
	o.record(ctx, "list", start, err)
	return objects, err
}

func (o *ObservableStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := o.storage.Open(ctx, name)
	o.record(ctx, "open", start, err)
	return rc, err
}

func (o *ObservableStorage) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := o.storage.Delete(ctx, name)
	o.record(ctx, "delete", start, err)
	return err
}

func (o *ObservableStorage) Exists(ctx context.Context, name string) (bool, error) {
	start := time.Now()
	ok, err := o.storage.Exists(ctx, name)
	o.record(ctx, "exists", start, err)
	return ok, err
}

func (o *ObservableStorage) GetURL(name string) string {
	return o.storage.GetURL(name)
}

func (o *ObservableStorage) Close() error {
	start := time.Now()
	err := o.storage.Close()
	o.record(context.Background(), "close", start, err)
	return err
}
