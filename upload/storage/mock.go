package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type mockObject struct {
	data    []byte
	modTime time.Time
}

// MockStorage is an in-memory Storage for tests.
type MockStorage struct {
	mu    sync.RWMutex
	files map[string]mockObject

	// Now stamps stored objects; defaults to time.Now.
	Now func() time.Time
	// StoreErr, when set, is returned by every Store call.
	StoreErr error
	// ListErr, when set, is returned by every List call.
	ListErr error
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{files: make(map[string]mockObject), Now: time.Now}
}

func (m *MockStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if m.StoreErr != nil {
		return "", m.StoreErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.files[name] = mockObject{data: data, modTime: m.Now()}
	m.mu.Unlock()
	return name, nil
}

// Put adds an object with an explicit modification time.
func (m *MockStorage) Put(name string, data []byte, modTime time.Time) {
	m.mu.Lock()
	m.files[name] = mockObject{data: data, modTime: modTime}
	m.mu.Unlock()
}

func (m *MockStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	if err := ValidateName(name); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.files[name]
	if !ok {
		return ObjectInfo{}, ErrNotExist
	}
	return ObjectInfo{Name: name, Size: int64(len(obj.data)), ModTime: obj.modTime}, nil
}

func (m *MockStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ObjectInfo, 0, len(m.files))
	for name, obj := range m.files {
		out = append(out, ObjectInfo{Name: name, Size: int64(len(obj.data)), ModTime: obj.modTime})
	}
	return out, nil
}

func (m *MockStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.files[name]
	if !ok {
		return nil, ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MockStorage) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return ErrNotExist
	}
	delete(m.files, name)
	return nil
}

func (m *MockStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *MockStorage) GetURL(name string) string {
	return "/uploads/" + name
}

// Len returns the number of stored objects.
func (m *MockStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *MockStorage) Close() error {
	m.mu.Lock()
	m.files = make(map[string]mockObject)
	m.mu.Unlock()
	return nil
}
