package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdsmith18542/clickfit/observability"
)

type storageOp struct {
	op      string
	backend string
	success bool
}

type opRecorder struct {
	observability.NoopObserver
	mu  sync.Mutex
	ops []storageOp
}

func (r *opRecorder) OnStorageOperation(_ context.Context, op, backend string, _ time.Duration, success bool) {
	r.mu.Lock()
	r.ops = append(r.ops, storageOp{op, backend, success})
	r.mu.Unlock()
}

func TestObservableStorage_ReportsOperations(t *testing.T) {
	rec := &opRecorder{}
	observability.SetObserver(rec)
	t.Cleanup(func() { observability.SetObserver(nil) })

	ctx := context.Background()
	store := NewObservableStorage(NewMockStorage(), "mock")

	_, err := store.Store(ctx, "a.png", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.List(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, store.Delete(ctx, "missing.png"), ErrNotExist)
	_, err = store.Store(ctx, "../a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.Equal(t, []storageOp{
		{"store", "mock", true},
		{"list", "mock", true},
		{"delete", "mock", true},
		{"store", "mock", false},
	}, rec.ops)

	assert.Equal(t, "/uploads/a.png", store.GetURL("a.png"))
	assert.IsType(t, &MockStorage{}, store.Unwrap())
}
