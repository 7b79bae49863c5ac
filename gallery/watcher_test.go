package gallery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdsmith18542/clickfit/catalog"
	"github.com/kdsmith18542/clickfit/logging"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/upload/storage"
)

func hasEvent(pub *recordingPublisher, want Event) func() bool {
	return func() bool {
		for _, ev := range pub.snapshot() {
			if ev.Type == want.Type && ev.Filename == want.Filename {
				return true
			}
		}
		return false
	}
}

func TestWatcher_ReportsOutOfBandChanges(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	store, err := storage.NewLocal(afero.NewOsFs(), dir, "/uploads")
	require.NoError(t, err)
	cat, err := catalog.Open("")
	require.NoError(t, err)
	defer cat.Close()

	svc := NewService(store, cat, upload.DefaultPolicy(), logging.NewTestLogger())
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)

	w, err := NewWatcher(dir, svc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "dropped.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))
	require.Eventually(t, hasEvent(pub, Event{Type: EventCreated, Filename: "dropped.png"}), 3*time.Second, 20*time.Millisecond)

	require.NoError(t, cat.Put(catalog.Record{Filename: "dropped.png", OriginalName: "x.png"}))
	require.NoError(t, os.Remove(path))
	require.Eventually(t, hasEvent(pub, Event{Type: EventDeleted, Filename: "dropped.png"}), 3*time.Second, 20*time.Millisecond)

	_, err = cat.Get("dropped.png")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	for _, ev := range pub.snapshot() {
		assert.NotEqual(t, "readme.txt", ev.Filename)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcher_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	svc := NewService(storage.NewMockStorage(), nil, upload.DefaultPolicy(), logging.NewTestLogger())

	w, err := NewWatcher(dir, svc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
