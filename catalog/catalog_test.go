package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func record(name string) Record {
	return Record{
		Filename:     name,
		OriginalName: "holiday.png",
		DeclaredType: "image/png",
		DetectedType: "image/png",
		Size:         42,
		Checksum:     "abc",
		UploadedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPutGetDelete(t *testing.T) {
	c := openMem(t)

	require.NoError(t, c.Put(record("image-1-1.png")))
	got, err := c.Get("image-1-1.png")
	require.NoError(t, err)
	assert.Equal(t, record("image-1-1.png"), got)

	require.NoError(t, c.Delete("image-1-1.png"))
	_, err = c.Get("image-1-1.png")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, c.Delete("image-1-1.png"))
}

func TestPutRequiresFilename(t *testing.T) {
	c := openMem(t)
	assert.Error(t, c.Put(Record{}))
}

func TestListOrdered(t *testing.T) {
	c := openMem(t)
	for _, name := range []string{"c.png", "a.png", "b.png"} {
		require.NoError(t, c.Put(record(name)))
	}

	records, err := c.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a.png", records[0].Filename)
	assert.Equal(t, "c.png", records[2].Filename)
}

func TestReconcile(t *testing.T) {
	c := openMem(t)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, c.Put(record(name)))
	}

	removed, err := c.Reconcile([]string{"b.png", "z.png"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.png", "c.png"}, removed)

	records, err := c.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b.png", records[0].Filename)

	removed, err = c.Reconcile([]string{"b.png"})
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPersistsOnDisk(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(record("a.png")))
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()
	got, err := c.Get("a.png")
	require.NoError(t, err)
	assert.Equal(t, "holiday.png", got.OriginalName)
}
