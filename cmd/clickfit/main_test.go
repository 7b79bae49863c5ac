package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdsmith18542/clickfit/catalog"
	"github.com/kdsmith18542/clickfit/upload/uploadtest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// setupEnv points every store at a fresh temp dir and returns the upload
// directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))

	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("UPLOAD_DIR", uploads)
	t.Setenv("CATALOG_DIR", filepath.Join(dir, "catalog"))
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", filepath.Join(dir, "db", "clickfit.db"))
	t.Setenv("LOG_LEVEL", "error")
	return uploads
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "images", "users", "messages", "version"})
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "clickfit dev\n", out)
}

func TestImages_ListAndDelete(t *testing.T) {
	uploads := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "image-1-1.png"), uploadtest.PNG, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "notes.txt"), []byte("x"), 0o644))

	out, err := run(t, "images", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "FILENAME")
	assert.Contains(t, out, "image-1-1.png")
	assert.NotContains(t, out, "notes.txt")

	out, err = run(t, "images", "delete", "image-1-1.png")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted image-1-1.png")
	assert.NoFileExists(t, filepath.Join(uploads, "image-1-1.png"))

	_, err = run(t, "images", "delete", "image-1-1.png")
	assert.Error(t, err)
	_, err = run(t, "images", "delete", "../secret.png")
	assert.Error(t, err)
}

func TestImages_Reconcile(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "images", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "0 stale record(s) removed")
}

func TestImages_CatalogHeldByServer(t *testing.T) {
	uploads := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "image-2-2.png"), uploadtest.PNG, 0o644))

	held, err := catalog.Open(os.Getenv("CATALOG_DIR"))
	require.NoError(t, err)
	defer held.Close()

	out, err := run(t, "images", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "image-2-2.png")

	out, err = run(t, "images", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "0 stale record(s) removed")

	out, err = run(t, "images", "delete", "image-2-2.png")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted image-2-2.png")
	assert.NoFileExists(t, filepath.Join(uploads, "image-2-2.png"))
}

func TestImages_BadConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("STORAGE_BACKEND", "ftp")
	_, err := run(t, "images", "list")
	assert.Error(t, err)
}

func TestUsers_CreateAndList(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "users", "create", "--email", "ana@example.com", "--password", "secret1", "--type", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "created user 1")

	_, err = run(t, "users", "create", "--email", "ana@example.com", "--password", "secret1")
	assert.Error(t, err)
	_, err = run(t, "users", "create", "--email", "bo@example.com", "--password", "123")
	assert.Error(t, err)

	out, err = run(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com")
	assert.Contains(t, out, "admin")
}

func TestMessagesCheck(t *testing.T) {
	out, err := run(t, "messages", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "en: complete")
	assert.Contains(t, out, "es: complete")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.toml"), []byte("[a]\nx = \"1\"\ny = \"2\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.toml"), []byte("[a]\nx = \"uno\"\n"), 0o644))
	out, err = run(t, "messages", "check", "--dir", dir)
	assert.Error(t, err)
	assert.Contains(t, out, "es is missing 1 keys")
	assert.Contains(t, out, "  - a.y")

	_, err = run(t, "messages", "check", "--dir", t.TempDir())
	assert.Error(t, err)
}
