package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, "/uploads", cfg.PublicPrefix)
	assert.Equal(t, "local", cfg.StorageBackend)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/gif", "image/webp"}, cfg.MIMETypes())
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}, cfg.Extensions())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("ALLOWED_EXTENSIONS", "PNG,jpg")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{".png", ".jpg"}, cfg.Extensions())
}

func TestLoadDotenvAndYAML(t *testing.T) {
	dir := t.TempDir()

	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("CLICKFIT_TEST_UNUSED=1\nMAX_FILES=3\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("CLICKFIT_TEST_UNUSED")
		os.Unsetenv("MAX_FILES")
	})

	file := filepath.Join(dir, "clickfit.yaml")
	require.NoError(t, os.WriteFile(file, []byte("uploadDir: /srv/images\ncorsOrigin: https://example.com\n"), 0o644))

	cfg, err := Load(dotenv, file)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxFiles)
	assert.Equal(t, "/srv/images", cfg.UploadDir)
	assert.Equal(t, "https://example.com", cfg.CORSOrigin)
}

func TestLoadMissingDotenvIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	assert.NoError(t, err)
}

func TestLoadMissingYAMLFails(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("", "")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.StorageBackend = "s3"
	assert.ErrorContains(t, cfg.Validate(), "S3_BUCKET")

	cfg = base()
	cfg.StorageBackend = "ftp"
	assert.ErrorContains(t, cfg.Validate(), "unknown storage backend")

	cfg = base()
	cfg.MaxFileSize = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.PublicPrefix = "uploads"
	assert.Error(t, cfg.Validate())
}
