package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGCSRequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), GCSConfig{})
	assert.Error(t, err)
}

func TestGCSStorage_GetURL(t *testing.T) {
	g := &GCSStorage{config: GCSConfig{Bucket: "clickfit", Prefix: "images/"}}
	assert.Equal(t, "https://storage.googleapis.com/clickfit/images/a.png", g.GetURL("a.png"))

	g.config.BaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/a.png", g.GetURL("a.png"))
}

func TestNewAzureBlob(t *testing.T) {
	_, err := NewAzureBlob(AzureConfig{AccountName: "acct"})
	assert.Error(t, err)

	store, err := NewAzureBlob(AzureConfig{
		AccountName: "acct",
		AccountKey:  "dGVzdGtleQ==",
		Container:   "images",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/images/a.png", store.GetURL("a.png"))
	assert.NoError(t, store.Close())
}

func TestFlatName(t *testing.T) {
	cases := []struct {
		prefix, key, want string
		ok                bool
	}{
		{"", "a.png", "a.png", true},
		{"", "dir/a.png", "", false},
		{"images", "images/a.png", "a.png", true},
		{"images/", "images/a.png", "a.png", true},
		{"images", "images/deep/a.png", "", false},
		{"images", "other/a.png", "", false},
		{"images", "images/", "", false},
	}
	for _, tc := range cases {
		got, ok := flatName(tc.prefix, tc.key)
		assert.Equal(t, tc.ok, ok, "%s %s", tc.prefix, tc.key)
		assert.Equal(t, tc.want, got, "%s %s", tc.prefix, tc.key)
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("image-1700000000000-42.png"))
	for _, bad := range []string{"", ".", "..", "../a", "a/b", `a\b`, "a\x00b", "a\nb"} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, "%q", bad)
	}
}
