package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig holds configuration for the Azure Blob Storage backend.
type AzureConfig struct {
	AccountName string // Azure storage account name (required)
	AccountKey  string // Azure storage account key (required)
	Container   string // Blob container name (required)
	Prefix      string // Blob name prefix acting as the storage root
	BaseURL     string // Custom base URL for public access
}

// AzureBlobStorage stores images as blobs in one container prefix.
type AzureBlobStorage struct {
	client *azblob.Client
	config AzureConfig
}

// NewAzureBlob creates an Azure Blob storage backend using a shared key.
func NewAzureBlob(config AzureConfig) (*AzureBlobStorage, error) {
	if config.AccountName == "" || config.AccountKey == "" || config.Container == "" {
		return nil, fmt.Errorf("account name, account key, and container are required")
	}
	cred, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", config.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &AzureBlobStorage{client: client, config: config}, nil
}

func (a *AzureBlobStorage) blobName(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return joinKey(a.config.Prefix, name), nil
}

// Store uploads r as a block blob.
func (a *AzureBlobStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	key, err := a.blobName(name)
	if err != nil {
		return "", err
	}
	opts := &azblob.UploadStreamOptions{}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &ct}
	}
	if _, err := a.client.UploadStream(ctx, a.config.Container, key, r, opts); err != nil {
		return "", fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}
	return name, nil
}

// Stat reads the blob properties.
func (a *AzureBlobStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	key, err := a.blobName(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	blobClient := a.client.ServiceClient().NewContainerClient(a.config.Container).NewBlobClient(key)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, fmt.Errorf("failed to get blob properties: %w", err)
	}
	info := ObjectInfo{Name: name}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.ModTime = *props.LastModified
	}
	return info, nil
}

// List pages through the blobs directly under the prefix.
func (a *AzureBlobStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if p := strings.Trim(a.config.Prefix, "/"); p != "" {
		prefix := p + "/"
		opts.Prefix = &prefix
	}

	objects := []ObjectInfo{}
	pager := a.client.NewListBlobsFlatPager(a.config.Container, opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return []ObjectInfo{}, nil
			}
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name, ok := flatName(a.config.Prefix, *item.Name)
			if !ok {
				continue
			}
			info := ObjectInfo{Name: name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					info.ModTime = *item.Properties.LastModified
				}
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// Open downloads the blob as a stream.
func (a *AzureBlobStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := a.blobName(name)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, a.config.Container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the blob.
func (a *AzureBlobStorage) Delete(ctx context.Context, name string) error {
	key, err := a.blobName(name)
	if err != nil {
		return err
	}
	if _, err := a.client.DeleteBlob(ctx, a.config.Container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotExist
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists reports whether the blob is present.
func (a *AzureBlobStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := a.Stat(ctx, name)
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
func (a *AzureBlobStorage) GetURL(name string) string {
	if a.config.BaseURL != "" {
		return publicURL(a.config.BaseURL, name)
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", a.config.AccountName, a.config.Container, joinKey(a.config.Prefix, name))
}

// Close is a no-op for the Azure SDK client.
func (a *AzureBlobStorage) Close() error {
	return nil
}
