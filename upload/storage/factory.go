package storage

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/kdsmith18542/clickfit/config"
)

// New builds the backend selected by cfg.StorageBackend, wrapped with
// observability.
func New(ctx context.Context, cfg *config.Config) (*ObservableStorage, error) {
	var (
		backend Storage
		err     error
	)

	switch cfg.StorageBackend {
	case "local":
		var root string
		root, err = cfg.AbsUploadDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
		}
		backend, err = NewLocal(afero.NewOsFs(), root, cfg.PublicPrefix)
	case "s3":
		backend, err = NewS3(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
	case "gcs":
		backend, err = NewGCS(ctx, GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
		})
	case "azure":
		backend, err = NewAzureBlob(AzureConfig{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  cfg.Azure.AccountKey,
			Container:   cfg.Azure.Container,
			Prefix:      cfg.Azure.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.StorageBackend, err)
	}

	return NewObservableStorage(backend, cfg.StorageBackend), nil
}
