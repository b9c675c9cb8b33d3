package blobstore

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/retrainer/internal/config"
)

// New constructs the Bucket selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Bucket, error) {
	switch cfg.Backend {
	case "azure":
		b, err := NewAzureBucket(AzureConfig{
			Account:    cfg.Account,
			Key:        cfg.Key,
			Container:  cfg.Container,
			ServiceURL: cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "minio":
		b, err := NewMinIOBucket(MinIOConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.Account,
			SecretKey: cfg.Key,
			Bucket:    cfg.Container,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return NewMemoryBucket(cfg.Container), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}
