package objectstore

import (
	"context"
	"fmt"

	"ragforge/internal/config"
)

// Build selects an ObjectStore backend per cfg.Backend ("disk" or "s3").
func Build(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "disk":
		return NewDiskStore(cfg.StorageRoot)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}
