package shardann

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/shardann/blobstore"
	"github.com/hupe1980/shardann/blobstore/minio"
	"github.com/hupe1980/shardann/blobstore/s3"
	"github.com/hupe1980/shardann/config"
	"github.com/hupe1980/shardann/internal/resource"
)

// OpenMirror returns the artifact store selected by cfg, or nil when
// mirroring is disabled.
func OpenMirror(ctx context.Context, cfg config.MirrorConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return blobstore.NewLocalStore(cfg.Dir), nil
	case "s3":
		opts := []func(o *s3.Options){s3.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.Endpoint))
		}
		return s3.New(ctx, cfg.Bucket, opts...)
	case "minio":
		return minio.New(ctx, minio.Endpoint{
			Address:   cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Secure:    cfg.Secure,
			Region:    cfg.Region,
		}, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Backend)
	}
}

func mirror(ctx context.Context, cfg *config.Config, ctrl *resource.Controller, logger *Logger, files []string) error {
	store, err := OpenMirror(ctx, cfg.Mirror)
	if err != nil {
		return stageError("mirror", cfg.Mirror.Backend, err)
	}
	if store == nil {
		return nil
	}

	// The local store has no root prefix of its own.
	prefix := ""
	if cfg.Mirror.Backend == "local" {
		prefix = cfg.Mirror.Prefix
	}

	start := time.Now()
	names, err := blobstore.Mirror(ctx, store, files, blobstore.MirrorOptions{
		Prefix:     prefix,
		Controller: ctrl,
		Logger:     logger.Logger,
	})
	logger.LogStage(ctx, "mirror", start, err)
	if err != nil {
		return stageError("mirror", cfg.Mirror.Backend, err)
	}
	logger.Info("Mirrored artifacts", "backend", cfg.Mirror.Backend, "count", len(names))
	return nil
}
