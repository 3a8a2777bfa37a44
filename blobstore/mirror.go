package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/shardann/internal/resource"
)

// MirrorOptions configures Mirror and Fetch.
type MirrorOptions struct {
	// Prefix is prepended to every blob name.
	Prefix string

	// Controller throttles the transferred bytes. Nil means unlimited.
	Controller *resource.Controller

	Logger *slog.Logger
}

func (o MirrorOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Mirror uploads each local file as Prefix + its base name. Missing files
// are skipped with a warning. It returns the names written.
func Mirror(ctx context.Context, store BlobStore, files []string, opts MirrorOptions) ([]string, error) {
	logger := opts.logger()

	var names []string
	for _, path := range files {
		name := opts.Prefix + filepath.Base(path)
		n, err := upload(ctx, store, path, name, opts.Controller)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("Artifact missing, not mirrored", "path", path)
				continue
			}
			return names, fmt.Errorf("blobstore: mirror %s: %w", path, err)
		}
		logger.Info("Mirrored artifact", "path", path, "blob", name, "bytes", n)
		names = append(names, name)
	}
	return names, nil
}

// FileUploader is implemented by stores that can upload a local file
// directly. Mirror uses it when no IO limit is configured.
type FileUploader interface {
	Upload(ctx context.Context, name, path string) (int64, error)
}

func upload(ctx context.Context, store BlobStore, path, name string, ctrl *resource.Controller) (int64, error) {
	if u, ok := store.(FileUploader); ok && !ctrl.IOLimited() {
		if _, err := os.Stat(path); err != nil {
			return 0, err
		}
		return u.Upload(ctx, name, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, resource.NewRateLimitedReader(ctx, f, ctrl))
	if err != nil {
		_ = w.Close()
		return n, err
	}
	return n, w.Close()
}

// Fetch downloads Prefix + name into the local path.
func Fetch(ctx context.Context, store BlobStore, name, path string, opts MirrorOptions) error {
	start := time.Now()

	blob, err := store.Open(ctx, opts.Prefix+name)
	if err != nil {
		return err
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resource.NewRateLimitedReader(ctx, r, opts.Controller))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("blobstore: fetch %s: %w", name, err)
	}

	opts.logger().Info("Fetched artifact", "blob", opts.Prefix+name, "path", path, "bytes", n, "took", time.Since(start))
	return nil
}
