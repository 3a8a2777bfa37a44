package minio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/blobstore"
)

// TestStore_Integration requires a MinIO server; set MINIO_ENDPOINT
// (e.g. localhost:9000) to run it.
func TestStore_Integration(t *testing.T) {
	addr := os.Getenv("MINIO_ENDPOINT")
	if addr == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := New(ctx, Endpoint{
		Address:   addr,
		AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
	}, "test-shardann", "it/")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.searches")
	require.NoError(t, os.WriteFile(path, []byte("1\nS\n50 1 1\n3 4\n0.5\n"), 0o644))

	names, err := blobstore.Mirror(ctx, store, []string{path}, blobstore.MirrorOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"out.searches"}, names)

	blob, err := store.Open(ctx, "out.searches")
	require.NoError(t, err)
	assert.Equal(t, int64(19), blob.Size())

	rc, err := blob.ReadRange(ctx, 2, 1)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "S", string(part))
	require.NoError(t, blob.Close())

	listed, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, listed, "out.searches")

	require.NoError(t, store.Delete(ctx, "out.searches"))
	_, err = store.Open(ctx, "out.searches")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
