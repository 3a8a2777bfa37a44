package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardann/internal/resource"
)

func stores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestBlobStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := store.Open(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, store.Put(ctx, "run/out.searches", []byte("hello shard world")))

			w, err := store.Create(ctx, "run/out.routes")
			require.NoError(t, err)
			_, err = w.Write([]byte("1\nR\n"))
			require.NoError(t, err)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			blob, err := store.Open(ctx, "run/out.searches")
			require.NoError(t, err)
			assert.Equal(t, int64(17), blob.Size())

			buf := make([]byte, 5)
			n, err := blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "shard", string(buf))

			rc, err := blob.ReadRange(ctx, 12, 100)
			require.NoError(t, err)
			tail, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "world", string(tail))
			require.NoError(t, blob.Close())

			names, err := store.List(ctx, "run/")
			require.NoError(t, err)
			assert.Equal(t, []string{"run/out.routes", "run/out.searches"}, names)

			require.NoError(t, store.Delete(ctx, "run/out.routes"))
			require.NoError(t, store.Delete(ctx, "run/out.routes"))
			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"run/out.searches"}, names)
		})
	}
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMirrorAndFetch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "out.dat")
	b := filepath.Join(dir, "out.metis")
	require.NoError(t, os.WriteFile(a, []byte("partition bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("0\n1\n"), 0o644))

	store := NewMemoryStore()
	opts := MirrorOptions{
		Prefix:     "exp1/",
		Controller: resource.NewController(resource.Config{Workers: 1, IOLimitBytesPerSec: 1 << 20}),
	}

	names, err := Mirror(t.Context(), store, []string{a, b, filepath.Join(dir, "absent")}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp1/out.dat", "exp1/out.metis"}, names)

	dst := filepath.Join(t.TempDir(), "copy.dat")
	require.NoError(t, Fetch(t.Context(), store, "out.dat", dst, opts))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "partition bytes", string(got))

	err = Fetch(t.Context(), store, "nope", dst, opts)
	assert.True(t, errors.Is(err, ErrNotFound))
}

type uploadingStore struct {
	*MemoryStore
	uploads []string
}

func (s *uploadingStore) Upload(ctx context.Context, name, path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s.uploads = append(s.uploads, name)
	return int64(len(data)), s.Put(ctx, name, data)
}

func TestMirrorPrefersFileUploader(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "out.dat")
	require.NoError(t, os.WriteFile(a, []byte("abc"), 0o644))

	store := &uploadingStore{MemoryStore: NewMemoryStore()}
	names, err := Mirror(t.Context(), store, []string{a, filepath.Join(dir, "absent")}, MirrorOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"out.dat"}, names)
	assert.Equal(t, []string{"out.dat"}, store.uploads)

	// an IO limit forces the throttled streaming path
	limited := &uploadingStore{MemoryStore: NewMemoryStore()}
	_, err = Mirror(t.Context(), limited, []string{a}, MirrorOptions{
		Controller: resource.NewController(resource.Config{Workers: 1, IOLimitBytesPerSec: 1 << 20}),
	})
	require.NoError(t, err)
	assert.Empty(t, limited.uploads)
	names, err = limited.List(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"out.dat"}, names)
}
