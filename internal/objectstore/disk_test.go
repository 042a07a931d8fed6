package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskStore_PutGetDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "tenant-1/doc-1.pdf"
	etag, err := store.Put(ctx, key, strings.NewReader("pdf-bytes"), PutOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	rc, attrs, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "pdf-bytes", string(data))
	require.Equal(t, int64(len("pdf-bytes")), attrs.Size)

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiskStore_GetMissingReturnsNotFound(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "tenant-1/missing.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.pdf", strings.NewReader("x"), PutOptions{})
	require.ErrorIs(t, err, ErrInvalidKey)
}
