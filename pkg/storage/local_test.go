package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ourstore/storefront/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutGetDelete(t *testing.T) {
	ctx := context.Background()
	d := storage.NewLocal(t.TempDir(), "http://cdn.test/storage/")

	require.NoError(t, d.Put(ctx, "products/p1/a.jpg", strings.NewReader("jpeg"), "image/jpeg"))

	ok, err := d.Exists(ctx, "products/p1/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := d.Get(ctx, "products/p1/a.jpg")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg", string(body))

	assert.Equal(t, "http://cdn.test/storage/products/p1/a.jpg", d.URL("products/p1/a.jpg"))

	require.NoError(t, d.Delete(ctx, "products/p1/a.jpg"))
	require.NoError(t, d.Delete(ctx, "products/p1/a.jpg"), "deleting twice is fine")

	_, err = d.Get(ctx, "products/p1/a.jpg")
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestLocalKeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d := storage.NewLocal(root, "http://cdn.test")

	require.NoError(t, d.Put(ctx, "../../escape.txt", strings.NewReader("x"), ""))
	ok, err := d.Exists(ctx, "escape.txt")
	require.NoError(t, err)
	assert.True(t, ok, "traversal is clamped to the root")

	assert.ErrorIs(t, d.Put(ctx, "/", strings.NewReader("x"), ""), storage.ErrInvalidKey)
}

func TestDefaultFallsBackToRegisteredDisk(t *testing.T) {
	d := storage.NewLocal(t.TempDir(), "http://cdn.test")
	storage.Register("local", d)
	storage.SetDefault("missing")
	t.Cleanup(func() { storage.SetDefault("local") })

	assert.Same(t, d, storage.Default())
	assert.Nil(t, storage.Use("missing"))
}
