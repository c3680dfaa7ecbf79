//go:build integration

package integrationtests

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"docchat-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3ObjectStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	store := createObjectStore(t, ctx)

	// Creating the bucket again is a no-op.
	require.NoError(t, store.CreateBucket(ctx))

	first, second := uuid.New(), uuid.New()
	firstKey := storage.UploadKey(first, "scan one.pdf")
	secondKey := storage.UploadKey(second, "photo.png")

	require.NoError(t, store.PutObject(ctx, firstKey, strings.NewReader("%PDF-1.4"), "application/pdf"))
	require.NoError(t, store.PutObject(ctx, secondKey, bytes.NewReader([]byte("png")), "image/png"))

	t.Run("GetObject", func(t *testing.T) {
		obj, err := store.GetObject(ctx, firstKey)
		require.NoError(t, err)
		defer obj.Close()

		data, err := io.ReadAll(obj)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(data))

		_, err = store.GetObject(ctx, "uploads/missing/file.pdf")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})

	t.Run("PublicRead", func(t *testing.T) {
		res, err := http.Get(store.PublicURL(secondKey))
		require.NoError(t, err)
		defer res.Body.Close()

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		objects, err := store.ListObjects(ctx, "uploads/")
		require.NoError(t, err)
		assert.Len(t, objects, 2)

		require.NoError(t, store.DeleteObjects(ctx, storage.UploadPrefix(first)))

		objects, err = store.ListObjects(ctx, "uploads/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, secondKey, objects[0].Name)
	})
}
