package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndDelete(t *testing.T) {
	store, err := NewDiskFileStore(t.TempDir())
	require.NoError(t, err)

	relPath, err := store.Save(strings.NewReader("image-bytes"), "photo.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(relPath, UploadsPrefix))
	assert.True(t, strings.HasSuffix(relPath, ".jpg"))

	data, err := os.ReadFile(filepath.Join(store.dir, strings.TrimPrefix(relPath, UploadsPrefix)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, store.Delete(relPath))
	assert.ErrorIs(t, store.Delete(relPath), ErrNotFound)
}

func TestDeleteRejectsEscapingPaths(t *testing.T) {
	store, err := NewDiskFileStore(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"/etc/passwd",
		"/uploads/../secret",
		"/uploads/a/b",
		"relative.jpg",
		"/uploads/..",
	} {
		assert.ErrorIs(t, store.Delete(p), ErrInvalidPath, p)
	}
}
