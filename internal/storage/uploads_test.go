package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "default/g1/manual.pdf", UploadKey("default", "g1", "manual.pdf"))
	assert.Equal(t, "default/g1/passwd", UploadKey("default", "g1", "../../etc/passwd"))
	assert.Equal(t, "default/g1/evil.pdf", UploadKey("default", "g1", `C:\tmp\evil.pdf`))
	assert.Equal(t, "default/g1/document", UploadKey("default", "g1", ""))
	assert.Equal(t, "default/g1/document", UploadKey("default", "g1", "."))
	assert.Equal(t, "default/g1/document", UploadKey("default", "g1", ".."))
	assert.Equal(t, "default/g1/document", UploadKey("default", "g1", `..\`))
	assert.Equal(t, "default/g1/document", UploadKey("default", "g1", "../.."))
}

func TestFSUploadStore_DotDotFilenameKeepsCollectionUsable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFSUploadStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, UploadKey("default", "g1", ".."), []byte("%PDF-1.4"), "application/pdf"))
	require.NoError(t, store.Put(ctx, UploadKey("default", "g2", "policy.pdf"), []byte("%PDF-1.4"), "application/pdf"))

	info, err := os.Stat(filepath.Join(dir, "default"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(dir, "default", "g1", "document"))
	assert.NoError(t, err)
}

func TestFSUploadStore_PutDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFSUploadStore(dir)
	require.NoError(t, err)

	key := UploadKey("default", "g1", "manual.pdf")
	require.NoError(t, store.Put(ctx, key, []byte("%PDF-1.4"), "application/pdf"))

	data, err := os.ReadFile(filepath.Join(dir, "default", "g1", "manual.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, "default", "g1"))
	assert.True(t, os.IsNotExist(err))

	// deleting again is fine
	assert.NoError(t, store.Delete(ctx, key))
}

func TestFSUploadStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewFSUploadStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Put(context.Background(), "../outside", nil, ""), ErrInvalidKey)
	assert.ErrorIs(t, store.Put(context.Background(), "/abs", nil, ""), ErrInvalidKey)
	assert.ErrorIs(t, store.Put(context.Background(), "default/g1/..", nil, ""), ErrInvalidKey)
	assert.ErrorIs(t, store.Put(context.Background(), "default/./g1/a.pdf", nil, ""), ErrInvalidKey)
}
