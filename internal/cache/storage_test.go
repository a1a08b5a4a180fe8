package cache

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name     string
		nilFS    bool
		rootPath string
		wantErr  bool
	}{
		{name: "valid storage creation", rootPath: "/cache"},
		{name: "nil filesystem", nilFS: true, rootPath: "/cache", wantErr: true},
		{name: "empty root path", rootPath: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var storage *Storage
			var err error
			if tt.nilFS {
				storage, err = NewStorage(nil, tt.rootPath)
			} else {
				storage, err = NewStorage(billy.NewMemory(), tt.rootPath)
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, storage)
		})
	}
}

func TestBlobPath(t *testing.T) {
	assert.Equal(t, "blobs/ab/abcdef", BlobPath("abcdef"))
	assert.Equal(t, "blobs/a/a", BlobPath("a"))
}

func TestStorage_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		enc  Encoding
		data []byte
	}{
		{name: "identity", enc: EncodingIdentity, data: []byte("glTF binary payload")},
		{name: "zstd", enc: EncodingZstd, data: []byte(strings.Repeat("body { color: red; }\n", 200))},
		{name: "default encoding", enc: "", data: []byte{0x00, 0x0a, 0xff, 0x0a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := NewStorage(billy.NewMemory(), "/cache")
			require.NoError(t, err)

			written, err := storage.WriteAtomically(ctx, BlobPath("deadbeef"), tt.data, tt.enc)
			require.NoError(t, err)
			assert.Positive(t, written)
			if tt.enc == EncodingZstd {
				assert.Less(t, written, int64(len(tt.data)))
			}

			got, err := storage.ReadWithIntegrity(ctx, BlobPath("deadbeef"))
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)

			// No temp files are left behind.
			entries, err := storage.fs.ReadDir(storage.tempDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStorage_UnsupportedEncoding(t *testing.T) {
	storage, err := NewStorage(billy.NewMemory(), "/cache")
	require.NoError(t, err)

	_, err = storage.WriteAtomically(context.Background(), "blobs/x", []byte("x"), Encoding("brotli"))
	assert.Error(t, err)
}

func TestStorage_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewMemory()
	storage, err := NewStorage(fsys, "/cache")
	require.NoError(t, err)

	_, err = storage.WriteAtomically(ctx, BlobPath("cafe"), []byte("original"), EncodingIdentity)
	require.NoError(t, err)

	full := path.Join("/cache", BlobPath("cafe"))
	raw, err := fsys.ReadFile(full)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content []byte
	}{
		{"flipped payload", append(raw[:len(raw)-1:len(raw)-1], 'X')},
		{"no header", []byte("original")},
		{"unknown encoding", []byte(checksum([]byte("original")) + " lz4\noriginal")},
		{"bad zstd", []byte(checksum([]byte("original")) + " zstd\noriginal")},
		{"unknown digest algorithm", []byte("md5:0123 identity\noriginal")},
		{"malformed digest", []byte("sha256:xyz identity\noriginal")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, fsys.WriteFile(full, tt.content, 0o644))
			_, err := storage.ReadWithIntegrity(ctx, BlobPath("cafe"))
			assert.ErrorIs(t, err, ErrCorrupted)
		})
	}
}

func TestStorage_ReadMissing(t *testing.T) {
	storage, err := NewStorage(billy.NewMemory(), "/cache")
	require.NoError(t, err)

	_, err = storage.ReadWithIntegrity(context.Background(), BlobPath("missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestStorage_RemoveAndList(t *testing.T) {
	ctx := context.Background()
	storage, err := NewStorage(billy.NewMemory(), "/cache")
	require.NoError(t, err)

	for _, d := range []string{"aa11", "aa22", "bb33"} {
		_, err := storage.WriteAtomically(ctx, BlobPath(d), []byte(d), EncodingIdentity)
		require.NoError(t, err)
	}

	digests, err := storage.ListBlobs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aa11", "aa22", "bb33"}, digests)

	require.NoError(t, storage.Remove(ctx, BlobPath("aa22")))
	require.NoError(t, storage.Remove(ctx, BlobPath("aa22")), "removing twice is not an error")

	exists, err := storage.Exists(ctx, BlobPath("aa22"))
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, storage.RemoveAllBlobs(ctx))
	digests, err = storage.ListBlobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, digests)
}

func TestStorage_CleanupTempFiles(t *testing.T) {
	ctx := context.Background()
	fsys := billy.NewMemory()
	storage, err := NewStorage(fsys, "/cache")
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFile("/cache/.temp/leftover", []byte("partial"), 0o644))
	require.NoError(t, storage.CleanupTempFiles(ctx))

	entries, err := fsys.ReadDir("/cache/.temp")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorage_CancelledContext(t *testing.T) {
	storage, err := NewStorage(billy.NewMemory(), "/cache")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = storage.WriteAtomically(ctx, "blobs/x", []byte("x"), EncodingIdentity)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = storage.ReadWithIntegrity(ctx, "blobs/x")
	assert.ErrorIs(t, err, context.Canceled)
}
