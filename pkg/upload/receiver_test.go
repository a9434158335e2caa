package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/berthd/berth/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T, opts ...func(*ReceiverConfig)) (*Receiver, string) {
	t.Helper()

	tempRoot := t.TempDir()
	cfg := ReceiverConfig{TempRoot: tempRoot, MaxFileSize: 1 << 20}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := NewReceiver(cfg, NewAdmission(8, 2, 2), NewProgressTracker(), NewStats())
	return r, tempRoot
}

func TestWriteChunk(t *testing.T) {
	t.Parallel()

	r, tempRoot := newTestReceiver(t)
	req := chunkReq("docs", "report.pdf", 0, 3, 300)

	res, err := r.WriteChunk(context.Background(), req, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Size)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, 1, *res.NextChunk)
	assert.False(t, res.AlreadyExists)

	data, err := os.ReadFile(filepath.Join(tempRoot, "docs", "report.pdf.part0"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteChunkLastChunkReportsNoNext(t *testing.T) {
	t.Parallel()

	r, _ := newTestReceiver(t)
	res, err := r.WriteChunk(context.Background(), chunkReq("m", "f.bin", 2, 3, 0), strings.NewReader("x"))
	require.NoError(t, err)
	assert.Nil(t, res.NextChunk)
}

func TestWriteChunkIdempotent(t *testing.T) {
	t.Parallel()

	r, tempRoot := newTestReceiver(t)
	req := chunkReq("m", "f.bin", 1, 3, 0)

	_, err := r.WriteChunk(context.Background(), req, strings.NewReader("first"))
	require.NoError(t, err)

	// A retry of the same index is a no-op success that keeps the
	// first submission's bytes and does not read the new body.
	res, err := r.WriteChunk(context.Background(), req, strings.NewReader("second"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, 2, *res.NextChunk)

	data, err := os.ReadFile(filepath.Join(tempRoot, "m", "f.bin.part1"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestWriteChunkIdempotentFinalIndexStillReportsNext(t *testing.T) {
	t.Parallel()

	r, _ := newTestReceiver(t)
	req := chunkReq("m", "f.bin", 2, 3, 0)

	_, err := r.WriteChunk(context.Background(), req, strings.NewReader("x"))
	require.NoError(t, err)

	// The short-circuit path always reports index+1, even for the
	// last chunk; only a fresh write of the last chunk reports none.
	res, err := r.WriteChunk(context.Background(), req, strings.NewReader("x"))
	require.NoError(t, err)
	require.NotNil(t, res.NextChunk)
	assert.Equal(t, 3, *res.NextChunk)
}

func TestWriteChunkRelativePathFlattened(t *testing.T) {
	t.Parallel()

	r, tempRoot := newTestReceiver(t)
	req := types.ChunkRequest{
		Key:         types.FileKey{Module: "m", Filename: "f.bin", RelativePath: "a/b"},
		ChunkNumber: 0,
		TotalChunks: 1,
	}

	_, err := r.WriteChunk(context.Background(), req, strings.NewReader("x"))
	require.NoError(t, err)

	// No nested temp directories: the relative path is flattened
	// into the part name.
	assert.FileExists(t, filepath.Join(tempRoot, "m", "a_b_f.bin.part0"))
	assert.NoDirExists(t, filepath.Join(tempRoot, "m", "a"))
}

func TestWriteChunkValidation(t *testing.T) {
	t.Parallel()

	r, tempRoot := newTestReceiver(t)

	tests := []struct {
		name string
		req  types.ChunkRequest
	}{
		{
			name: "traversal module",
			req:  chunkReq("../outside", "f.bin", 0, 1, 0),
		},
		{
			name: "traversal filename",
			req:  chunkReq("m", "../evil.sh", 0, 1, 0),
		},
		{
			name: "traversal relative path",
			req: types.ChunkRequest{
				Key:         types.FileKey{Module: "m", Filename: "f.bin", RelativePath: "../up"},
				ChunkNumber: 0,
				TotalChunks: 1,
			},
		},
		{
			name: "chunk index out of range",
			req:  chunkReq("m", "f.bin", 5, 3, 0),
		},
		{
			name: "oversized declaration",
			req:  chunkReq("m", "f.bin", 0, 1, 10<<20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.WriteChunk(context.Background(), tt.req, strings.NewReader("x"))
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}

	// Rejections never touch the filesystem.
	entries, err := os.ReadDir(tempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteChunkProgressRecorded(t *testing.T) {
	t.Parallel()

	tracker := NewProgressTracker()
	r := NewReceiver(ReceiverConfig{TempRoot: t.TempDir()}, NewAdmission(4, 0, 0), tracker, NewStats())

	_, err := r.WriteChunk(context.Background(), chunkReq("m", "f.bin", 0, 2, 100), strings.NewReader("ab"))
	require.NoError(t, err)

	p, ok := tracker.Get("m", "f.bin")
	require.True(t, ok)
	assert.Equal(t, 1, p.UploadedChunks)
	assert.Equal(t, int64(2), p.UploadedSize)
	assert.Equal(t, int64(100), p.TotalSize)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, os.ErrClosed
}

func TestWriteChunkFailureRemovesPartial(t *testing.T) {
	t.Parallel()

	r, tempRoot := newTestReceiver(t)
	_, err := r.WriteChunk(context.Background(), chunkReq("m", "f.bin", 0, 2, 0), failingReader{})
	require.Error(t, err)
	assert.False(t, IsValidation(err))

	// The aborted part was cleaned up, so a retry starts clean.
	assert.NoFileExists(t, filepath.Join(tempRoot, "m", "f.bin.part0"))
}
