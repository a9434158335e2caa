package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/berthd/berth/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdvisor(t *testing.T) (*Advisor, string, string) {
	t.Helper()

	uploadsRoot := t.TempDir()
	tempRoot := t.TempDir()
	return NewAdvisor(uploadsRoot, tempRoot), uploadsRoot, tempRoot
}

func TestCheckInstantUpload(t *testing.T) {
	t.Parallel()

	a, uploadsRoot, _ := newTestAdvisor(t)
	require.NoError(t, os.MkdirAll(filepath.Join(uploadsRoot, "m"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadsRoot, "m", "f.bin"), []byte("12345"), 0644))

	res, err := a.Check(types.CheckRequest{Module: "m", Filename: "f.bin", TotalSize: 5})
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.True(t, res.CanInstantUpload)
	require.NotNil(t, res.Size)
	assert.Equal(t, int64(5), *res.Size)
	assert.False(t, res.CanResume)
	assert.Empty(t, res.UploadedChunks)
}

func TestCheckSizeMismatchFallsBackToResumeScan(t *testing.T) {
	t.Parallel()

	a, uploadsRoot, tempRoot := newTestAdvisor(t)
	require.NoError(t, os.MkdirAll(filepath.Join(uploadsRoot, "m"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadsRoot, "m", "f.bin"), []byte("12345"), 0644))

	key := types.FileKey{Module: "m", Filename: "f.bin"}
	writeParts(t, tempRoot, key, "x")

	// A destination with the wrong size is not an instant upload. The
	// name stays occupied, so the caller gets the resume view instead.
	res, err := a.Check(types.CheckRequest{Module: "m", Filename: "f.bin", TotalSize: 99})
	require.NoError(t, err)
	assert.False(t, res.CanInstantUpload)
	assert.True(t, res.CanResume)
	assert.Equal(t, []int{0}, res.UploadedChunks)
}

func TestCheckResumableChunksSorted(t *testing.T) {
	t.Parallel()

	a, _, tempRoot := newTestAdvisor(t)
	key := types.FileKey{Module: "m", Filename: "f.bin"}
	require.NoError(t, os.MkdirAll(key.TempDir(tempRoot), 0755))
	for _, i := range []int{4, 0, 2} {
		require.NoError(t, os.WriteFile(key.PartPath(tempRoot, i), []byte("x"), 0644))
	}
	// Noise that must not be counted: another file's parts and a
	// non-part artifact.
	require.NoError(t, os.WriteFile(filepath.Join(tempRoot, "m", "other.bin.part1"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempRoot, "m", "f.bin.tmp.abc"), []byte("x"), 0644))

	res, err := a.Check(types.CheckRequest{Module: "m", Filename: "f.bin", TotalSize: 100})
	require.NoError(t, err)
	assert.True(t, res.CanResume)
	assert.Equal(t, []int{0, 2, 4}, res.UploadedChunks)
}

func TestCheckNothingUploaded(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAdvisor(t)
	res, err := a.Check(types.CheckRequest{Module: "m", Filename: "f.bin", TotalSize: 100})
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.False(t, res.CanInstantUpload)
	assert.False(t, res.CanResume)
	assert.Empty(t, res.UploadedChunks)
}

func TestCheckValidation(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAdvisor(t)

	_, err := a.Check(types.CheckRequest{Module: "m", Filename: "../f.bin"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = a.Check(types.CheckRequest{Module: "bad/../mod", Filename: "f.bin"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
