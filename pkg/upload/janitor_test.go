package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJanitor(t *testing.T, cfg JanitorConfig) (*Janitor, *LockRegistry, *ProgressTracker) {
	t.Helper()

	if cfg.TempRoot == "" {
		cfg.TempRoot = t.TempDir()
	}
	locks := NewLockRegistry(0)
	tracker := NewProgressTracker()
	return NewJanitor(cfg, locks, tracker), locks, tracker
}

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()

	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestJanitorCleansExpiredTempFiles(t *testing.T) {
	t.Parallel()

	tempRoot := t.TempDir()
	j, _, _ := newTestJanitor(t, JanitorConfig{TempRoot: tempRoot, TempFileTTL: time.Hour})

	dir := filepath.Join(tempRoot, "m")
	require.NoError(t, os.MkdirAll(dir, 0755))

	expiredPart := filepath.Join(dir, "f.bin.part0")
	expiredScratch := filepath.Join(dir, "f.bin.tmp.abc123")
	freshPart := filepath.Join(dir, "g.bin.part0")
	for _, p := range []string{expiredPart, expiredScratch, freshPart} {
		require.NoError(t, os.WriteFile(p, []byte("data"), 0644))
	}
	backdate(t, expiredPart, 2*time.Hour)
	backdate(t, expiredScratch, 2*time.Hour)

	cleaned, freed := j.CleanTempFiles(context.Background())
	assert.Equal(t, 2, cleaned)
	assert.Equal(t, int64(8), freed)
	assert.NoFileExists(t, expiredPart)
	assert.NoFileExists(t, expiredScratch)
	assert.FileExists(t, freshPart)
}

func TestJanitorNeverDeletesUnrelatedNames(t *testing.T) {
	t.Parallel()

	tempRoot := t.TempDir()
	j, _, _ := newTestJanitor(t, JanitorConfig{TempRoot: tempRoot, TempFileTTL: time.Hour})

	dir := filepath.Join(tempRoot, "m")
	require.NoError(t, os.MkdirAll(dir, 0755))

	// Ancient, but not a part or scratch file. Must survive.
	stray := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("keep me"), 0644))
	backdate(t, stray, 240*time.Hour)

	cleaned, freed := j.CleanTempFiles(context.Background())
	assert.Zero(t, cleaned)
	assert.Zero(t, freed)
	assert.FileExists(t, stray)
}

func TestJanitorMissingTempRoot(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestJanitor(t, JanitorConfig{TempRoot: filepath.Join(t.TempDir(), "absent")})
	cleaned, freed := j.CleanTempFiles(context.Background())
	assert.Zero(t, cleaned)
	assert.Zero(t, freed)
}

func TestJanitorRunOnce(t *testing.T) {
	t.Parallel()

	tempRoot := t.TempDir()
	j, locks, tracker := newTestJanitor(t, JanitorConfig{
		TempRoot:        tempRoot,
		LockIdleTTL:     time.Hour,
		ProgressIdleTTL: time.Hour,
		TempFileTTL:     time.Hour,
	})

	// Idle lock entry and stale progress entry, both past their TTLs.
	past := time.Now().Add(-2 * time.Hour)
	locks.now = func() time.Time { return past }
	locks.Get("m_f.bin")
	locks.now = time.Now

	tracker.now = func() time.Time { return past }
	tracker.Record(chunkReq("m", "f.bin", 0, 2, 100), 50)
	tracker.now = time.Now

	require.NoError(t, os.MkdirAll(filepath.Join(tempRoot, "m"), 0755))
	part := filepath.Join(tempRoot, "m", "f.bin.part0")
	require.NoError(t, os.WriteFile(part, []byte("abc"), 0644))
	backdate(t, part, 2*time.Hour)

	stats := j.RunOnce(context.Background())
	assert.Equal(t, 1, stats.LocksEvicted)
	assert.Equal(t, 1, stats.ProgressEvicted)
	assert.Equal(t, 1, stats.TempFiles)
	assert.Equal(t, int64(3), stats.BytesFreed)
	assert.Zero(t, locks.Len())
	assert.Zero(t, tracker.Len())
}

func TestJanitorDefaults(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestJanitor(t, JanitorConfig{})
	assert.Equal(t, DefaultCleanupInterval, j.cfg.Interval)
	assert.Equal(t, DefaultLockIdleTTL, j.cfg.LockIdleTTL)
	assert.Equal(t, DefaultProgressIdleTTL, j.cfg.ProgressIdleTTL)
	assert.Equal(t, DefaultTempFileTTL, j.cfg.TempFileTTL)
}

func TestJanitorStartStop(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestJanitor(t, JanitorConfig{Interval: 50 * time.Millisecond})
	j.Start()
	time.Sleep(120 * time.Millisecond)
	j.Stop()
}
