//go:build integration

package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/berthd/berth/pkg/api"
	"github.com/berthd/berth/pkg/modules"
	"github.com/berthd/berth/pkg/types"
	"github.com/berthd/berth/pkg/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	server      *httptest.Server
	uploadsRoot string
	tempRoot    string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newEnv(t *testing.T) *env {
	t.Helper()

	uploadsRoot := t.TempDir()
	tempRoot := t.TempDir()

	admission := upload.NewAdmission(16, 4, 3)
	locks := upload.NewLockRegistry(0)
	tracker := upload.NewProgressTracker()
	stats := upload.NewStats()

	srv := api.NewServer(api.Config{UploadsRoot: uploadsRoot}, api.Deps{
		Receiver:  upload.NewReceiver(upload.ReceiverConfig{TempRoot: tempRoot, MaxFileSize: 1 << 30}, admission, tracker, stats),
		Merger:    upload.NewMerger(upload.MergerConfig{UploadsRoot: uploadsRoot, TempRoot: tempRoot}, locks, tracker),
		Advisor:   upload.NewAdvisor(uploadsRoot, tempRoot),
		Janitor:   upload.NewJanitor(upload.JanitorConfig{TempRoot: tempRoot}, locks, tracker),
		Admission: admission,
		Locks:     locks,
		Tracker:   tracker,
		Stats:     stats,
		Modules:   modules.NewService(uploadsRoot, tempRoot),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{server: ts, uploadsRoot: uploadsRoot, tempRoot: tempRoot}
}

func (e *env) sendChunk(t *testing.T, module, filename string, index, total int, payload []byte) envelope {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "chunk.bin")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	url := fmt.Sprintf("%s/api/upload/chunk?module=%s&filename=%s&chunk_number=%d&total_chunks=%d",
		e.server.URL, module, filename, index, total)
	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode(t, resp)
}

func (e *env) merge(t *testing.T, module, filename string, totalChunks int) (*http.Response, envelope) {
	t.Helper()

	payload, err := json.Marshal(types.MergeRequest{
		Module:      module,
		Filename:    filename,
		TotalChunks: totalChunks,
	})
	require.NoError(t, err)

	resp, err := http.Post(e.server.URL+"/api/upload/merge", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// =============================================================================
// End-to-end upload flows
// =============================================================================

func TestChunkedUploadLifecycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	// Nothing uploaded yet: check reports neither instant upload nor
	// resume.
	checkBody, _ := json.Marshal(types.CheckRequest{Module: "docs", Filename: "report.pdf", TotalSize: 6})
	resp, err := http.Post(e.server.URL+"/api/upload/check", "application/json", bytes.NewReader(checkBody))
	require.NoError(t, err)
	env := decode(t, resp)
	resp.Body.Close()
	require.True(t, env.Success)
	var check types.CheckResult
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.False(t, check.CanInstantUpload)
	assert.False(t, check.CanResume)

	// Upload three chunks, the middle one twice. The retry is a no-op.
	e.sendChunk(t, "docs", "report.pdf", 0, 3, []byte("AA"))
	e.sendChunk(t, "docs", "report.pdf", 1, 3, []byte("BB"))
	retry := e.sendChunk(t, "docs", "report.pdf", 1, 3, []byte("XX"))
	assert.Contains(t, retry.Message, "already exists")
	e.sendChunk(t, "docs", "report.pdf", 2, 3, []byte("CC"))

	// Progress is visible while chunks are in flight.
	resp, err = http.Get(e.server.URL + "/api/upload/progress/docs/report.pdf")
	require.NoError(t, err)
	env = decode(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress types.UploadProgress
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, 3, progress.UploadedChunks)

	// Merge publishes the final file with the first submission's bytes
	// for the retried chunk.
	mergeResp, mergeEnv := e.merge(t, "docs", "report.pdf", 3)
	require.Equal(t, http.StatusOK, mergeResp.StatusCode)
	require.True(t, mergeEnv.Success)

	data, err := os.ReadFile(filepath.Join(e.uploadsRoot, "docs", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "AABBCC", string(data))

	// Progress is gone after the merge.
	resp, err = http.Get(e.server.URL + "/api/upload/progress/docs/report.pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A fresh check now short-circuits to instant upload.
	resp, err = http.Post(e.server.URL+"/api/upload/check", "application/json", bytes.NewReader(checkBody))
	require.NoError(t, err)
	env = decode(t, resp)
	resp.Body.Close()
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.True(t, check.CanInstantUpload)
}

func TestResumeAfterPartialUpload(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.sendChunk(t, "m", "big.bin", 0, 5, []byte("00"))
	e.sendChunk(t, "m", "big.bin", 2, 5, []byte("22"))
	e.sendChunk(t, "m", "big.bin", 4, 5, []byte("44"))

	checkBody, _ := json.Marshal(types.CheckRequest{Module: "m", Filename: "big.bin", TotalSize: 10})
	resp, err := http.Post(e.server.URL+"/api/upload/check", "application/json", bytes.NewReader(checkBody))
	require.NoError(t, err)
	env := decode(t, resp)
	resp.Body.Close()

	var check types.CheckResult
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.True(t, check.CanResume)
	assert.Equal(t, []int{0, 2, 4}, check.UploadedChunks)
}

func TestMergeWithMissingChunkFails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.sendChunk(t, "m", "gap.bin", 0, 3, []byte("AA"))
	e.sendChunk(t, "m", "gap.bin", 2, 3, []byte("CC"))

	resp, env := e.merge(t, "m", "gap.bin", 3)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, env.Success)
	assert.NoFileExists(t, filepath.Join(e.uploadsRoot, "m", "gap.bin"))
}

func TestConcurrentUploadsDistinctFiles(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("file%d.bin", i)
			e.sendChunk(t, "bulk", name, 0, 2, []byte("aa"))
			e.sendChunk(t, "bulk", name, 1, 2, []byte("bb"))
			resp, env := e.merge(t, "bulk", name, 2)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, env.Success)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		data, err := os.ReadFile(filepath.Join(e.uploadsRoot, "bulk", fmt.Sprintf("file%d.bin", i)))
		require.NoError(t, err)
		assert.Equal(t, "aabb", string(data))
	}
}

func TestCleanupEndpointRemovesNothingFresh(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.sendChunk(t, "m", "keep.bin", 0, 2, []byte("aa"))

	resp, err := http.Post(e.server.URL+"/api/cleanup", "application/json", nil)
	require.NoError(t, err)
	env := decode(t, resp)
	resp.Body.Close()
	require.True(t, env.Success)

	// The in-flight part is younger than the TTL and survives.
	assert.FileExists(t, filepath.Join(e.tempRoot, "m", "keep.bin.part0"))
}
