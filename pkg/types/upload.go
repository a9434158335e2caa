// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// TimeFormat is the timestamp layout used in file metadata responses.
const TimeFormat = "2006-01-02 15:04:05"

// FileKey identifies one target artifact across its chunked upload,
// merge, progress, and locking lifecycle.
type FileKey struct {
	Module       string
	Filename     string
	RelativePath string
}

// LockKey is the registry/progress key for this file. The relative
// path is deliberately not part of the key: two uploads of the same
// filename into different subdirectories of a module serialize against
// each other, which is coarser than necessary but always safe.
func (k FileKey) LockKey() string {
	return k.Module + "_" + k.Filename
}

// PartName returns the on-disk name of chunk i. Path separators in the
// relative path are flattened so part files never create nested temp
// directories.
func (k FileKey) PartName(i int) string {
	if k.RelativePath != "" {
		flat := strings.NewReplacer("/", "_", "\\", "_").Replace(k.RelativePath)
		return fmt.Sprintf("%s_%s.part%d", flat, k.Filename, i)
	}
	return fmt.Sprintf("%s.part%d", k.Filename, i)
}

// PartPath returns the full path of chunk i under the temp root.
func (k FileKey) PartPath(tempRoot string, i int) string {
	return filepath.Join(tempRoot, k.Module, k.PartName(i))
}

// TempDir returns the module's temp directory.
func (k FileKey) TempDir(tempRoot string) string {
	return filepath.Join(tempRoot, k.Module)
}

// FinalPath returns the destination path of the assembled artifact.
func (k FileKey) FinalPath(uploadsRoot string) string {
	if k.RelativePath != "" {
		return filepath.Join(uploadsRoot, k.Module, k.RelativePath, k.Filename)
	}
	return filepath.Join(uploadsRoot, k.Module, k.Filename)
}

// URL returns the static-serving locator of the assembled artifact.
func (k FileKey) URL() string {
	if k.RelativePath != "" {
		return path.Join("/uploads", k.Module, k.RelativePath, k.Filename)
	}
	return path.Join("/uploads", k.Module, k.Filename)
}

// ChunkRequest describes one piece of a chunked upload.
type ChunkRequest struct {
	Key         FileKey
	ChunkNumber int
	TotalChunks int
	TotalSize   int64 // declared size of the whole file; 0 = undeclared
	FileHash    string
}

// ChunkResult reports the outcome of a chunk write. NextChunk is nil
// when the written chunk was the last one.
type ChunkResult struct {
	ChunkNumber   int    `json:"chunk_number"`
	TotalChunks   int    `json:"total_chunks"`
	Filename      string `json:"filename"`
	NextChunk     *int   `json:"next_chunk"`
	Size          int64  `json:"-"`
	AlreadyExists bool   `json:"-"`
}

// MergeRequest asks for all parts of a logical file to be assembled.
type MergeRequest struct {
	Module       string `json:"module"`
	Filename     string `json:"filename"`
	TotalChunks  int    `json:"total_chunks"`
	ChunkNumber  int    `json:"chunk_number,omitempty"`
	ChunkSize    int64  `json:"chunk_size,omitempty"`
	RelativePath string `json:"relative_path,omitempty"`
	FileHash     string `json:"file_hash,omitempty"`
	ChunkHash    string `json:"chunk_hash,omitempty"`
}

// Key returns the logical file key of the merge target.
func (r MergeRequest) Key() FileKey {
	return FileKey{Module: r.Module, Filename: r.Filename, RelativePath: r.RelativePath}
}

// CheckRequest asks whether a file already exists or can be resumed.
type CheckRequest struct {
	Filename  string `json:"filename"`
	Module    string `json:"module"`
	FileHash  string `json:"file_hash"`
	TotalSize int64  `json:"total_size"`
}

// CheckResult is the resume advisor's answer. Existence is decided by
// size equality alone; FileHash is carried but never compared.
type CheckResult struct {
	Exists           bool   `json:"exists"`
	Size             *int64 `json:"size"`
	CanInstantUpload bool   `json:"can_instant_upload"`
	UploadedChunks   []int  `json:"uploaded_chunks"`
	CanResume        bool   `json:"can_resume"`
}

// UploadProgress is a point-in-time snapshot of an in-flight transfer.
// Speed is bytes per second; EstimatedTime is seconds remaining.
type UploadProgress struct {
	Filename       string  `json:"filename"`
	Module         string  `json:"module"`
	UploadedChunks int     `json:"uploaded_chunks"`
	TotalChunks    int     `json:"total_chunks"`
	TotalSize      int64   `json:"total_size"`
	UploadedSize   int64   `json:"uploaded_size"`
	Speed          float64 `json:"speed"`
	EstimatedTime  float64 `json:"estimated_time"`
}

// FileInfo is the metadata of a finished artifact.
type FileInfo struct {
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	Module       string `json:"module"`
	UploadTime   string `json:"upload_time"`
	Size         int64  `json:"size"`
	FileType     string `json:"file_type"`
	RelativePath string `json:"relative_path,omitempty"`
	FileHash     string `json:"file_hash,omitempty"`
}

// ModuleInfo summarizes one module directory.
type ModuleInfo struct {
	Name        string `json:"name"`
	FileCount   int    `json:"file_count"`
	CreatedTime string `json:"created_time"`
	TotalSize   int64  `json:"total_size"`
}
