// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/types"
)

// partIndexRE extracts the chunk index from a part file name.
var partIndexRE = regexp.MustCompile(`\.part(\d+)$`)

// Advisor decides, for a candidate upload, whether the file already
// exists complete (instant upload) or which chunk indices are already
// present (partial resume).
type Advisor struct {
	uploadsRoot string
	tempRoot    string
}

func NewAdvisor(uploadsRoot, tempRoot string) *Advisor {
	return &Advisor{uploadsRoot: uploadsRoot, tempRoot: tempRoot}
}

// Check reports instant-upload eligibility when the destination exists
// with exactly the declared size. Size equality is the sole integrity
// check; the carried file hash is accepted but never compared. When
// the destination is absent, the module's temp directory is scanned
// for already-uploaded chunks.
func (a *Advisor) Check(req types.CheckRequest) (types.CheckResult, error) {
	if !types.ValidFilename(req.Filename) {
		return types.CheckResult{}, &ValidationError{Field: "filename", Reason: "illegal characters"}
	}
	if !types.ValidModuleName(req.Module) {
		return types.CheckResult{}, &ValidationError{Field: "module", Reason: "illegal characters"}
	}

	key := types.FileKey{Module: req.Module, Filename: req.Filename}
	finalPath := key.FinalPath(a.uploadsRoot)

	if info, err := os.Stat(finalPath); err == nil {
		if info.Size() == req.TotalSize {
			size := info.Size()
			logger.Debug().Str("path", finalPath).Msg("instant upload available")
			return types.CheckResult{
				Exists:           true,
				Size:             &size,
				CanInstantUpload: true,
				UploadedChunks:   []int{},
			}, nil
		}
	} else if !os.IsNotExist(err) {
		return types.CheckResult{}, fmt.Errorf("stat %s: %w", finalPath, err)
	}

	chunks := a.scanParts(key)
	return types.CheckResult{
		UploadedChunks: chunks,
		CanResume:      len(chunks) > 0,
	}, nil
}

// scanParts lists chunk indices already present for key, ascending.
// A missing temp directory simply means no resumable parts.
func (a *Advisor) scanParts(key types.FileKey) []int {
	chunks := []int{}
	entries, err := os.ReadDir(key.TempDir(a.tempRoot))
	if err != nil {
		return chunks
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.Contains(name, key.Filename) {
			continue
		}
		m := partIndexRE.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if idx, err := strconv.Atoi(m[1]); err == nil {
			chunks = append(chunks, idx)
		}
	}

	sort.Ints(chunks)
	return chunks
}
