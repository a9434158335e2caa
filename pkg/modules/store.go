// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"fmt"
	"io"
	"os"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/utils"
)

const copyBufferSize = 256 * 1024

// SaveFile streams r into path, which must come from BuildFilePath.
// The file is synced before success is reported and removed on any
// failure.
func (s *Service) SaveFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", path, err)
	}

	buf := utils.GetBuffer(copyBufferSize)
	written, err := io.CopyBuffer(f, r, buf)
	utils.PutBuffer(buf)
	if err != nil {
		f.Close()
		s.discard(path)
		return 0, fmt.Errorf("write file %s: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		s.discard(path)
		return 0, fmt.Errorf("sync file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		s.discard(path)
		return 0, fmt.Errorf("close file %s: %w", path, err)
	}
	return written, nil
}

func (s *Service) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial file")
	}
}
