// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"fmt"
)

// ValidationError marks a request rejected before any filesystem side
// effect. Handlers map it to a client error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MissingChunkError aborts a merge when a part file is absent. The
// destination is left untouched; already-consumed parts stay deleted,
// so the client must re-upload the missing indices before retrying.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d missing", e.Index)
}

// IsMissingChunk reports whether err is (or wraps) a MissingChunkError.
func IsMissingChunk(err error) bool {
	var me *MissingChunkError
	return errors.As(err, &me)
}

// ErrUnavailable wraps permit-acquisition failures. The caller should
// retry after backoff; handlers map it to service-unavailable.
var ErrUnavailable = errors.New("upload capacity unavailable")
