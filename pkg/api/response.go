// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/upload"
)

// Envelope is the uniform JSON response shape. All endpoints answer
// with it, success or failure.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// writeError maps engine errors onto HTTP statuses: validation 400,
// capacity 503, anything else (including missing chunks) 500. The
// client-facing message is the error text; internals stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case upload.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, upload.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	}

	logger.Ctx(r.Context()).Error().
		Err(err).
		Int("status", status).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeFail(w, status, err.Error())
}
