// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/types"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleChunk receives one chunk. Metadata rides in the query string;
// the chunk body is the first file field of the multipart payload.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	release, err := s.deps.Admission.AcquireUpload(r.Context())
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	defer release()

	req, err := chunkRequestFromQuery(r)
	if err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	body, closeBody, err := multipartFileBody(r)
	if err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeBody()

	res, err := s.deps.Receiver.WriteChunk(r.Context(), req, body)
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}

	message := "chunk uploaded"
	if res.AlreadyExists {
		message = "chunk already exists"
	}
	writeOK(w, message, res)
}

func chunkRequestFromQuery(r *http.Request) (types.ChunkRequest, error) {
	q := r.URL.Query()

	req := types.ChunkRequest{
		Key: types.FileKey{
			Module:       queryDefault(q.Get("module"), "default"),
			Filename:     q.Get("filename"),
			RelativePath: q.Get("relative_path"),
		},
		TotalChunks: 1,
		FileHash:    q.Get("file_hash"),
	}
	if v := q.Get("chunk_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("parse chunk_number: %w", err)
		}
		req.ChunkNumber = n
	}
	if v := q.Get("total_chunks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("parse total_chunks: %w", err)
		}
		req.TotalChunks = n
	}
	if v := q.Get("total_size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("parse total_size: %w", err)
		}
		req.TotalSize = n
	}
	return req, nil
}

// multipartFileBody returns a reader over the first file field of the
// request's multipart payload.
func multipartFileBody(r *http.Request) (io.Reader, func(), error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("read multipart payload: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("multipart payload has no file field")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read multipart part: %w", err)
		}
		if part.FileName() != "" {
			return part, func() { part.Close() }, nil
		}
		part.Close()
	}
}

// handleMerge assembles the uploaded chunks into the final file.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	var req types.MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("decode merge request: %v", err))
		return
	}

	release, err := s.deps.Admission.AcquireMerge(r.Context())
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	defer release()

	info, err := s.deps.Merger.Merge(r.Context(), req)
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, "file merged", info)
}

// handleProgress reports the live transfer snapshot for one file.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	module := chi.URLParam(r, "module")
	filename := chi.URLParam(r, "filename")

	progress, ok := s.deps.Tracker.Get(module, filename)
	if !ok {
		writeFail(w, http.StatusNotFound, "no upload in progress")
		return
	}
	writeOK(w, "upload progress", progress)
}

// handleCheck answers instant-upload and resume questions before the
// client starts sending chunks.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	var req types.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("decode check request: %v", err))
		return
	}

	res, err := s.deps.Advisor.Check(req)
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	writeOK(w, "file check completed", res)
}

// handleUpload stores whole files from a multipart payload. Fields
// with disallowed extensions or empty bodies are skipped; the request
// fails only when nothing was stored.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	release, err := s.deps.Admission.AcquireUpload(r.Context())
	if err != nil {
		s.deps.Stats.RecordError()
		writeError(w, r, err)
		return
	}
	defer release()

	module := queryDefault(r.URL.Query().Get("module"), "default")
	mr, err := r.MultipartReader()
	if err != nil {
		s.deps.Stats.RecordError()
		writeFail(w, http.StatusBadRequest, fmt.Sprintf("read multipart payload: %v", err))
		return
	}

	stored := []types.FileInfo{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.deps.Stats.RecordError()
			writeFail(w, http.StatusBadRequest, fmt.Sprintf("read multipart part: %v", err))
			return
		}

		info, err := s.storeMultipartFile(r, module, part)
		part.Close()
		if err != nil {
			logger.Ctx(r.Context()).Error().Err(err).Str("module", module).Msg("file upload failed")
			s.deps.Stats.RecordError()
			continue
		}
		if info != nil {
			stored = append(stored, *info)
		}
	}

	if len(stored) == 0 {
		writeFail(w, http.StatusBadRequest, "no valid files uploaded")
		return
	}
	writeOK(w, fmt.Sprintf("uploaded %d files", len(stored)), stored)
}

// storeMultipartFile writes one multipart field to its destination.
// A nil FileInfo with nil error means the field was skipped.
func (s *Server) storeMultipartFile(r *http.Request, module string, part *multipart.Part) (*types.FileInfo, error) {
	filename := path.Base(part.FileName())
	if filename == "" || filename == "." || filename == "/" {
		filename = uuid.New().String()
	}

	// Folder uploads carry the relative path in the field name.
	relativePath := ""
	if name := part.FormName(); strings.Contains(name, "/") {
		if dir := path.Dir(name); dir != "" && dir != "." {
			relativePath = dir
		}
	}

	ext := types.Ext(filename)
	if !types.AllowedExtension(ext) {
		logger.Ctx(r.Context()).Warn().Str("filename", filename).Msg("unsupported file type, skipping")
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	dest, err := s.deps.Modules.BuildFilePath(module, filename, relativePath)
	if err != nil {
		return nil, err
	}

	release, err := s.deps.Admission.AcquireCopy(r.Context())
	if err != nil {
		return nil, err
	}
	written, err := s.deps.Modules.SaveFile(dest, part)
	release()
	if err != nil {
		return nil, err
	}

	if written == 0 {
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", dest).Msg("failed to remove empty file")
		}
		logger.Ctx(r.Context()).Warn().Str("filename", filename).Msg("empty file, skipping")
		return nil, nil
	}

	s.deps.Stats.AddUploadedBytes(written)

	finalName := path.Base(dest)
	url := "/uploads/" + module + "/" + finalName
	if relativePath != "" {
		url = "/uploads/" + module + "/" + relativePath + "/" + finalName
	}

	return &types.FileInfo{
		Filename:     finalName,
		URL:          url,
		Module:       module,
		UploadTime:   time.Now().UTC().Format(types.TimeFormat),
		Size:         written,
		FileType:     types.FileTypeFor(ext),
		RelativePath: relativePath,
	}, nil
}

func queryDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
